package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/alerting"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// AlertingRepository is a Postgres-backed alerting.Repository implementation.
type AlertingRepository struct {
	db *sqlx.DB
}

// NewAlertingRepository constructs a Postgres alerting repository.
func NewAlertingRepository(db *sqlx.DB) *AlertingRepository {
	return &AlertingRepository{db: db}
}

type channelRow struct {
	ID        string    `db:"id"`
	ProjectID string    `db:"project_id"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	URL       string    `db:"url"`
	Secret    string    `db:"secret"`
	Headers   []byte    `db:"headers"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
}

func (row channelRow) toDomain() *alerting.Channel {
	c := &alerting.Channel{
		ID:        alerting.ChannelID(row.ID),
		ProjectID: project.ID(row.ProjectID),
		Name:      row.Name,
		Type:      alerting.ChannelType(row.Type),
		URL:       row.URL,
		Secret:    row.Secret,
		Enabled:   row.Enabled,
		CreatedAt: row.CreatedAt,
	}
	if len(row.Headers) > 0 {
		_ = json.Unmarshal(row.Headers, &c.Headers)
	}
	return c
}

const channelColumns = `id, project_id, name, type, url, secret, headers, enabled, created_at`

func (r *AlertingRepository) CreateChannel(ctx context.Context, c *alerting.Channel) error {
	headers, err := json.Marshal(c.Headers)
	if err != nil {
		return serrors.InvalidInput("headers", err.Error())
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alert_channels (id, project_id, name, type, url, secret, headers, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.ProjectID, c.Name, c.Type, c.URL, c.Secret, headers, c.Enabled, c.CreatedAt)
	if err != nil {
		return serrors.DatabaseError("alerting.CreateChannel", err)
	}
	return nil
}

func (r *AlertingRepository) GetChannel(ctx context.Context, id alerting.ChannelID) (*alerting.Channel, error) {
	var row channelRow
	err := r.db.GetContext(ctx, &row, `SELECT `+channelColumns+` FROM alert_channels WHERE id = $1`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("alert_channel", string(id))
	}
	if err != nil {
		return nil, serrors.DatabaseError("alerting.GetChannel", err)
	}
	return row.toDomain(), nil
}

func (r *AlertingRepository) ListChannels(ctx context.Context, projectID project.ID) ([]*alerting.Channel, error) {
	var rows []channelRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+channelColumns+` FROM alert_channels WHERE project_id = $1 ORDER BY created_at
	`, string(projectID)); err != nil {
		return nil, serrors.DatabaseError("alerting.ListChannels", err)
	}
	out := make([]*alerting.Channel, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *AlertingRepository) UpdateChannel(ctx context.Context, c *alerting.Channel) error {
	headers, err := json.Marshal(c.Headers)
	if err != nil {
		return serrors.InvalidInput("headers", err.Error())
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE alert_channels SET name = $1, type = $2, url = $3, secret = $4, headers = $5, enabled = $6
		WHERE id = $7
	`, c.Name, c.Type, c.URL, c.Secret, headers, c.Enabled, string(c.ID))
	return requireRowUpdated(res, err, "alert_channel", string(c.ID))
}

func (r *AlertingRepository) DeleteChannel(ctx context.Context, id alerting.ChannelID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM alert_channels WHERE id = $1`, string(id)); err != nil {
		return serrors.DatabaseError("alerting.DeleteChannel", err)
	}
	return nil
}

type ruleRow struct {
	ID              string         `db:"id"`
	ProjectID       string         `db:"project_id"`
	Name            string         `db:"name"`
	Kind            string         `db:"kind"`
	Operator        string         `db:"operator"`
	Threshold       float64        `db:"threshold"`
	WindowSeconds   int            `db:"window_seconds"`
	Pattern         string         `db:"pattern"`
	ConfigLevels    pq.StringArray `db:"config_levels"`
	ConfigSource    string         `db:"config_source"`
	ChannelIDs      pq.StringArray `db:"channel_ids"`
	Enabled         bool           `db:"enabled"`
	LastEvaluatedAt sql.NullTime   `db:"last_evaluated_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (row ruleRow) toDomain() *alerting.Rule {
	levels := make([]telemetry.LogLevel, len(row.ConfigLevels))
	for i, l := range row.ConfigLevels {
		levels[i] = telemetry.LogLevel(l)
	}
	channels := make([]alerting.ChannelID, len(row.ChannelIDs))
	for i, c := range row.ChannelIDs {
		channels[i] = alerting.ChannelID(c)
	}
	rule := &alerting.Rule{
		ID:            alerting.RuleID(row.ID),
		ProjectID:     project.ID(row.ProjectID),
		Name:          row.Name,
		Kind:          alerting.RuleKind(row.Kind),
		Operator:      alerting.Operator(row.Operator),
		Threshold:     row.Threshold,
		WindowSeconds: row.WindowSeconds,
		Pattern:       row.Pattern,
		Levels:        levels,
		Source:        row.ConfigSource,
		ChannelIDs:    channels,
		Enabled:       row.Enabled,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.LastEvaluatedAt.Valid {
		rule.LastEvaluatedAt = &row.LastEvaluatedAt.Time
	}
	return rule
}

const ruleColumns = `id, project_id, name, kind, operator, threshold, window_seconds, pattern,
	config_levels, config_source, channel_ids, enabled, last_evaluated_at, created_at, updated_at`

func levelsToStrings(levels []telemetry.LogLevel) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}

func channelIDsToStrings(ids []alerting.ChannelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func (r *AlertingRepository) CreateRule(ctx context.Context, rule *alerting.Rule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, project_id, name, kind, operator, threshold, window_seconds,
			pattern, config_levels, config_source, channel_ids, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rule.ID, rule.ProjectID, rule.Name, rule.Kind, rule.Operator, rule.Threshold, rule.WindowSeconds,
		rule.Pattern, pq.Array(levelsToStrings(rule.Levels)), rule.Source,
		pq.Array(channelIDsToStrings(rule.ChannelIDs)), rule.Enabled, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return serrors.DatabaseError("alerting.CreateRule", err)
	}
	return nil
}

func (r *AlertingRepository) GetRule(ctx context.Context, id alerting.RuleID) (*alerting.Rule, error) {
	var row ruleRow
	err := r.db.GetContext(ctx, &row, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = $1`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("alert_rule", string(id))
	}
	if err != nil {
		return nil, serrors.DatabaseError("alerting.GetRule", err)
	}
	return row.toDomain(), nil
}

func (r *AlertingRepository) UpdateRule(ctx context.Context, rule *alerting.Rule) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alert_rules SET name = $1, kind = $2, operator = $3, threshold = $4,
			window_seconds = $5, pattern = $6, config_levels = $7, config_source = $8,
			channel_ids = $9, enabled = $10, updated_at = $11
		WHERE id = $12
	`, rule.Name, rule.Kind, rule.Operator, rule.Threshold, rule.WindowSeconds, rule.Pattern,
		pq.Array(levelsToStrings(rule.Levels)), rule.Source,
		pq.Array(channelIDsToStrings(rule.ChannelIDs)), rule.Enabled, time.Now(), string(rule.ID))
	return requireRowUpdated(res, err, "alert_rule", string(rule.ID))
}

func (r *AlertingRepository) DeleteRule(ctx context.Context, id alerting.RuleID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, string(id)); err != nil {
		return serrors.DatabaseError("alerting.DeleteRule", err)
	}
	return nil
}

func (r *AlertingRepository) ListRules(ctx context.Context, projectID project.ID) ([]*alerting.Rule, error) {
	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+ruleColumns+` FROM alert_rules WHERE project_id = $1 ORDER BY created_at
	`, string(projectID)); err != nil {
		return nil, serrors.DatabaseError("alerting.ListRules", err)
	}
	out := make([]*alerting.Rule, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *AlertingRepository) ListEnabledRules(ctx context.Context) ([]*alerting.Rule, error) {
	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+ruleColumns+` FROM alert_rules WHERE enabled = true
	`); err != nil {
		return nil, serrors.DatabaseError("alerting.ListEnabledRules", err)
	}
	out := make([]*alerting.Rule, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *AlertingRepository) TouchLastEvaluated(ctx context.Context, id alerting.RuleID, when time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE alert_rules SET last_evaluated_at = $1 WHERE id = $2`, when, string(id))
	return requireRowUpdated(res, err, "alert_rule", string(id))
}

type alertRow struct {
	ID         string       `db:"id"`
	RuleID     string       `db:"rule_id"`
	ProjectID  string       `db:"project_id"`
	State      string       `db:"state"`
	Value      float64      `db:"value"`
	Message    string       `db:"message"`
	FiredAt    time.Time    `db:"fired_at"`
	ResolvedAt sql.NullTime `db:"resolved_at"`
}

func (row alertRow) toDomain() *alerting.Alert {
	a := &alerting.Alert{
		ID:        alerting.AlertID(row.ID),
		RuleID:    alerting.RuleID(row.RuleID),
		ProjectID: project.ID(row.ProjectID),
		State:     alerting.State(row.State),
		Value:     row.Value,
		Message:   row.Message,
		FiredAt:   row.FiredAt,
	}
	if row.ResolvedAt.Valid {
		a.ResolvedAt = &row.ResolvedAt.Time
	}
	return a
}

const alertColumns = `id, rule_id, project_id, state, value, message, fired_at, resolved_at`

func (r *AlertingRepository) CreateAlert(ctx context.Context, a *alerting.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, rule_id, project_id, state, value, message, fired_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.RuleID, a.ProjectID, a.State, a.Value, a.Message, a.FiredAt, a.ResolvedAt)
	if err != nil {
		return serrors.DatabaseError("alerting.CreateAlert", err)
	}
	return nil
}

func (r *AlertingRepository) GetLatestAlert(ctx context.Context, ruleID alerting.RuleID) (*alerting.Alert, error) {
	var row alertRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+alertColumns+` FROM alerts WHERE rule_id = $1 ORDER BY fired_at DESC LIMIT 1
	`, string(ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("alert", string(ruleID))
	}
	if err != nil {
		return nil, serrors.DatabaseError("alerting.GetLatestAlert", err)
	}
	return row.toDomain(), nil
}

func (r *AlertingRepository) ResolveAlert(ctx context.Context, id alerting.AlertID, when time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET state = $1, resolved_at = $2 WHERE id = $3
	`, alerting.StateResolved, when, string(id))
	return requireRowUpdated(res, err, "alert", string(id))
}

func (r *AlertingRepository) ListAlerts(ctx context.Context, projectID project.ID, state alerting.State, limit int) ([]*alerting.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE project_id = $1`
	args := []interface{}{string(projectID)}
	if state != "" {
		args = append(args, string(state))
		query += ` AND state = $2`
	}
	query += ` ORDER BY fired_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, serrors.DatabaseError("alerting.ListAlerts", err)
	}
	out := make([]*alerting.Alert, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
