package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/preset"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// PresetRepository is a Postgres-backed preset.Repository implementation.
// Uniqueness of (project_id, user_id, lower(name)) is enforced by the
// idx_filter_presets_scope_name index in migrations/0001_init.sql rather
// than an application-level scan, unlike the in-memory repository.
type PresetRepository struct {
	db *sqlx.DB
}

// NewPresetRepository constructs a Postgres filter preset repository.
func NewPresetRepository(db *sqlx.DB) *PresetRepository {
	return &PresetRepository{db: db}
}

type presetRow struct {
	ID        string         `db:"id"`
	ProjectID string         `db:"project_id"`
	UserID    string         `db:"user_id"`
	Name      string         `db:"name"`
	Levels    pq.StringArray `db:"levels"`
	Source    string         `db:"source"`
	Search    string         `db:"search"`
	Default   bool           `db:"is_default"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (row presetRow) toDomain() *preset.Preset {
	levels := make([]telemetry.LogLevel, len(row.Levels))
	for i, l := range row.Levels {
		levels[i] = telemetry.LogLevel(l)
	}
	return &preset.Preset{
		ID:        preset.ID(row.ID),
		ProjectID: project.ID(row.ProjectID),
		UserID:    identity.UserID(row.UserID),
		Name:      row.Name,
		Filter: preset.Filter{
			Levels: levels,
			Source: row.Source,
			Search: row.Search,
		},
		Default:   row.Default,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

const presetColumns = `id, project_id, user_id, name, levels, source, search, is_default, created_at, updated_at`

func (r *PresetRepository) Create(ctx context.Context, p *preset.Preset) error {
	levels := make([]string, len(p.Filter.Levels))
	for i, l := range p.Filter.Levels {
		levels[i] = string(l)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO filter_presets (id, project_id, user_id, name, levels, source, search, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.ProjectID, p.UserID, p.Name, pq.Array(levels), p.Filter.Source, p.Filter.Search,
		p.Default, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return serrors.AlreadyExists("filter_preset", p.Name)
	}
	if err != nil {
		return serrors.DatabaseError("preset.Create", err)
	}
	return nil
}

func (r *PresetRepository) Get(ctx context.Context, id preset.ID) (*preset.Preset, error) {
	var row presetRow
	err := r.db.GetContext(ctx, &row, `SELECT `+presetColumns+` FROM filter_presets WHERE id = $1`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("filter_preset", string(id))
	}
	if err != nil {
		return nil, serrors.DatabaseError("preset.Get", err)
	}
	return row.toDomain(), nil
}

func (r *PresetRepository) Update(ctx context.Context, p *preset.Preset) error {
	levels := make([]string, len(p.Filter.Levels))
	for i, l := range p.Filter.Levels {
		levels[i] = string(l)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE filter_presets SET name = $1, levels = $2, source = $3, search = $4,
			is_default = $5, updated_at = $6
		WHERE id = $7
	`, p.Name, pq.Array(levels), p.Filter.Source, p.Filter.Search, p.Default, time.Now(), string(p.ID))
	if isUniqueViolation(err) {
		return serrors.AlreadyExists("filter_preset", p.Name)
	}
	return requireRowUpdated(res, err, "filter_preset", string(p.ID))
}

func (r *PresetRepository) Delete(ctx context.Context, id preset.ID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM filter_presets WHERE id = $1`, string(id)); err != nil {
		return serrors.DatabaseError("preset.Delete", err)
	}
	return nil
}

func (r *PresetRepository) ListByScope(ctx context.Context, projectID project.ID, userID identity.UserID) ([]*preset.Preset, error) {
	var rows []presetRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+presetColumns+` FROM filter_presets WHERE project_id = $1 AND user_id = $2 ORDER BY created_at
	`, string(projectID), string(userID)); err != nil {
		return nil, serrors.DatabaseError("preset.ListByScope", err)
	}
	out := make([]*preset.Preset, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *PresetRepository) GetByNameCI(ctx context.Context, projectID project.ID, userID identity.UserID, name string) (*preset.Preset, error) {
	var row presetRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+presetColumns+` FROM filter_presets
		WHERE project_id = $1 AND user_id = $2 AND lower(name) = lower($3)
	`, string(projectID), string(userID), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("filter_preset", name)
	}
	if err != nil {
		return nil, serrors.DatabaseError("preset.GetByNameCI", err)
	}
	return row.toDomain(), nil
}

func (r *PresetRepository) GetDefault(ctx context.Context, projectID project.ID, userID identity.UserID) (*preset.Preset, error) {
	var row presetRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+presetColumns+` FROM filter_presets
		WHERE project_id = $1 AND user_id = $2 AND is_default = true
	`, string(projectID), string(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("filter_preset", "default")
	}
	if err != nil {
		return nil, serrors.DatabaseError("preset.GetDefault", err)
	}
	return row.toDomain(), nil
}

func (r *PresetRepository) ClearDefault(ctx context.Context, projectID project.ID, userID identity.UserID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE filter_presets SET is_default = false WHERE project_id = $1 AND user_id = $2 AND is_default = true
	`, string(projectID), string(userID))
	if err != nil {
		return serrors.DatabaseError("preset.ClearDefault", err)
	}
	return nil
}
