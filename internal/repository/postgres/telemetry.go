package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// TelemetryRepository is a Postgres-backed telemetry.Repository
// implementation. Span inserts rely on the (project_id, start_time, span_id)
// unique constraint in migrations/0001_init.sql to get ON CONFLICT DO
// NOTHING idempotency, matching the in-memory repository's spanKey dedup.
type TelemetryRepository struct {
	db *sqlx.DB
}

// NewTelemetryRepository constructs a Postgres telemetry repository.
func NewTelemetryRepository(db *sqlx.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

func (r *TelemetryRepository) InsertLogs(ctx context.Context, entries []*telemetry.LogEntry) (*telemetry.BatchResult, error) {
	res := &telemetry.BatchResult{}
	for _, e := range entries {
		if !e.Level.IsValid() {
			res.Rejected++
			res.Errors = append(res.Errors, "invalid level: "+string(e.Level))
			continue
		}
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO logs (id, project_id, "timestamp", level, source, message,
				metadata, trace_id, span_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, e.ID, e.ProjectID, e.Timestamp, e.Level, e.Source, e.Message,
			metadata, e.TraceID, e.SpanID, e.CreatedAt)
		if err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Accepted++
	}
	return res, nil
}

type logRow struct {
	ID        string    `db:"id"`
	ProjectID string    `db:"project_id"`
	Timestamp time.Time `db:"timestamp"`
	Level     string    `db:"level"`
	Source    string    `db:"source"`
	Message   string    `db:"message"`
	Metadata  []byte    `db:"metadata"`
	TraceID   string    `db:"trace_id"`
	SpanID    string    `db:"span_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (row logRow) toDomain() *telemetry.LogEntry {
	e := &telemetry.LogEntry{
		ID:        row.ID,
		ProjectID: project.ID(row.ProjectID),
		Timestamp: row.Timestamp,
		Level:     telemetry.LogLevel(row.Level),
		Source:    row.Source,
		Message:   row.Message,
		TraceID:   row.TraceID,
		SpanID:    row.SpanID,
		CreatedAt: row.CreatedAt,
	}
	if len(row.Metadata) > 0 {
		_ = json.Unmarshal(row.Metadata, &e.Metadata)
	}
	return e
}

// logQueryWhere builds the shared WHERE clause and argument list for
// QueryLogs/CountLogs, keeping the two in lockstep the way the in-memory
// repository shares matchesLogQuery between them.
func logQueryWhere(q telemetry.LogQuery) (string, []interface{}) {
	clause := strings.Builder{}
	clause.WriteString("project_id = $1")
	args := []interface{}{string(q.ProjectID)}

	if len(q.Levels) > 0 {
		levels := make([]string, len(q.Levels))
		for i, lvl := range q.Levels {
			levels[i] = string(lvl)
		}
		args = append(args, pq.Array(levels))
		clause.WriteString(" AND level = ANY($" + strconv.Itoa(len(args)) + ")")
	}
	if q.Source != "" {
		args = append(args, q.Source)
		clause.WriteString(" AND source = $" + strconv.Itoa(len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		clause.WriteString(" AND message ILIKE $" + strconv.Itoa(len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		clause.WriteString(` AND "timestamp" >= $` + strconv.Itoa(len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		clause.WriteString(` AND "timestamp" <= $` + strconv.Itoa(len(args)))
	}
	return clause.String(), args
}

func (r *TelemetryRepository) QueryLogs(ctx context.Context, q telemetry.LogQuery) ([]*telemetry.LogEntry, error) {
	where, args := logQueryWhere(q)
	query := `SELECT id, project_id, "timestamp", level, source, message, metadata, trace_id, span_id, created_at
		FROM logs WHERE ` + where + ` ORDER BY "timestamp" DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}
	var rows []logRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, serrors.DatabaseError("telemetry.QueryLogs", err)
	}
	out := make([]*telemetry.LogEntry, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *TelemetryRepository) CountLogs(ctx context.Context, q telemetry.LogQuery) (int, error) {
	where, args := logQueryWhere(q)
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM logs WHERE `+where, args...); err != nil {
		return 0, serrors.DatabaseError("telemetry.CountLogs", err)
	}
	return count, nil
}

func (r *TelemetryRepository) LogStats(ctx context.Context, projectID project.ID, since time.Time) (map[telemetry.LogLevel]int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT level, count(*) AS n FROM logs
		WHERE project_id = $1 AND ($2::timestamptz IS NULL OR "timestamp" >= $2)
		GROUP BY level
	`, string(projectID), nullableTime(since))
	if err != nil {
		return nil, serrors.DatabaseError("telemetry.LogStats", err)
	}
	defer rows.Close()
	out := make(map[telemetry.LogLevel]int)
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, serrors.DatabaseError("telemetry.LogStats.scan", err)
		}
		out[telemetry.LogLevel(level)] = n
	}
	return out, rows.Err()
}

func (r *TelemetryRepository) DeleteLogsOlderThan(ctx context.Context, projectID project.ID, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM logs WHERE project_id = $1 AND "timestamp" < $2`, string(projectID), cutoff)
	if err != nil {
		return 0, serrors.DatabaseError("telemetry.DeleteLogsOlderThan", err)
	}
	return res.RowsAffected()
}

func (r *TelemetryRepository) InsertMetrics(ctx context.Context, points []*telemetry.MetricPoint) error {
	for _, p := range points {
		if err := p.ValidateHistogram(); err != nil {
			return err
		}
	}
	labelsByPoint := make([][]byte, len(points))
	for i, p := range points {
		b, err := json.Marshal(p.Labels)
		if err != nil {
			return serrors.InvalidInput("labels", err.Error())
		}
		labelsByPoint[i] = b
	}
	for i, p := range points {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO metrics (id, project_id, "timestamp", name, type, value,
				bucket_bounds, bucket_counts, labels, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, p.ID, p.ProjectID, p.Timestamp, p.Name, p.Type, p.Value,
			pq.Array(p.BucketBounds), pq.Array(p.BucketCounts), labelsByPoint[i], p.CreatedAt)
		if err != nil {
			return serrors.DatabaseError("telemetry.InsertMetrics", err)
		}
	}
	return nil
}

type metricRow struct {
	ID           string          `db:"id"`
	ProjectID    string          `db:"project_id"`
	Timestamp    time.Time       `db:"timestamp"`
	Name         string          `db:"name"`
	Type         string          `db:"type"`
	Value        float64         `db:"value"`
	BucketBounds pq.Float64Array `db:"bucket_bounds"`
	BucketCounts pq.Int64Array   `db:"bucket_counts"`
	Labels       []byte          `db:"labels"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (row metricRow) toDomain() *telemetry.MetricPoint {
	p := &telemetry.MetricPoint{
		ID:           row.ID,
		ProjectID:    project.ID(row.ProjectID),
		Timestamp:    row.Timestamp,
		Name:         row.Name,
		Type:         telemetry.MetricType(row.Type),
		Value:        row.Value,
		BucketBounds: []float64(row.BucketBounds),
		CreatedAt:    row.CreatedAt,
	}
	counts := make([]uint64, len(row.BucketCounts))
	for i, c := range row.BucketCounts {
		counts[i] = uint64(c)
	}
	p.BucketCounts = counts
	if len(row.Labels) > 0 {
		_ = json.Unmarshal(row.Labels, &p.Labels)
	}
	return p
}

func (r *TelemetryRepository) QueryMetrics(ctx context.Context, q telemetry.MetricQuery) ([]*telemetry.MetricPoint, error) {
	clause := strings.Builder{}
	clause.WriteString("project_id = $1")
	args := []interface{}{string(q.ProjectID)}
	if q.Name != "" {
		args = append(args, q.Name)
		clause.WriteString(" AND name = $" + strconv.Itoa(len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		clause.WriteString(` AND "timestamp" >= $` + strconv.Itoa(len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		clause.WriteString(` AND "timestamp" <= $` + strconv.Itoa(len(args)))
	}
	query := `SELECT id, project_id, "timestamp", name, type, value, bucket_bounds, bucket_counts, labels, created_at
		FROM metrics WHERE ` + clause.String() + ` ORDER BY "timestamp" ASC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	var rows []metricRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, serrors.DatabaseError("telemetry.QueryMetrics", err)
	}
	out := make([]*telemetry.MetricPoint, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *TelemetryRepository) DeleteMetricsOlderThan(ctx context.Context, projectID project.ID, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM metrics WHERE project_id = $1 AND "timestamp" < $2`, string(projectID), cutoff)
	if err != nil {
		return 0, serrors.DatabaseError("telemetry.DeleteMetricsOlderThan", err)
	}
	return res.RowsAffected()
}

func (r *TelemetryRepository) InsertSpans(ctx context.Context, spans []*telemetry.Span) (*telemetry.BatchResult, error) {
	res := &telemetry.BatchResult{}
	for _, s := range spans {
		attrs, err := json.Marshal(s.Attributes)
		if err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		result, err := r.db.ExecContext(ctx, `
			INSERT INTO spans (id, project_id, trace_id, span_id, parent_span_id, name,
				kind, start_time, end_time, status, status_message, attributes,
				service_name, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (project_id, start_time, span_id) DO NOTHING
		`, s.ID, s.ProjectID, s.TraceID, s.SpanID, s.ParentSpanID, s.Name,
			s.Kind, s.StartTime, s.EndTime, s.Status, s.StatusMessage, attrs,
			s.ServiceName, s.CreatedAt)
		if err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		n, err := result.RowsAffected()
		if err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		if n == 0 {
			continue // ON CONFLICT DO NOTHING: silently idempotent, not a rejection
		}
		res.Accepted++
	}
	return res, nil
}

type spanRow struct {
	ID            string    `db:"id"`
	ProjectID     string    `db:"project_id"`
	TraceID       string    `db:"trace_id"`
	SpanID        string    `db:"span_id"`
	ParentSpanID  string    `db:"parent_span_id"`
	Name          string    `db:"name"`
	Kind          string    `db:"kind"`
	StartTime     time.Time `db:"start_time"`
	EndTime       time.Time `db:"end_time"`
	Status        string    `db:"status"`
	StatusMessage string    `db:"status_message"`
	Attributes    []byte    `db:"attributes"`
	ServiceName   string    `db:"service_name"`
	CreatedAt     time.Time `db:"created_at"`
}

func (row spanRow) toDomain() *telemetry.Span {
	s := &telemetry.Span{
		ID:            row.ID,
		ProjectID:     project.ID(row.ProjectID),
		TraceID:       row.TraceID,
		SpanID:        row.SpanID,
		ParentSpanID:  row.ParentSpanID,
		Name:          row.Name,
		Kind:          telemetry.SpanKind(row.Kind),
		StartTime:     row.StartTime,
		EndTime:       row.EndTime,
		Status:        telemetry.SpanStatus(row.Status),
		StatusMessage: row.StatusMessage,
		ServiceName:   row.ServiceName,
		CreatedAt:     row.CreatedAt,
	}
	if len(row.Attributes) > 0 {
		_ = json.Unmarshal(row.Attributes, &s.Attributes)
	}
	return s
}

const spanColumns = `id, project_id, trace_id, span_id, parent_span_id, name, kind,
	start_time, end_time, status, status_message, attributes, service_name, created_at`

func (r *TelemetryRepository) QuerySpans(ctx context.Context, q telemetry.SpanQuery) ([]*telemetry.Span, error) {
	clause := strings.Builder{}
	clause.WriteString("project_id = $1")
	args := []interface{}{string(q.ProjectID)}
	if q.ServiceName != "" {
		args = append(args, q.ServiceName)
		clause.WriteString(" AND service_name = $" + strconv.Itoa(len(args)))
	}
	if q.Name != "" {
		args = append(args, q.Name)
		clause.WriteString(" AND name = $" + strconv.Itoa(len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		clause.WriteString(" AND start_time >= $" + strconv.Itoa(len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		clause.WriteString(" AND start_time <= $" + strconv.Itoa(len(args)))
	}
	if q.MinDuration > 0 {
		args = append(args, q.MinDuration.Seconds())
		clause.WriteString(" AND EXTRACT(EPOCH FROM (end_time - start_time)) >= $" + strconv.Itoa(len(args)))
	}
	query := `SELECT ` + spanColumns + ` FROM spans WHERE ` + clause.String() + ` ORDER BY start_time DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	var rows []spanRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, serrors.DatabaseError("telemetry.QuerySpans", err)
	}
	out := make([]*telemetry.Span, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *TelemetryRepository) GetTrace(ctx context.Context, projectID project.ID, traceID string) ([]*telemetry.Span, error) {
	var rows []spanRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+spanColumns+` FROM spans WHERE project_id = $1 AND trace_id = $2 ORDER BY start_time ASC
	`, string(projectID), traceID); err != nil {
		return nil, serrors.DatabaseError("telemetry.GetTrace", err)
	}
	out := make([]*telemetry.Span, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *TelemetryRepository) DeleteSpansOlderThan(ctx context.Context, projectID project.ID, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM spans WHERE project_id = $1 AND start_time < $2`, string(projectID), cutoff)
	if err != nil {
		return 0, serrors.DatabaseError("telemetry.DeleteSpansOlderThan", err)
	}
	return res.RowsAffected()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
