package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

// ProjectRepository is a Postgres-backed project.Repository implementation.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs a Postgres project repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

type projectRow struct {
	ID            string       `db:"id"`
	OrgID         string       `db:"org_id"`
	Name          string       `db:"name"`
	Slug          string       `db:"slug"`
	Description   string       `db:"description"`
	RetentionLogs int          `db:"retention_logs_days"`
	RetentionMet  int          `db:"retention_metrics_days"`
	RetentionTrc  int          `db:"retention_traces_days"`
	DeletedAt     sql.NullTime `db:"deleted_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (row projectRow) toDomain() *project.Project {
	p := &project.Project{
		ID:          project.ID(row.ID),
		OrgID:       tenancy.OrgID(row.OrgID),
		Name:        row.Name,
		Slug:        row.Slug,
		Description: row.Description,
		Retention: project.RetentionDays{
			Logs:    row.RetentionLogs,
			Metrics: row.RetentionMet,
			Traces:  row.RetentionTrc,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.DeletedAt.Valid {
		p.DeletedAt = &row.DeletedAt.Time
	}
	return p
}

const projectColumns = `id, org_id, name, slug, description, retention_logs_days,
	retention_metrics_days, retention_traces_days, deleted_at, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *project.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, org_id, name, slug, description,
			retention_logs_days, retention_metrics_days, retention_traces_days,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.OrgID, p.Name, p.Slug, p.Description,
		p.Retention.Logs, p.Retention.Metrics, p.Retention.Traces, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return serrors.AlreadyExists("project", p.Slug)
	}
	if err != nil {
		return serrors.DatabaseError("project.Create", err)
	}
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, id project.ID) (*project.Project, error) {
	var row projectRow
	err := r.db.GetContext(ctx, &row, `SELECT `+projectColumns+` FROM projects WHERE id = $1 AND deleted_at IS NULL`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("project", string(id))
	}
	if err != nil {
		return nil, serrors.DatabaseError("project.Get", err)
	}
	return row.toDomain(), nil
}

func (r *ProjectRepository) GetBySlug(ctx context.Context, orgID tenancy.OrgID, slug string) (*project.Project, error) {
	var row projectRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+projectColumns+` FROM projects WHERE org_id = $1 AND slug = $2 AND deleted_at IS NULL
	`, string(orgID), slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("project", slug)
	}
	if err != nil {
		return nil, serrors.DatabaseError("project.GetBySlug", err)
	}
	return row.toDomain(), nil
}

func (r *ProjectRepository) Update(ctx context.Context, p *project.Project) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects SET name = $1, description = $2,
			retention_logs_days = $3, retention_metrics_days = $4, retention_traces_days = $5,
			updated_at = $6
		WHERE id = $7
	`, p.Name, p.Description, p.Retention.Logs, p.Retention.Metrics, p.Retention.Traces, time.Now(), string(p.ID))
	return requireRowUpdated(res, err, "project", string(p.ID))
}

// Delete soft-deletes the project by stamping deleted_at, matching the
// in-memory repository's semantics: the row and its API keys survive, but
// it drops out of Get/GetBySlug/ListByOrg/ListAll.
func (r *ProjectRepository) Delete(ctx context.Context, id project.ID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL
	`, string(id))
	return requireRowUpdated(res, err, "project", string(id))
}

func (r *ProjectRepository) ListByOrg(ctx context.Context, orgID tenancy.OrgID) ([]*project.Project, error) {
	var rows []projectRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+projectColumns+` FROM projects WHERE org_id = $1 AND deleted_at IS NULL ORDER BY created_at
	`, string(orgID)); err != nil {
		return nil, serrors.DatabaseError("project.ListByOrg", err)
	}
	return toProjects(rows), nil
}

func (r *ProjectRepository) ListAll(ctx context.Context) ([]*project.Project, error) {
	var rows []projectRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+projectColumns+` FROM projects WHERE deleted_at IS NULL
	`); err != nil {
		return nil, serrors.DatabaseError("project.ListAll", err)
	}
	return toProjects(rows), nil
}

func toProjects(rows []projectRow) []*project.Project {
	out := make([]*project.Project, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out
}

type apiKeyRow struct {
	ID         string       `db:"id"`
	ProjectID  string       `db:"project_id"`
	Name       string       `db:"name"`
	Prefix     string       `db:"prefix"`
	KeyHash    string       `db:"key_hash"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
	CreatedAt  time.Time    `db:"created_at"`
}

func (row apiKeyRow) toDomain() *project.ApiKey {
	k := &project.ApiKey{
		ID:        project.ApiKeyID(row.ID),
		ProjectID: project.ID(row.ProjectID),
		Name:      row.Name,
		Prefix:    row.Prefix,
		KeyHash:   row.KeyHash,
		CreatedAt: row.CreatedAt,
	}
	if row.LastUsedAt.Valid {
		k.LastUsedAt = &row.LastUsedAt.Time
	}
	if row.RevokedAt.Valid {
		k.RevokedAt = &row.RevokedAt.Time
	}
	return k
}

const apiKeyColumns = `id, project_id, name, prefix, key_hash, last_used_at, revoked_at, created_at`

func (r *ProjectRepository) CreateApiKey(ctx context.Context, k *project.ApiKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, project_id, name, prefix, key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, k.ID, k.ProjectID, k.Name, k.Prefix, k.KeyHash, k.CreatedAt)
	if isUniqueViolation(err) {
		return serrors.AlreadyExists("api_key", k.Prefix)
	}
	if err != nil {
		return serrors.DatabaseError("project.CreateApiKey", err)
	}
	return nil
}

func (r *ProjectRepository) GetApiKeyByHash(ctx context.Context, keyHash string) (*project.ApiKey, error) {
	var row apiKeyRow
	err := r.db.GetContext(ctx, &row, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("api_key", keyHash)
	}
	if err != nil {
		return nil, serrors.DatabaseError("project.GetApiKeyByHash", err)
	}
	return row.toDomain(), nil
}

func (r *ProjectRepository) GetApiKey(ctx context.Context, id project.ApiKeyID) (*project.ApiKey, error) {
	var row apiKeyRow
	err := r.db.GetContext(ctx, &row, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("api_key", string(id))
	}
	if err != nil {
		return nil, serrors.DatabaseError("project.GetApiKey", err)
	}
	return row.toDomain(), nil
}

func (r *ProjectRepository) ListApiKeys(ctx context.Context, projectID project.ID) ([]*project.ApiKey, error) {
	var rows []apiKeyRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE project_id = $1 ORDER BY created_at
	`, string(projectID)); err != nil {
		return nil, serrors.DatabaseError("project.ListApiKeys", err)
	}
	out := make([]*project.ApiKey, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *ProjectRepository) RevokeApiKey(ctx context.Context, id project.ApiKeyID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE api_keys SET revoked_at = now() WHERE id = $1`, string(id))
	return requireRowUpdated(res, err, "api_key", string(id))
}

func (r *ProjectRepository) TouchApiKeyLastUsed(ctx context.Context, id project.ApiKeyID, when time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, when, string(id))
	return requireRowUpdated(res, err, "api_key", string(id))
}
