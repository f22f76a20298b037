// Package project models projects and their API keys within an organization.
package project

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

// ID uniquely identifies a project.
type ID string

// NewID generates a fresh project ID.
func NewID() ID { return ID(uuid.New().String()) }

// ApiKeyID uniquely identifies an API key record.
type ApiKeyID string

// NewApiKeyID generates a fresh API key ID.
func NewApiKeyID() ApiKeyID { return ApiKeyID(uuid.New().String()) }

// KeyPrefix is how far into the raw key value the stored prefix extends,
// enough to let a human recognize "which key" in a list without ever
// persisting the full secret.
const KeyPrefix = "alt_pk_"

// RetentionDays holds the per-signal retention configuration for a project,
// in days. Zero means "use the project default."
type RetentionDays struct {
	Logs    int
	Metrics int
	Traces  int
}

// Project is a telemetry-scoping unit owned by an organization.
type Project struct {
	ID          ID
	OrgID       tenancy.OrgID
	Name        string
	Slug        string
	Description string
	Retention   RetentionDays
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApiKey is an ingestion credential for a project. RawKey is only ever
// populated transiently at issuance time and is never persisted; the stored
// record only carries KeyHash and Prefix.
type ApiKey struct {
	ID         ApiKeyID
	ProjectID  ID
	Name       string
	Prefix     string
	KeyHash    string
	RawKey     string `json:"-"`
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Active reports whether the key may still authenticate ingest requests.
func (k *ApiKey) Active() bool { return k.RevokedAt == nil }

// Repository persists projects and API keys.
type Repository interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id ID) (*Project, error)
	GetBySlug(ctx context.Context, orgID tenancy.OrgID, slug string) (*Project, error)
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id ID) error
	ListByOrg(ctx context.Context, orgID tenancy.OrgID) ([]*Project, error)
	ListAll(ctx context.Context) ([]*Project, error)

	CreateApiKey(ctx context.Context, k *ApiKey) error
	GetApiKeyByHash(ctx context.Context, keyHash string) (*ApiKey, error)
	GetApiKey(ctx context.Context, id ApiKeyID) (*ApiKey, error)
	ListApiKeys(ctx context.Context, projectID ID) ([]*ApiKey, error)
	RevokeApiKey(ctx context.Context, id ApiKeyID) error
	TouchApiKeyLastUsed(ctx context.Context, id ApiKeyID, when time.Time) error
}
