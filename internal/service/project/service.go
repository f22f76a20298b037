// Package project implements the Projects & API Keys component: project
// CRUD with retention bounds, and API key issuance/validation.
package project

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

var slugDisallowed = regexp.MustCompile(`[^a-z0-9-]+`)

// Config bounds the retention-days values accepted from callers.
type Config struct {
	DefaultRetentionDays int
	MinRetentionDays     int
	MaxRetentionDays     int
}

// Service implements project CRUD and API key lifecycle management.
type Service struct {
	repo   project.Repository
	tenant tenancy.Repository
	cfg    Config
}

// NewService constructs the project service.
func NewService(repo project.Repository, tenant tenancy.Repository, cfg Config) *Service {
	return &Service{repo: repo, tenant: tenant, cfg: cfg}
}

// Create creates a new project under orgID, defaulting unset retention
// fields to the configured default and clamping all to [min, max].
func (s *Service) Create(ctx context.Context, orgID tenancy.OrgID, name, description string, retention project.RetentionDays) (*project.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, serrors.InvalidInput("name", "must not be empty")
	}
	retention = s.clampRetention(retention)

	slug, err := s.uniqueSlug(ctx, orgID, name)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &project.Project{
		ID:          project.NewID(),
		OrgID:       orgID,
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(description),
		Retention:   retention,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) clampRetention(r project.RetentionDays) project.RetentionDays {
	clamp := func(v int) int {
		if v == 0 {
			v = s.cfg.DefaultRetentionDays
		}
		if v < s.cfg.MinRetentionDays {
			v = s.cfg.MinRetentionDays
		}
		if v > s.cfg.MaxRetentionDays {
			v = s.cfg.MaxRetentionDays
		}
		return v
	}
	return project.RetentionDays{
		Logs:    clamp(r.Logs),
		Metrics: clamp(r.Metrics),
		Traces:  clamp(r.Traces),
	}
}

func (s *Service) uniqueSlug(ctx context.Context, orgID tenancy.OrgID, name string) (string, error) {
	base := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
	base = slugDisallowed.ReplaceAllString(base, "")
	if base == "" {
		base = "project"
	}
	slug := base
	for i := 2; ; i++ {
		_, err := s.repo.GetBySlug(ctx, orgID, slug)
		if err != nil {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(i)
	}
}

// Update modifies a project's name/description/retention settings.
func (s *Service) Update(ctx context.Context, id project.ID, name, description string, retention project.RetentionDays) (*project.Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		p.Name = strings.TrimSpace(name)
	}
	if description != "" {
		p.Description = strings.TrimSpace(description)
	}
	p.Retention = s.clampRetention(retention)
	p.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a project.
func (s *Service) Delete(ctx context.Context, id project.ID) error {
	return s.repo.Delete(ctx, id)
}

// Get fetches a project by ID.
func (s *Service) Get(ctx context.Context, id project.ID) (*project.Project, error) {
	return s.repo.Get(ctx, id)
}

// ListByOrg lists projects under an organization.
func (s *Service) ListByOrg(ctx context.Context, orgID tenancy.OrgID) ([]*project.Project, error) {
	return s.repo.ListByOrg(ctx, orgID)
}

// IssueApiKey generates a new raw API key, stores only its prefix and SHA-256
// hash, and returns the record with RawKey populated for one-time display.
func (s *Service) IssueApiKey(ctx context.Context, projectID project.ID, name string) (*project.ApiKey, error) {
	if _, err := s.repo.Get(ctx, projectID); err != nil {
		return nil, err
	}

	raw, err := generateRawKey()
	if err != nil {
		return nil, serrors.Internal("failed to generate api key", err)
	}
	hash := sha256.Sum256([]byte(raw))

	key := &project.ApiKey{
		ID:        project.NewApiKeyID(),
		ProjectID: projectID,
		Name:      name,
		Prefix:    raw[:len(project.KeyPrefix)+6],
		KeyHash:   hex.EncodeToString(hash[:]),
		RawKey:    raw,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateApiKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

func generateRawKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	enc := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
	return project.KeyPrefix + enc, nil
}

// ValidateApiKey looks up the project bound to a raw API key, touching its
// last-used timestamp. Returns an InvalidKey error for an unknown or revoked
// key.
func (s *Service) ValidateApiKey(ctx context.Context, rawKey string) (*project.Project, *project.ApiKey, error) {
	if !strings.HasPrefix(rawKey, project.KeyPrefix) {
		return nil, nil, serrors.InvalidKey(nil)
	}
	hash := sha256.Sum256([]byte(rawKey))
	key, err := s.repo.GetApiKeyByHash(ctx, hex.EncodeToString(hash[:]))
	if err != nil || !key.Active() {
		return nil, nil, serrors.InvalidKey(err)
	}
	_ = s.repo.TouchApiKeyLastUsed(ctx, key.ID, time.Now())

	p, err := s.repo.Get(ctx, key.ProjectID)
	if err != nil {
		return nil, nil, serrors.InvalidKey(err)
	}
	return p, key, nil
}

// RevokeApiKey revokes an API key, making it immediately unusable for ingest.
func (s *Service) RevokeApiKey(ctx context.Context, id project.ApiKeyID) error {
	return s.repo.RevokeApiKey(ctx, id)
}

// ListApiKeys lists a project's API keys (RawKey is never populated after
// issuance, so listing never exposes the secret).
func (s *Service) ListApiKeys(ctx context.Context, projectID project.ID) ([]*project.ApiKey, error) {
	return s.repo.ListApiKeys(ctx, projectID)
}
