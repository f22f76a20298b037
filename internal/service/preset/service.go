// Package preset implements the Filter Presets component: saved log-query
// filters scoped to a project and owning user, with default-flag exclusivity.
package preset

import (
	"context"
	"strings"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/preset"
	"github.com/sobshdev/altenia/internal/domain/project"
)

// Service implements filter preset CRUD.
type Service struct {
	repo preset.Repository
}

// NewService constructs the preset service.
func NewService(repo preset.Repository) *Service {
	return &Service{repo: repo}
}

// Create saves a new named filter preset, clearing any previous default for
// the scope when isDefault is set.
func (s *Service) Create(ctx context.Context, projectID project.ID, userID identity.UserID, name string, filter preset.Filter, isDefault bool) (*preset.Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, serrors.InvalidInput("name", "must not be empty")
	}

	if isDefault {
		if err := s.repo.ClearDefault(ctx, projectID, userID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	p := &preset.Preset{
		ID:        preset.NewID(),
		ProjectID: projectID,
		UserID:    userID,
		Name:      name,
		Filter:    filter,
		Default:   isDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update modifies an existing preset's filter and/or default flag.
func (s *Service) Update(ctx context.Context, id preset.ID, name string, filter preset.Filter, isDefault bool) (*preset.Preset, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		p.Name = name
	}
	p.Filter = filter
	if isDefault && !p.Default {
		if err := s.repo.ClearDefault(ctx, p.ProjectID, p.UserID); err != nil {
			return nil, err
		}
	}
	p.Default = isDefault
	p.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a saved preset.
func (s *Service) Delete(ctx context.Context, id preset.ID) error {
	return s.repo.Delete(ctx, id)
}

// Get fetches a single preset by ID.
func (s *Service) Get(ctx context.Context, id preset.ID) (*preset.Preset, error) {
	return s.repo.Get(ctx, id)
}

// ListByScope lists all presets saved by userID within projectID.
func (s *Service) ListByScope(ctx context.Context, projectID project.ID, userID identity.UserID) ([]*preset.Preset, error) {
	return s.repo.ListByScope(ctx, projectID, userID)
}

// GetDefault returns the scope's default preset, if one has been marked.
func (s *Service) GetDefault(ctx context.Context, projectID project.ID, userID identity.UserID) (*preset.Preset, error) {
	return s.repo.GetDefault(ctx, projectID, userID)
}
