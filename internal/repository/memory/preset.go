package memory

import (
	"context"
	"strings"
	"sync"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/preset"
	"github.com/sobshdev/altenia/internal/domain/project"
)

// PresetRepository is an in-memory preset.Repository implementation.
type PresetRepository struct {
	mu   sync.RWMutex
	byID map[preset.ID]*preset.Preset
}

func NewPresetRepository() *PresetRepository {
	return &PresetRepository{byID: make(map[preset.ID]*preset.Preset)}
}

func (r *PresetRepository) Create(_ context.Context, p *preset.Preset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ProjectID == p.ProjectID && existing.UserID == p.UserID &&
			strings.EqualFold(existing.Name, p.Name) {
			return serrors.AlreadyExists("filter_preset", p.Name)
		}
	}
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *PresetRepository) Get(_ context.Context, id preset.ID) (*preset.Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, serrors.NotFound("filter_preset", string(id))
	}
	cp := *p
	return &cp, nil
}

func (r *PresetRepository) Update(_ context.Context, p *preset.Preset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; !ok {
		return serrors.NotFound("filter_preset", string(p.ID))
	}
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *PresetRepository) Delete(_ context.Context, id preset.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *PresetRepository) ListByScope(_ context.Context, projectID project.ID, userID identity.UserID) ([]*preset.Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*preset.Preset
	for _, p := range r.byID {
		if p.ProjectID == projectID && p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *PresetRepository) GetByNameCI(_ context.Context, projectID project.ID, userID identity.UserID, name string) (*preset.Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.ProjectID == projectID && p.UserID == userID && strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, serrors.NotFound("filter_preset", name)
}

func (r *PresetRepository) GetDefault(_ context.Context, projectID project.ID, userID identity.UserID) (*preset.Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.ProjectID == projectID && p.UserID == userID && p.Default {
			cp := *p
			return &cp, nil
		}
	}
	return nil, serrors.NotFound("filter_preset", "default")
}

func (r *PresetRepository) ClearDefault(_ context.Context, projectID project.ID, userID identity.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.ProjectID == projectID && p.UserID == userID && p.Default {
			p.Default = false
		}
	}
	return nil
}
