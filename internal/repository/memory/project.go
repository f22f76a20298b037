package memory

import (
	"context"
	"sync"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

// ProjectRepository is an in-memory project.Repository implementation.
type ProjectRepository struct {
	mu     sync.RWMutex
	byID   map[project.ID]*project.Project
	bySlug map[tenancy.OrgID]map[string]project.ID
	keys   map[project.ApiKeyID]*project.ApiKey
	byHash map[string]project.ApiKeyID
}

func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{
		byID:   make(map[project.ID]*project.Project),
		bySlug: make(map[tenancy.OrgID]map[string]project.ID),
		keys:   make(map[project.ApiKeyID]*project.ApiKey),
		byHash: make(map[string]project.ApiKeyID),
	}
}

func (r *ProjectRepository) Create(_ context.Context, p *project.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySlug[p.OrgID]; !ok {
		r.bySlug[p.OrgID] = make(map[string]project.ID)
	}
	if _, ok := r.bySlug[p.OrgID][p.Slug]; ok {
		return serrors.AlreadyExists("project", p.Slug)
	}
	cp := *p
	r.byID[p.ID] = &cp
	r.bySlug[p.OrgID][p.Slug] = p.ID
	return nil
}

func (r *ProjectRepository) Get(_ context.Context, id project.ID) (*project.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok || p.DeletedAt != nil {
		return nil, serrors.NotFound("project", string(id))
	}
	cp := *p
	return &cp, nil
}

func (r *ProjectRepository) GetBySlug(_ context.Context, orgID tenancy.OrgID, slug string) (*project.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySlug[orgID][slug]
	if !ok || r.byID[id].DeletedAt != nil {
		return nil, serrors.NotFound("project", slug)
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *ProjectRepository) Update(_ context.Context, p *project.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; !ok {
		return serrors.NotFound("project", string(p.ID))
	}
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

// Delete soft-deletes the project: the row (and its API keys) are kept, but
// it is hidden from Get/GetBySlug/ListByOrg and excluded from ListAll's
// retention-sweep targets going forward.
func (r *ProjectRepository) Delete(_ context.Context, id project.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || p.DeletedAt != nil {
		return serrors.NotFound("project", string(id))
	}
	now := time.Now()
	p.DeletedAt = &now
	delete(r.bySlug[p.OrgID], p.Slug)
	return nil
}

func (r *ProjectRepository) ListByOrg(_ context.Context, orgID tenancy.OrgID) ([]*project.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*project.Project
	for _, p := range r.byID {
		if p.OrgID == orgID && p.DeletedAt == nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *ProjectRepository) ListAll(_ context.Context) ([]*project.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*project.Project, 0, len(r.byID))
	for _, p := range r.byID {
		if p.DeletedAt != nil {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *ProjectRepository) CreateApiKey(_ context.Context, k *project.ApiKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *k
	cp.RawKey = ""
	r.keys[k.ID] = &cp
	r.byHash[k.KeyHash] = k.ID
	return nil
}

func (r *ProjectRepository) GetApiKeyByHash(_ context.Context, keyHash string) (*project.ApiKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHash[keyHash]
	if !ok {
		return nil, serrors.NotFound("api_key", keyHash)
	}
	cp := *r.keys[id]
	return &cp, nil
}

func (r *ProjectRepository) GetApiKey(_ context.Context, id project.ApiKeyID) (*project.ApiKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[id]
	if !ok {
		return nil, serrors.NotFound("api_key", string(id))
	}
	cp := *k
	return &cp, nil
}

func (r *ProjectRepository) ListApiKeys(_ context.Context, projectID project.ID) ([]*project.ApiKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*project.ApiKey
	for _, k := range r.keys {
		if k.ProjectID == projectID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *ProjectRepository) RevokeApiKey(_ context.Context, id project.ApiKeyID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return serrors.NotFound("api_key", string(id))
	}
	now := time.Now()
	k.RevokedAt = &now
	return nil
}

func (r *ProjectRepository) TouchApiKeyLastUsed(_ context.Context, id project.ApiKeyID, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return serrors.NotFound("api_key", string(id))
	}
	k.LastUsedAt = &when
	return nil
}
