package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

// TenancyRepository is an in-memory tenancy.Repository implementation.
type TenancyRepository struct {
	mu       sync.RWMutex
	orgs     map[tenancy.OrgID]*tenancy.Organization
	bySlug   map[string]tenancy.OrgID
	members  map[tenancy.OrgID]map[identity.UserID]*tenancy.Member
	invites  map[tenancy.InviteID]*tenancy.Invite
	byToken  map[string]tenancy.InviteID
	activity map[tenancy.OrgID][]*tenancy.ActivityEntry
	seq      int
}

func NewTenancyRepository() *TenancyRepository {
	return &TenancyRepository{
		orgs:     make(map[tenancy.OrgID]*tenancy.Organization),
		bySlug:   make(map[string]tenancy.OrgID),
		members:  make(map[tenancy.OrgID]map[identity.UserID]*tenancy.Member),
		invites:  make(map[tenancy.InviteID]*tenancy.Invite),
		byToken:  make(map[string]tenancy.InviteID),
		activity: make(map[tenancy.OrgID][]*tenancy.ActivityEntry),
	}
}

func (r *TenancyRepository) CreateOrg(_ context.Context, org *tenancy.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySlug[org.Slug]; ok {
		return serrors.AlreadyExists("organization", org.Slug)
	}
	cp := *org
	r.orgs[org.ID] = &cp
	r.bySlug[org.Slug] = org.ID
	r.members[org.ID] = make(map[identity.UserID]*tenancy.Member)
	return nil
}

func (r *TenancyRepository) GetOrg(_ context.Context, id tenancy.OrgID) (*tenancy.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orgs[id]
	if !ok {
		return nil, serrors.NotFound("organization", string(id))
	}
	cp := *o
	return &cp, nil
}

func (r *TenancyRepository) GetOrgBySlug(_ context.Context, slug string) (*tenancy.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySlug[slug]
	if !ok {
		return nil, serrors.NotFound("organization", slug)
	}
	cp := *r.orgs[id]
	return &cp, nil
}

func (r *TenancyRepository) UpdateOrg(_ context.Context, org *tenancy.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[org.ID]; !ok {
		return serrors.NotFound("organization", string(org.ID))
	}
	cp := *org
	r.orgs[org.ID] = &cp
	return nil
}

func (r *TenancyRepository) SlugTaken(_ context.Context, slug string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySlug[slug]
	return ok, nil
}

func (r *TenancyRepository) AddMember(_ context.Context, m *tenancy.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.OrgID]; !ok {
		r.members[m.OrgID] = make(map[identity.UserID]*tenancy.Member)
	}
	cp := *m
	if cp.LastAccessedAt.IsZero() {
		cp.LastAccessedAt = cp.JoinedAt
	}
	r.members[m.OrgID][m.UserID] = &cp
	return nil
}

func (r *TenancyRepository) GetMember(_ context.Context, orgID tenancy.OrgID, userID identity.UserID) (*tenancy.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[orgID][userID]
	if !ok {
		return nil, serrors.NotFound("member", string(userID))
	}
	cp := *m
	return &cp, nil
}

func (r *TenancyRepository) UpdateMemberRole(_ context.Context, orgID tenancy.OrgID, userID identity.UserID, role tenancy.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[orgID][userID]
	if !ok {
		return serrors.NotFound("member", string(userID))
	}
	m.Role = role
	return nil
}

func (r *TenancyRepository) RemoveMember(_ context.Context, orgID tenancy.OrgID, userID identity.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[orgID], userID)
	return nil
}

func (r *TenancyRepository) ListMembers(_ context.Context, orgID tenancy.OrgID) ([]*tenancy.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*tenancy.Member, 0, len(r.members[orgID]))
	for _, m := range r.members[orgID] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *TenancyRepository) CountOwners(_ context.Context, orgID tenancy.OrgID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.members[orgID] {
		if m.Role == tenancy.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (r *TenancyRepository) UpdateLastAccessed(_ context.Context, orgID tenancy.OrgID, userID identity.UserID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[orgID][userID]
	if !ok {
		return serrors.NotFound("member", string(userID))
	}
	m.LastAccessedAt = at
	return nil
}

// SelectOrgContext picks the membership with the most recent
// LastAccessedAt, falling back to the personal org on ties.
func (r *TenancyRepository) SelectOrgContext(_ context.Context, userID identity.UserID) (*tenancy.Organization, *tenancy.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var bestOrg *tenancy.Organization
	var bestMember *tenancy.Member
	for orgID, members := range r.members {
		m, ok := members[userID]
		if !ok {
			continue
		}
		org, ok := r.orgs[orgID]
		if !ok {
			continue
		}
		if bestMember == nil ||
			m.LastAccessedAt.After(bestMember.LastAccessedAt) ||
			(m.LastAccessedAt.Equal(bestMember.LastAccessedAt) && org.IsPersonal && !bestOrg.IsPersonal) {
			orgCp := *org
			memberCp := *m
			bestOrg = &orgCp
			bestMember = &memberCp
		}
	}
	if bestOrg == nil {
		return nil, nil, serrors.NotFound("organization", string(userID))
	}
	return bestOrg, bestMember, nil
}

// WithinTx is a direct passthrough: the in-memory repository already
// serializes every method behind r.mu, so there is no separate transaction
// to begin.
func (r *TenancyRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *TenancyRepository) ListOrgsForUser(_ context.Context, userID identity.UserID) ([]*tenancy.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*tenancy.Organization
	for orgID, members := range r.members {
		if _, ok := members[userID]; ok {
			if o, ok := r.orgs[orgID]; ok {
				cp := *o
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (r *TenancyRepository) CreateInvite(_ context.Context, inv *tenancy.Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.invites[inv.ID] = &cp
	r.byToken[inv.Token] = inv.ID
	return nil
}

func (r *TenancyRepository) GetInviteByToken(_ context.Context, token string) (*tenancy.Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, serrors.NotFound("invite", token)
	}
	cp := *r.invites[id]
	return &cp, nil
}

func (r *TenancyRepository) ListPendingInvites(_ context.Context, orgID tenancy.OrgID) ([]*tenancy.Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*tenancy.Invite
	for _, inv := range r.invites {
		if inv.OrgID == orgID && inv.Status == tenancy.InvitePending {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *TenancyRepository) UpdateInviteStatus(_ context.Context, id tenancy.InviteID, status tenancy.InviteStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[id]
	if !ok {
		return serrors.NotFound("invite", string(id))
	}
	inv.Status = status
	return nil
}

func (r *TenancyRepository) ExpirePendingInvites(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inv := range r.invites {
		if inv.Status == tenancy.InvitePending && now.After(inv.ExpiresAt) {
			inv.Status = tenancy.InviteExpired
			n++
		}
	}
	return n, nil
}

func (r *TenancyRepository) RecordActivity(_ context.Context, entry *tenancy.ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if entry.ID == "" {
		entry.ID = "act_" + strconv.Itoa(r.seq)
	}
	cp := *entry
	r.activity[entry.OrgID] = append([]*tenancy.ActivityEntry{&cp}, r.activity[entry.OrgID]...)
	return nil
}

func (r *TenancyRepository) ListActivity(_ context.Context, orgID tenancy.OrgID, limit int) ([]*tenancy.ActivityEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.activity[orgID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*tenancy.ActivityEntry, limit)
	copy(out, all[:limit])
	return out, nil
}
