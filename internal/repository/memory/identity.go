// Package memory provides in-memory repository implementations satisfying
// the domain repository interfaces, used for fast service-layer tests in
// place of a live Postgres database.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/identity"
)

// IdentityRepository is an in-memory identity.Repository +
// identity.RefreshTokenRepository implementation.
type IdentityRepository struct {
	mu     sync.RWMutex
	users  map[identity.UserID]*identity.User
	byMail map[string]identity.UserID
	tokens map[identity.RefreshTokenID]*identity.RefreshToken
	byHash map[string]identity.RefreshTokenID
}

// NewIdentityRepository constructs an empty in-memory repository.
func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{
		users:  make(map[identity.UserID]*identity.User),
		byMail: make(map[string]identity.UserID),
		tokens: make(map[identity.RefreshTokenID]*identity.RefreshToken),
		byHash: make(map[string]identity.RefreshTokenID),
	}
}

func (r *IdentityRepository) Create(_ context.Context, u *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := r.byMail[key]; ok {
		return serrors.AlreadyExists("user", u.Email)
	}
	cp := *u
	r.users[u.ID] = &cp
	r.byMail[key] = u.ID
	return nil
}

func (r *IdentityRepository) GetByID(_ context.Context, id identity.UserID) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, serrors.NotFound("user", string(id))
	}
	cp := *u
	return &cp, nil
}

func (r *IdentityRepository) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byMail[strings.ToLower(email)]
	if !ok {
		return nil, serrors.NotFound("user", email)
	}
	cp := *r.users[id]
	return &cp, nil
}

func (r *IdentityRepository) UpdatePassword(_ context.Context, id identity.UserID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return serrors.NotFound("user", string(id))
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *IdentityRepository) UpdateEmail(_ context.Context, id identity.UserID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return serrors.NotFound("user", string(id))
	}
	newKey := strings.ToLower(email)
	if other, ok := r.byMail[newKey]; ok && other != id {
		return serrors.AlreadyExists("user", email)
	}
	delete(r.byMail, strings.ToLower(u.Email))
	u.Email = email
	r.byMail[newKey] = id
	return nil
}

func (r *IdentityRepository) CreateRefreshToken(_ context.Context, t *identity.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.ID] = &cp
	r.byHash[t.TokenHash] = t.ID
	return nil
}

// GetByTokenHash looks up a refresh token by the SHA-256 hash of its raw value.
func (r *IdentityRepository) GetByTokenHash(_ context.Context, tokenHash string) (*identity.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, serrors.NotFound("refresh_token", tokenHash)
	}
	cp := *r.tokens[id]
	return &cp, nil
}

func (r *IdentityRepository) Revoke(_ context.Context, id identity.RefreshTokenID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return serrors.NotFound("refresh_token", string(id))
	}
	revoked := time.Now()
	t.RevokedAt = &revoked
	return nil
}

func (r *IdentityRepository) RevokeAllForUser(_ context.Context, userID identity.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	revoked := time.Now()
	for _, t := range r.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &revoked
		}
	}
	return nil
}

// Tokens returns a RefreshTokenRepository view over this repository. The
// refresh-token methods are exposed through this adapter rather than direct
// method promotion because CreateRefreshToken's natural name (Create) would
// otherwise collide with the user repository's Create.
func (r *IdentityRepository) Tokens() identity.RefreshTokenRepository { return refreshAdapter{r} }

type refreshAdapter struct{ r *IdentityRepository }

func (a refreshAdapter) Create(ctx context.Context, t *identity.RefreshToken) error {
	return a.r.CreateRefreshToken(ctx, t)
}
func (a refreshAdapter) GetByTokenHash(ctx context.Context, h string) (*identity.RefreshToken, error) {
	return a.r.GetByTokenHash(ctx, h)
}
func (a refreshAdapter) Revoke(ctx context.Context, id identity.RefreshTokenID) error {
	return a.r.Revoke(ctx, id)
}
func (a refreshAdapter) RevokeAllForUser(ctx context.Context, userID identity.UserID) error {
	return a.r.RevokeAllForUser(ctx, userID)
}
