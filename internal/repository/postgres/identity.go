// Package postgres provides Postgres-backed implementations of the domain
// repository interfaces, built on jmoiron/sqlx over lib/pq, mirroring the
// in-memory repositories' semantics against a real database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/identity"
)

// IdentityRepository is a Postgres-backed identity.Repository +
// identity.RefreshTokenRepository implementation.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository constructs a Postgres identity repository.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	DisplayName  string    `db:"display_name"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row userRow) toDomain() *identity.User {
	return &identity.User{
		ID:           identity.UserID(row.ID),
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		DisplayName:  row.DisplayName,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func (r *IdentityRepository) Create(ctx context.Context, u *identity.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.PasswordHash, u.DisplayName, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return serrors.AlreadyExists("user", u.Email)
	}
	if err != nil {
		return serrors.DatabaseError("identity.Create", err)
	}
	return nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id identity.UserID) (*identity.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, email, password_hash, display_name, created_at, updated_at
		FROM users WHERE id = $1
	`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("user", string(id))
	}
	if err != nil {
		return nil, serrors.DatabaseError("identity.GetByID", err)
	}
	return row.toDomain(), nil
}

func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, email, password_hash, display_name, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)
	`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("user", email)
	}
	if err != nil {
		return nil, serrors.DatabaseError("identity.GetByEmail", err)
	}
	return row.toDomain(), nil
}

func (r *IdentityRepository) UpdatePassword(ctx context.Context, id identity.UserID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2
	`, passwordHash, string(id))
	return requireRowUpdated(res, err, "user", string(id))
}

func (r *IdentityRepository) UpdateEmail(ctx context.Context, id identity.UserID, email string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET email = $1, updated_at = now() WHERE id = $2
	`, email, string(id))
	if isUniqueViolation(err) {
		return serrors.AlreadyExists("user", email)
	}
	return requireRowUpdated(res, err, "user", string(id))
}

type refreshTokenRow struct {
	ID                string       `db:"id"`
	UserID            string       `db:"user_id"`
	TokenHash         string       `db:"token_hash"`
	DeviceFingerprint string       `db:"device_fingerprint"`
	ExpiresAt         time.Time    `db:"expires_at"`
	RevokedAt         sql.NullTime `db:"revoked_at"`
	CreatedAt         time.Time    `db:"created_at"`
}

func (row refreshTokenRow) toDomain() *identity.RefreshToken {
	t := &identity.RefreshToken{
		ID:                identity.RefreshTokenID(row.ID),
		UserID:            identity.UserID(row.UserID),
		TokenHash:         row.TokenHash,
		DeviceFingerprint: row.DeviceFingerprint,
		ExpiresAt:         row.ExpiresAt,
		CreatedAt:         row.CreatedAt,
	}
	if row.RevokedAt.Valid {
		t.RevokedAt = &row.RevokedAt.Time
	}
	return t
}

// CreateRefreshToken persists a refresh token. Kept as a distinct method
// name (rather than Create) for the same reason the in-memory repository
// does: it avoids colliding with the user repository's Create when both are
// satisfied by the same underlying type.
func (r *IdentityRepository) CreateRefreshToken(ctx context.Context, t *identity.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, device_fingerprint, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.UserID, t.TokenHash, t.DeviceFingerprint, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return serrors.DatabaseError("identity.CreateRefreshToken", err)
	}
	return nil
}

func (r *IdentityRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*identity.RefreshToken, error) {
	var row refreshTokenRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, token_hash, device_fingerprint, expires_at, revoked_at, created_at
		FROM refresh_tokens WHERE token_hash = $1
	`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("refresh_token", tokenHash)
	}
	if err != nil {
		return nil, serrors.DatabaseError("identity.GetByTokenHash", err)
	}
	return row.toDomain(), nil
}

func (r *IdentityRepository) Revoke(ctx context.Context, id identity.RefreshTokenID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1
	`, string(id))
	return requireRowUpdated(res, err, "refresh_token", string(id))
}

func (r *IdentityRepository) RevokeAllForUser(ctx context.Context, userID identity.UserID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, string(userID))
	if err != nil {
		return serrors.DatabaseError("identity.RevokeAllForUser", err)
	}
	return nil
}

// Tokens returns a RefreshTokenRepository view over this repository, mirroring
// the in-memory repository's adapter so wiring code at the composition root
// can satisfy both interfaces from one concrete type.
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
