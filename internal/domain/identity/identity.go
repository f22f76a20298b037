// Package identity models human users, credentials, and refresh-token
// sessions bound to a device fingerprint.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserID uniquely identifies a user. Opaque outside this package's
// constructors so callers cannot construct one from an arbitrary string.
type UserID string

// NewUserID generates a fresh UserID.
func NewUserID() UserID { return UserID(uuid.New().String()) }

// RefreshTokenID uniquely identifies a stored refresh token record.
type RefreshTokenID string

// NewRefreshTokenID generates a fresh RefreshTokenID.
func NewRefreshTokenID() RefreshTokenID { return RefreshTokenID(uuid.New().String()) }

// User is a human account. PasswordHash holds the encoded Argon2id output,
// never the raw password.
type User struct {
	ID           UserID
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is a persisted, rotatable session. TokenHash is the SHA-256 of
// the raw refresh token issued to the client; the raw value is never stored.
type RefreshToken struct {
	ID                 RefreshTokenID
	UserID             UserID
	TokenHash          string
	DeviceFingerprint  string
	ExpiresAt          time.Time
	RevokedAt          *time.Time
	CreatedAt          time.Time
}

// Active reports whether the token can still be redeemed.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id UserID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id UserID, passwordHash string) error
	UpdateEmail(ctx context.Context, id UserID, email string) error
}

// RefreshTokenRepository persists refresh-token sessions.
type RefreshTokenRepository interface {
	Create(ctx context.Context, t *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id RefreshTokenID) error
	RevokeAllForUser(ctx context.Context, userID UserID) error
}
