// Package auth implements user registration, login, token refresh, and
// credential changes for the human-facing side of the service.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

// OrgProvisioner is the slice of the Tenancy component that Identity &
// Credentials depends on: the personal organization every new user is
// granted at registration, and the org-context selection login reports
// alongside its tokens. Implemented by tenancy.Service.
type OrgProvisioner interface {
	CreatePersonalOrg(ctx context.Context, name string, ownerID identity.UserID) (*tenancy.Organization, error)
	SelectOrgContext(ctx context.Context, userID identity.UserID) (*tenancy.Organization, tenancy.Role, error)
}

// Service implements the Identity & Credentials component: registration,
// login, refresh-token rotation bound to a device fingerprint, logout, and
// credential changes.
type Service struct {
	users  identity.Repository
	tokens identity.RefreshTokenRepository
	orgs   OrgProvisioner
	hasher *PasswordHasher
	jwt    *TokenService
	logger *logging.Logger
}

// NewService constructs the auth service.
func NewService(users identity.Repository, tokens identity.RefreshTokenRepository, orgs OrgProvisioner, hasher *PasswordHasher, jwtSvc *TokenService, logger *logging.Logger) *Service {
	return &Service{users: users, tokens: tokens, orgs: orgs, hasher: hasher, jwt: jwtSvc, logger: logger}
}

// TokenPair is the access/refresh token response issued at login, refresh,
// and registration. OrgID/OrgRole carry the selected org context (§4.A
// "selects an org context") alongside the tokens; they are not embedded in
// the JWTs themselves since a user may belong to several organizations with
// different roles (see DESIGN.md).
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	OrgID        string
	OrgRole      string
}

// Register creates a new user, provisions their personal organization, and
// issues an initial token pair. Organization provisioning is not a
// best-effort side effect: if it fails, registration fails as a whole
// rather than leaving a user with zero personal orgs.
func (s *Service) Register(ctx context.Context, email, password, displayName, deviceFingerprint string) (*identity.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, serrors.InvalidFormat("email", "a valid email address")
	}
	if len(password) < 8 {
		return nil, nil, serrors.InvalidInput("password", "must be at least 8 characters")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	user := &identity.User{
		ID:           identity.NewUserID(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	orgName := displayName
	if strings.TrimSpace(orgName) == "" {
		orgName = email
	}
	org, err := s.orgs.CreatePersonalOrg(ctx, orgName+"'s workspace", user.ID)
	if err != nil {
		return nil, nil, serrors.Internal("failed to provision personal organization", err)
	}

	pair, err := s.issueTokenPair(ctx, user, deviceFingerprint)
	if err != nil {
		return nil, nil, err
	}
	pair.OrgID = string(org.ID)
	pair.OrgRole = "owner"
	return user, pair, nil
}

// Login verifies credentials and issues a token pair. It always performs a
// password verification — against the real hash on a known email, or
// against a precomputed dummy hash on an unknown one — so the response time
// does not leak whether the email exists.
func (s *Service) Login(ctx context.Context, email, password, deviceFingerprint string) (*identity.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)

	hashToCheck := dummyHash
	found := err == nil
	if found {
		hashToCheck = user.PasswordHash
	}

	ok, verifyErr := s.hasher.Verify(password, hashToCheck)
	if verifyErr != nil || !ok || !found {
		s.logger.LogSecurityEvent(ctx, "login_failed", map[string]interface{}{"email": email})
		return nil, nil, serrors.Unauthorized("invalid email or password")
	}

	pair, err := s.issueTokenPair(ctx, user, deviceFingerprint)
	if err != nil {
		return nil, nil, err
	}
	if org, role, ctxErr := s.orgs.SelectOrgContext(ctx, user.ID); ctxErr == nil {
		pair.OrgID = string(org.ID)
		pair.OrgRole = string(role)
	} else {
		s.logger.WithContext(ctx).WithError(ctxErr).Warn("no org context available at login")
	}
	return user, pair, nil
}

// Refresh rotates a refresh token. The new refresh token is bound to the
// same device fingerprint as the one being redeemed; if the caller presents
// a different fingerprint than the one the token was issued with, the whole
// session is revoked (self-revoking on device mismatch).
func (s *Service) Refresh(ctx context.Context, rawRefreshToken, deviceFingerprint string) (*TokenPair, error) {
	claims, err := s.jwt.ParseRefreshToken(rawRefreshToken)
	if err != nil {
		return nil, err
	}

	hash := hashToken(rawRefreshToken)
	stored, err := s.tokens.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, serrors.InvalidToken(err)
	}
	if !stored.Active(time.Now()) {
		return nil, serrors.TokenExpired()
	}
	if stored.DeviceFingerprint != "" && stored.DeviceFingerprint != deviceFingerprint {
		_ = s.tokens.RevokeAllForUser(ctx, stored.UserID)
		s.logger.LogSecurityEvent(ctx, "refresh_device_mismatch", map[string]interface{}{"user_id": string(stored.UserID)})
		return nil, serrors.Unauthorized("session revoked: device mismatch")
	}
	_ = s.tokens.Revoke(ctx, stored.ID)

	user, err := s.users.GetByID(ctx, identity.UserID(claims.UserID))
	if err != nil {
		return nil, err
	}
	return s.issueTokenPair(ctx, user, deviceFingerprint)
}

// Logout revokes all refresh-token sessions for the user.
func (s *Service) Logout(ctx context.Context, userID identity.UserID) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// IssueTokensFor re-issues a fresh token pair for an already-authenticated
// user, annotated with the given org context. Used by the org-switch
// endpoint, which re-issues tokens reflecting the newly selected org
// without requiring the caller to re-enter credentials.
func (s *Service) IssueTokensFor(ctx context.Context, userID identity.UserID, deviceFingerprint, orgID, orgRole string) (*TokenPair, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	pair, err := s.issueTokenPair(ctx, user, deviceFingerprint)
	if err != nil {
		return nil, err
	}
	pair.OrgID = orgID
	pair.OrgRole = orgRole
	return pair, nil
}

// GetUser fetches the authenticated user's profile.
func (s *Service) GetUser(ctx context.Context, userID identity.UserID) (*identity.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ChangePassword verifies the current password and stores a new hash,
// revoking every refresh-token session of the user.
func (s *Service) ChangePassword(ctx context.Context, userID identity.UserID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return serrors.Unauthorized("current password is incorrect")
	}
	if len(newPassword) < 8 {
		return serrors.InvalidInput("password", "must be at least 8 characters")
	}
	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// ChangeEmail updates the user's email address after verifying the password.
func (s *Service) ChangeEmail(ctx context.Context, userID identity.UserID, newEmail, password string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return serrors.Unauthorized("password is incorrect")
	}
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if !strings.Contains(newEmail, "@") {
		return serrors.InvalidFormat("email", "a valid email address")
	}
	return s.users.UpdateEmail(ctx, userID, newEmail)
}

func (s *Service) issueTokenPair(ctx context.Context, user *identity.User, deviceFingerprint string) (*TokenPair, error) {
	access, expiresAt, err := s.jwt.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refresh, refreshExpiresAt, err := s.jwt.IssueRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	record := &identity.RefreshToken{
		ID:                identity.NewRefreshTokenID(),
		UserID:            user.ID,
		TokenHash:         hashToken(refresh),
		DeviceFingerprint: deviceFingerprint,
		ExpiresAt:         refreshExpiresAt,
		CreatedAt:         time.Now(),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
