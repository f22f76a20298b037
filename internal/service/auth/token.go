package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/identity"
)

// TokenType distinguishes access tokens from refresh tokens so a refresh
// token can never be replayed as an access token and vice versa.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the JWT payload issued for both access and refresh tokens.
type Claims struct {
	UserID string    `json:"user_id"`
	Email  string    `json:"email"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and parses access/refresh JWTs with independent
// secrets, mirroring the teacher's jwt.NewWithClaims / ParseWithClaims idiom.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService constructs a token service from configured secrets/TTLs.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccessToken signs a short-lived access token for userID.
func (s *TokenService) IssueAccessToken(userID identity.UserID, email string) (string, time.Time, error) {
	return s.issue(userID, email, TokenAccess, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for userID.
func (s *TokenService) IssueRefreshToken(userID identity.UserID, email string) (string, time.Time, error) {
	return s.issue(userID, email, TokenRefresh, s.refreshSecret, s.refreshTTL)
}

func (s *TokenService) issue(userID identity.UserID, email string, typ TokenType, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		UserID: string(userID),
		Email:  email,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   string(userID),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, serrors.Internal("failed to sign token", err)
	}
	return signed, expiresAt, nil
}

// ParseAccessToken validates and parses an access token.
func (s *TokenService) ParseAccessToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, TokenAccess, s.accessSecret)
}

// ParseRefreshToken validates and parses a refresh token.
func (s *TokenService) ParseRefreshToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, TokenRefresh, s.refreshSecret)
}

func (s *TokenService) parse(tokenString string, want TokenType, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, serrors.InvalidToken(nil)
		}
		return secret, nil
	})
	if err != nil {
		return nil, serrors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, serrors.InvalidToken(nil)
	}
	if claims.Type != want {
		return nil, serrors.InvalidToken(nil)
	}
	return claims, nil
}
