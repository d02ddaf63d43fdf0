package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fleetflow/fleetflow/internal/rbac"
)

const (
	tokenIssuer   = "fleetflow"
	tokenAudience = "fleetflow-users"
)

// Claims is the access-token payload.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenPair is an issued access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// TokenService issues and verifies signed tokens. The gateway depends
// only on this contract; the HS256 implementation below is swappable.
type TokenService interface {
	Issue(principal Principal) (TokenPair, error)
	Verify(raw string) (*Claims, error)
	VerifyRefresh(raw string) (string, error)
}

// JWTTokenService signs access and refresh tokens with separate HS256
// secrets, pinning issuer and audience on both paths.
type JWTTokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewJWTTokenService constructs the service.
func NewJWTTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*JWTTokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("auth: token secrets are required")
	}
	return &JWTTokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

// Issue signs a fresh token pair for the principal.
func (s *JWTTokenService) Issue(principal Principal) (TokenPair, error) {
	now := s.now()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: principal.ID,
		Email:  principal.Email,
		Role:   string(principal.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			Subject:   principal.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	})
	accessToken, err := access.SignedString(s.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign access token: %w", err)
	}

	// The jti keeps pairs issued within the same second distinct, so
	// rotation never collides on the refresh token column.
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		Subject:   principal.ID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
	})
	refreshToken, err := refresh.SignedString(s.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresIn: s.accessTTL}, nil
}

// Verify parses and validates an access token.
func (s *JWTTokenService) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.accessSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: verify access token: %w", err)
	}
	if _, err := rbac.ParseRole(claims.Role); err != nil {
		return nil, fmt.Errorf("auth: verify access token: %w", err)
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its subject.
func (s *JWTTokenService) VerifyRefresh(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.refreshSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("auth: verify refresh token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("auth: refresh token missing subject")
	}
	return claims.Subject, nil
}

var _ TokenService = (*JWTTokenService)(nil)
