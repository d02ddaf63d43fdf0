package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service wraps credential-based login, refresh rotation and revocation.
type Service struct {
	principals PrincipalStore
	sessions   SessionStore
	tokens     TokenService
	hasher     PasswordHasher
	logger     *slog.Logger
	refreshTTL time.Duration
}

// NewService constructs a Service.
func NewService(principals PrincipalStore, sessions SessionStore, tokens TokenService, hasher PasswordHasher, logger *slog.Logger, refreshTTL time.Duration) *Service {
	return &Service{
		principals: principals,
		sessions:   sessions,
		tokens:     tokens,
		hasher:     hasher,
		logger:     logger,
		refreshTTL: refreshTTL,
	}
}

// Login validates email/password credentials and issues a token pair.
// Unknown email, inactive account and wrong password all collapse into
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*TokenPair, *Principal, error) {
	account, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !account.Active {
		return nil, nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(account.Principal)
	if err != nil {
		return nil, nil, err
	}
	if err := s.registerSession(ctx, account.ID, pair.RefreshToken, ip, userAgent); err != nil {
		// The issued pair is still valid; losing the session row only
		// costs server-side revocation for this refresh token.
		if s.logger != nil {
			s.logger.Warn("register session", slog.Any("error", err))
		}
	}
	return &pair, &account.Principal, nil
}

// Refresh rotates a refresh token: the presented token must verify and
// match a live session, which is replaced by a fresh one.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*TokenPair, error) {
	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	session, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil || session.UserID != userID {
		return nil, ErrInvalidCredentials
	}
	principal, err := s.principals.GetByID(ctx, userID)
	if err != nil || !principal.Active {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(*principal)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil && s.logger != nil {
		s.logger.Warn("delete rotated session", slog.Any("error", err))
	}
	if err := s.registerSession(ctx, principal.ID, pair.RefreshToken, ip, userAgent); err != nil && s.logger != nil {
		s.logger.Warn("register session", slog.Any("error", err))
	}
	return &pair, nil
}

// Logout revokes the session behind a refresh token. Unknown tokens are
// not an error; logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.sessions.Delete(ctx, session.ID)
}

// RevokeAll removes every session for a user, for account deactivation.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	return s.sessions.DeleteByUser(ctx, userID)
}

func (s *Service) registerSession(ctx context.Context, userID, refreshToken, ip, userAgent string) error {
	now := time.Now().UTC()
	return s.sessions.Create(ctx, Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.refreshTTL),
		CreatedAt:    now,
		IP:           ip,
		UserAgent:    userAgent,
	})
}
