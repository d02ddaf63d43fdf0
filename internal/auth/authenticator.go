package auth

import (
	"context"
	"log/slog"
	"strings"
)

const bearerPrefix = "Bearer "

// Authenticator resolves a bearer credential to an active principal.
type Authenticator struct {
	tokens     TokenService
	principals PrincipalStore
	logger     *slog.Logger
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(tokens TokenService, principals PrincipalStore, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, principals: principals, logger: logger}
}

// Authenticate verifies the Authorization header value and resolves the
// token subject. Every failure path returns ErrUnauthorized; the concrete
// reason is logged server-side only.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (*Context, error) {
	raw, ok := BearerToken(authorization)
	if !ok {
		// Missing or malformed header never reaches the token service.
		return nil, ErrUnauthorized
	}

	claims, err := a.tokens.Verify(raw)
	if err != nil {
		a.debug("token verification failed", err)
		return nil, ErrUnauthorized
	}

	principal, err := a.principals.GetByID(ctx, claims.UserID)
	if err != nil {
		a.debug("principal lookup failed", err)
		return nil, ErrUnauthorized
	}
	if !principal.Active {
		a.debug("principal inactive", nil)
		return nil, ErrUnauthorized
	}

	return &Context{Principal: *principal, Token: raw}, nil
}

func (a *Authenticator) debug(msg string, err error) {
	if a.logger == nil {
		return
	}
	if err != nil {
		a.logger.Debug(msg, slog.Any("error", err))
		return
	}
	a.logger.Debug(msg)
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(authorization string) (string, bool) {
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(authorization[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
