package auth

import (
	"errors"
	"time"

	"github.com/fleetflow/fleetflow/internal/rbac"
)

var (
	// ErrUnauthorized covers every authentication failure: missing or
	// malformed credential, bad signature, expired token, unknown or
	// deactivated principal. Callers see one generic failure so the
	// response cannot be used to probe which case occurred.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("auth: not found")
)

// Principal is the resolved identity making a request. It is built per
// request from a verified token and never persisted by this layer.
type Principal struct {
	ID     string    `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Role   rbac.Role `json:"role"`
	Active bool      `json:"active"`
}

// Account is a stored user record including the credential hash. Only the
// login path sees it; everything downstream works with Principal.
type Account struct {
	Principal
	PasswordHash string
}

// Context bundles the principal with the raw credential for one request.
// It is owned by that request and passed explicitly by parameter; nothing
// here lives in ambient state.
type Context struct {
	Principal Principal
	Token     string
}

// Session is a stored refresh-token record, kept for rotation and
// revocation.
type Session struct {
	ID           string
	UserID       string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	IP           string
	UserAgent    string
}
