package users

import (
	"errors"
	"time"

	"github.com/fleetflow/fleetflow/internal/rbac"
)

// User represents a managed account. Credential material never rides on
// this struct; it stays inside the auth store.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Role      rbac.Role `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	// ErrNotFound indicates no user matches the given id or email.
	ErrNotFound = errors.New("users: not found")
	// ErrEmailTaken indicates a unique-constraint conflict on email.
	ErrEmailTaken = errors.New("users: email already registered")
)

// CreateInput carries fields for registering a new user.
type CreateInput struct {
	Email    string
	Name     string
	Phone    string
	Password string
	Role     rbac.Role
}

// UpdateInput carries mutable profile fields. Nil pointers leave the
// stored value untouched.
type UpdateInput struct {
	Name   *string
	Phone  *string
	Active *bool
}
