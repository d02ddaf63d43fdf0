package users

import (
	"context"
	"errors"

	"github.com/fleetflow/fleetflow/internal/auth"
	"github.com/fleetflow/fleetflow/internal/rbac"
)

// ErrRoleNotAllowed indicates the actor tried to grant a role above
// their own rank.
var ErrRoleNotAllowed = errors.New("users: role not allowed for actor")

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, in CreateInput, passwordHash string) (*User, error)
	Update(ctx context.Context, id string, in UpdateInput) (*User, error)
	SetRole(ctx context.Context, id string, role rbac.Role) (*User, error)
	Delete(ctx context.Context, id string) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	hasher auth.PasswordHasher
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, hasher auth.PasswordHasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a user. The actor may only grant roles at or below
// their own rank; privileged tiers stay reserved for super admins.
func (s *Service) Create(ctx context.Context, actorRole rbac.Role, in CreateInput) (*User, error) {
	if !in.Role.Valid() {
		in.Role = rbac.RoleCustomer
	}
	if err := checkRoleGrant(actorRole, in.Role); err != nil {
		return nil, err
	}
	in.Email = auth.CanonicalEmail(in.Email)
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, in, hash)
}

// Update applies profile changes.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*User, error) {
	return s.repo.Update(ctx, id, in)
}

// SetRole changes a user's role subject to the same grant rule as Create.
func (s *Service) SetRole(ctx context.Context, actorRole rbac.Role, id string, role rbac.Role) (*User, error) {
	if !role.Valid() {
		return nil, ErrRoleNotAllowed
	}
	if err := checkRoleGrant(actorRole, role); err != nil {
		return nil, err
	}
	return s.repo.SetRole(ctx, id, role)
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// checkRoleGrant rejects grants of SUPER_ADMIN or ADMIN by anyone but a
// super admin.
func checkRoleGrant(actor, granted rbac.Role) error {
	if granted != rbac.RoleSuperAdmin && granted != rbac.RoleAdmin {
		return nil
	}
	if actor == rbac.RoleSuperAdmin {
		return nil
	}
	return ErrRoleNotAllowed
}
