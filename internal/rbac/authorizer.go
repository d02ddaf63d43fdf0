package rbac

import (
	"errors"
	"strings"
)

// ErrForbidden indicates the caller is authenticated but not allowed.
var ErrForbidden = errors.New("rbac: forbidden")

// Options tune a single authorization decision.
type Options struct {
	// AllowSelf grants access when the caller owns the target resource,
	// regardless of the permission's role set.
	AllowSelf bool
	// RequireOwnership insists that the route resolved an owner for the
	// target resource. When no owner id is available the decision fails
	// closed, even for roles holding the permission.
	RequireOwnership bool
}

// Authorizer decides whether a principal may perform an operation. The
// decision is a pure function of (role, permission, ownership); the
// registry is read-only after construction so no locking is needed.
type Authorizer struct {
	registry *Registry
}

// NewAuthorizer constructs an Authorizer over the given registry.
func NewAuthorizer(registry *Registry) *Authorizer {
	return &Authorizer{registry: registry}
}

// Authorize returns nil when the request may proceed and ErrForbidden
// otherwise. ownerID is the id of the user owning the target resource,
// empty when the route carries none. A role-level grant covers other
// users' resources, except for own-suffixed permissions where ownership
// is the whole point: there the caller must be the owner no matter what
// their role holds.
func (a *Authorizer) Authorize(role Role, userID string, perm Permission, ownerID string, opts Options) error {
	if opts.RequireOwnership && ownerID == "" {
		return ErrForbidden
	}
	if isOwnPermission(perm) {
		if ownerID != "" && ownerID == userID {
			return nil
		}
		return ErrForbidden
	}
	if a.registry.Allows(perm, role) {
		return nil
	}
	if opts.AllowSelf && ownerID != "" && ownerID == userID {
		return nil
	}
	return ErrForbidden
}

func isOwnPermission(perm Permission) bool {
	return strings.HasSuffix(string(perm), OwnSuffix)
}
