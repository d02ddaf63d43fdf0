package rbac

import (
	"fmt"
	"strings"
)

// Permission names a capability gating one operation.
type Permission string

// OwnSuffix marks permissions granted through resource ownership rather
// than role membership.
const OwnSuffix = ".own"

const (
	PermUsersRead   Permission = "users.read"
	PermUsersCreate Permission = "users.create"
	PermUsersUpdate Permission = "users.update"
	PermUsersDelete Permission = "users.delete"

	PermVehiclesRead   Permission = "vehicles.read"
	PermVehiclesCreate Permission = "vehicles.create"
	PermVehiclesUpdate Permission = "vehicles.update"
	PermVehiclesDelete Permission = "vehicles.delete"

	PermBookingsRead   Permission = "bookings.read"
	PermBookingsCreate Permission = "bookings.create"
	PermBookingsUpdate Permission = "bookings.update"
	PermBookingsCancel Permission = "bookings.cancel"

	PermPaymentsRead    Permission = "payments.read"
	PermPaymentsProcess Permission = "payments.process"
	PermPaymentsRefund  Permission = "payments.refund"

	PermAnalyticsRead Permission = "analytics.read"

	PermBookingsReadOwn Permission = "bookings.read.own"
	PermPaymentsReadOwn Permission = "payments.read.own"
)

// AllPermissions lists every permission the application declares. The
// registry must cover each of them; NewRegistry enforces this at startup.
func AllPermissions() []Permission {
	return []Permission{
		PermUsersRead, PermUsersCreate, PermUsersUpdate, PermUsersDelete,
		PermVehiclesRead, PermVehiclesCreate, PermVehiclesUpdate, PermVehiclesDelete,
		PermBookingsRead, PermBookingsCreate, PermBookingsUpdate, PermBookingsCancel,
		PermPaymentsRead, PermPaymentsProcess, PermPaymentsRefund,
		PermAnalyticsRead,
		PermBookingsReadOwn, PermPaymentsReadOwn,
	}
}

// Registry maps permissions to the role sets allowed to hold them. It is
// immutable after construction and safe for concurrent reads.
type Registry struct {
	grants map[Permission]map[Role]struct{}
}

// defaultGrants is the static permission table for the platform.
func defaultGrants() map[Permission][]Role {
	return map[Permission][]Role{
		PermUsersRead:   {RoleSuperAdmin, RoleAdmin},
		PermUsersCreate: {RoleSuperAdmin, RoleAdmin},
		PermUsersUpdate: {RoleSuperAdmin, RoleAdmin},
		PermUsersDelete: {RoleSuperAdmin},

		PermVehiclesRead:   {RoleSuperAdmin, RoleAdmin, RoleFleetManager, RoleStaff},
		PermVehiclesCreate: {RoleSuperAdmin, RoleAdmin, RoleFleetManager},
		PermVehiclesUpdate: {RoleSuperAdmin, RoleAdmin, RoleFleetManager},
		PermVehiclesDelete: {RoleSuperAdmin, RoleAdmin},

		PermBookingsRead:   {RoleSuperAdmin, RoleAdmin, RoleFleetManager, RoleStaff},
		PermBookingsCreate: {RoleSuperAdmin, RoleAdmin, RoleStaff, RoleCustomer},
		PermBookingsUpdate: {RoleSuperAdmin, RoleAdmin, RoleStaff},
		PermBookingsCancel: {RoleSuperAdmin, RoleAdmin, RoleStaff, RoleCustomer},

		PermPaymentsRead:    {RoleSuperAdmin, RoleAdmin, RoleStaff},
		PermPaymentsProcess: {RoleSuperAdmin, RoleAdmin, RoleStaff},
		PermPaymentsRefund:  {RoleSuperAdmin, RoleAdmin},

		PermAnalyticsRead: {RoleSuperAdmin, RoleAdmin, RoleFleetManager},

		PermBookingsReadOwn: {RoleCustomer},
		PermPaymentsReadOwn: {RoleCustomer},
	}
}

// NewRegistry builds the default registry and verifies it is complete:
// every declared permission has an entry and every granted role parses.
func NewRegistry() (*Registry, error) {
	return newRegistry(defaultGrants())
}

func newRegistry(table map[Permission][]Role) (*Registry, error) {
	grants := make(map[Permission]map[Role]struct{}, len(table))
	for perm, roles := range table {
		if strings.TrimSpace(string(perm)) == "" {
			return nil, fmt.Errorf("rbac: empty permission name in registry")
		}
		set := make(map[Role]struct{}, len(roles))
		for _, role := range roles {
			if !role.Valid() {
				return nil, fmt.Errorf("rbac: permission %q grants unknown role %q", perm, role)
			}
			set[role] = struct{}{}
		}
		grants[perm] = set
	}
	for _, perm := range AllPermissions() {
		if _, ok := grants[perm]; !ok {
			return nil, fmt.Errorf("rbac: permission %q declared but not registered", perm)
		}
	}
	return &Registry{grants: grants}, nil
}

// Allows reports whether role is in the allowed set for perm. Unregistered
// permissions resolve to the empty set, so lookups fail closed.
func (reg *Registry) Allows(perm Permission, role Role) bool {
	set, ok := reg.grants[perm]
	if !ok {
		return false
	}
	_, ok = set[role]
	return ok
}

// Registered reports whether perm has an entry in the registry.
func (reg *Registry) Registered(perm Permission) bool {
	_, ok := reg.grants[perm]
	return ok
}

// Permissions returns the registered permission names, for introspection
// endpoints and seeds.
func (reg *Registry) Permissions() []Permission {
	perms := make([]Permission, 0, len(reg.grants))
	for perm := range reg.grants {
		perms = append(perms, perm)
	}
	return perms
}
