package rbac

import (
	"fmt"
	"strings"
)

// Role is one of the closed set of account roles.
type Role string

const (
	RoleSuperAdmin   Role = "SUPER_ADMIN"
	RoleAdmin        Role = "ADMIN"
	RoleFleetManager Role = "FLEET_MANAGER"
	RoleStaff        Role = "STAFF"
	RoleCustomer     Role = "CUSTOMER"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleFleetManager, RoleStaff, RoleCustomer}
}

// ParseRole converts a stored role string into a Role, rejecting unknown values.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleFleetManager, RoleStaff, RoleCustomer:
		return role, nil
	}
	return "", fmt.Errorf("rbac: unknown role %q", value)
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}
