package enums

import (
	"fmt"
	"strings"
)

// Role is the organization-level role carried by a representative account.
type Role string

const (
	RoleOrgAdmin Role = "org_admin"
	RoleAdmin    Role = "admin"
	RoleSalesRep Role = "sales_rep"
	RoleHOD      Role = "hod"
	RoleOwner    Role = "owner"
)

var validRoles = []Role{
	RoleOrgAdmin,
	RoleAdmin,
	RoleSalesRep,
	RoleHOD,
	RoleOwner,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsManagement reports roles that act on other representatives' data.
func (r Role) IsManagement() bool {
	switch r {
	case RoleOrgAdmin, RoleAdmin, RoleHOD, RoleOwner:
		return true
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
