package enums

import (
	"fmt"
	"strings"
)

// AdminRole scopes what an admin token may do.
type AdminRole string

const (
	AdminRoleOwner   AdminRole = "owner"
	AdminRoleSupport AdminRole = "support"
)

func (r AdminRole) IsValid() bool {
	return r == AdminRoleOwner || r == AdminRoleSupport
}

// CanMoveMoney reports whether the role may capture or refund payments.
func (r AdminRole) CanMoveMoney() bool {
	return r == AdminRoleOwner
}

func ParseAdminRole(value string) (AdminRole, error) {
	role := AdminRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid admin role %q", value)
	}
	return role, nil
}
