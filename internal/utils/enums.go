package utils

import "fmt"

// ------------------------------------------------------------------------
// RoleType enumerates the roles carried in access tokens.
// ------------------------------------------------------------------------
type RoleType string

const (
	RoleWorker     RoleType = "worker"
	RoleSupervisor RoleType = "supervisor"
	RoleAdmin      RoleType = "admin"
)

// ParseRole converts strings ("worker", "supervisor", "admin") to the enum.
func ParseRole(s string) (RoleType, error) {
	switch RoleType(s) {
	case RoleWorker, RoleSupervisor, RoleAdmin:
		return RoleType(s), nil
	default:
		return "", fmt.Errorf("invalid role: %q", s)
	}
}

// CanScan reports whether the role is allowed to run checkpoint scans.
func (r RoleType) CanScan() bool {
	return r == RoleWorker || r == RoleSupervisor || r == RoleAdmin
}
