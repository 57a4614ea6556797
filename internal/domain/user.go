package domain

import "strings"

// Role is the authorization role carried by a verified credential.
type Role string

// Known roles. Anything unrecognised is treated as RoleUser.
const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole maps a raw role claim onto a known Role, defaulting to RoleUser.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleSuperAdmin:
		return RoleSuperAdmin
	default:
		return RoleUser
	}
}

// Principal is the identity a request acts as. It is produced by the identity
// provider before any call reaches the orchestrator.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the principal holds administrative capability.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// CanAccess reports whether the principal may read a resource owned by ownerID.
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsAdmin() || (p.ID != "" && p.ID == ownerID)
}
