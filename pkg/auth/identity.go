package auth

import (
	"time"
)

// Identity is the verified caller principal derived from a credential. It is
// built once per request or connection and is immutable for its lifetime.
type Identity struct {
	Subject     string
	TenantID    string
	SessionID   string
	Roles       []string
	Permissions []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// HasRole checks if the identity carries the given role.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission checks if the identity carries the given permission.
func (id *Identity) HasPermission(permission string) bool {
	if id == nil {
		return false
	}
	for _, p := range id.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
