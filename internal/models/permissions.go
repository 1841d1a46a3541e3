package models

import (
	"time"

	"github.com/google/uuid"
)

// ScopedGrant gives a user one permission inside a single resource
// instance, e.g. "approve_report" for mission 42 only.
type ScopedGrant struct {
	UserID     uuid.UUID
	ScopeType  string
	ScopeID    string
	Permission string
	CreatedAt  time.Time
}

// EffectivePermissions is the merged authorization state for one user.
// It is derived per request (or served from a short cache), never stored.
type EffectivePermissions struct {
	// Roles holds normalized role names: the primary role plus every role
	// implied by it, transitively.
	Roles map[string]struct{}

	// Permissions is the union of role-implied permissions and the user's
	// own granular grants. Empty when Universal is set.
	Permissions map[string]struct{}

	// Bindings are resource-scoped grants, independent of role.
	Bindings []ScopedGrant

	// Universal marks a wildcard (admin) role: every permission and scope
	// check passes.
	Universal bool
}

// HasRole reports membership of an already-normalized role name.
func (p EffectivePermissions) HasRole(role string) bool {
	_, ok := p.Roles[role]
	return ok
}

func (p EffectivePermissions) HasPermission(permission string) bool {
	if p.Universal {
		return true
	}
	_, ok := p.Permissions[permission]
	return ok
}

// HasScopedPermission reports whether a binding grants permission for the
// exact (scopeType, scopeID) pair. The wildcard bypass applies here too.
func (p EffectivePermissions) HasScopedPermission(permission, scopeType, scopeID string) bool {
	if p.Universal {
		return true
	}
	for _, b := range p.Bindings {
		if b.Permission == permission && b.ScopeType == scopeType && b.ScopeID == scopeID {
			return true
		}
	}
	return false
}
