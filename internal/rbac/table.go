package rbac

import (
	"strings"
)

// Normalize canonicalizes role and permission names before any set
// membership test. Comparing raw strings bred authorization bugs from
// casing drift ("Admin" vs "admin"), so every lookup goes through here.
func Normalize(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

// Table is the single authority for role semantics: which roles imply
// which, what permissions each role carries, and which roles bypass every
// check. Keeping it in one value keeps the admin bypass auditable.
type Table struct {
	// Implies maps a role to roles it grants membership of
	Implies map[string][]string

	// Permissions maps a role to the permissions it carries
	Permissions map[string][]string

	// Wildcard roles pass every permission and scope check
	Wildcard map[string]struct{}
}

// DefaultTable covers the platform's built-in roles.
func DefaultTable() Table {
	return Table{
		Implies: map[string][]string{
			"internal_admin": {"admin"},
			"office_manager": {"field_operator"},
		},
		Permissions: map[string][]string{
			"field_operator": {
				"view_mission",
				"submit_report",
			},
			"office_manager": {
				"assign_mission",
				"edit_mission",
				"approve_report",
				"view_invoice",
			},
			"accountant": {
				"view_invoice",
				"issue_invoice",
			},
		},
		Wildcard: map[string]struct{}{
			"admin":          {},
			"internal_admin": {},
		},
	}
}

func (t Table) isWildcard(role string) bool {
	_, ok := t.Wildcard[role]
	return ok
}
