package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkosyakov/authcore/internal/models"
	"github.com/mkosyakov/authcore/internal/repository"
)

// Resolver computes effective permissions for a user: a pure function of
// the role table, the user row and the scoped grant records.
type Resolver struct {
	table  Table
	grants repository.GrantRepo
}

func NewResolver(table Table, grants repository.GrantRepo) (*Resolver, error) {
	if grants == nil {
		return nil, errors.New("grant repo must not be nil")
	}
	return &Resolver{table: table, grants: grants}, nil
}

// Resolve expands the primary role to a fixed point over the implies
// table, unions role-implied and user-granted permissions, and attaches
// the user's scoped bindings.
func (r *Resolver) Resolve(ctx context.Context, user models.User) (models.EffectivePermissions, error) {
	eff := models.EffectivePermissions{
		Roles:       map[string]struct{}{},
		Permissions: map[string]struct{}{},
	}

	// Role expansion. Visited set keeps implication cycles terminating.
	queue := []string{Normalize(user.Role)}
	for len(queue) > 0 {
		role := queue[0]
		queue = queue[1:]

		if _, seen := eff.Roles[role]; seen {
			continue
		}
		eff.Roles[role] = struct{}{}

		if r.table.isWildcard(role) {
			eff.Universal = true
		}

		for _, implied := range r.table.Implies[role] {
			queue = append(queue, Normalize(implied))
		}
	}

	// A wildcard role holds the universal permission set; enumerating it
	// or loading bindings adds nothing.
	if eff.Universal {
		eff.Permissions = nil
		return eff, nil
	}

	for role := range eff.Roles {
		for _, perm := range r.table.Permissions[role] {
			eff.Permissions[Normalize(perm)] = struct{}{}
		}
	}
	for _, perm := range user.Permissions {
		eff.Permissions[Normalize(perm)] = struct{}{}
	}

	bindings, err := r.grants.ListForUser(ctx, user.ID)
	if err != nil {
		return eff, fmt.Errorf("error loading scoped grants: %w", err)
	}
	for i := range bindings {
		bindings[i].Permission = Normalize(bindings[i].Permission)
	}
	eff.Bindings = bindings

	return eff, nil
}
