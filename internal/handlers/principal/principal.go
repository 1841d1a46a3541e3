package principal

import (
	"context"

	"github.com/mkosyakov/authcore/internal/models"
)

// Principal is the per-request authenticated state: the verified user and
// their resolved permissions. Rebuilt on every request, never shared.
type Principal struct {
	User        models.User
	Permissions models.EffectivePermissions
}

type ctxKey string

const principalKey ctxKey = "principal"

// New returns a context carrying the principal
func New(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the principal set by the auth middleware
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
