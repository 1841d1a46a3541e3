package middleware

import (
	"fmt"
	"net/http"

	"github.com/mkosyakov/authcore/internal/handlers/principal"
	"github.com/mkosyakov/authcore/internal/handlers/render"
	"github.com/mkosyakov/authcore/internal/rbac"
)

// The Require* middlewares are pure checks over the principal the Auth
// middleware already attached. Permission and scope failures are safe to
// name in the response: the caller is authenticated at this point.

// RequireRole passes when the principal holds any of the allowed roles,
// primary or implied. Role names are canonicalized on both sides.
func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	normalized := make([]string, len(allowedRoles))
	for i, role := range allowedRoles {
		normalized[i] = rbac.Normalize(role)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range normalized {
				if p.Permissions.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}

			render.ServiceError(w, "Insufficient role", http.StatusForbidden)
		})
	}
}

// RequirePermission passes when the effective permission set contains the
// permission. Wildcard roles bypass the lookup inside HasPermission.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	permission = rbac.Normalize(permission)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !p.Permissions.HasPermission(permission) {
				render.ServiceError(w, fmt.Sprintf("Missing permission: %s", permission), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireScopedPermission passes when a binding grants the permission for
// the exact scope instance. The scope id comes from the inbound request
// (e.g. a path parameter), supplied by the calling route via scopeIDFrom.
func RequireScopedPermission(permission string, scopeType string, scopeIDFrom func(*http.Request) string) func(http.Handler) http.Handler {
	permission = rbac.Normalize(permission)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			scopeID := scopeIDFrom(r)
			if !p.Permissions.HasScopedPermission(permission, scopeType, scopeID) {
				render.ServiceError(w, fmt.Sprintf("Missing permission %s for %s", permission, scopeType), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
