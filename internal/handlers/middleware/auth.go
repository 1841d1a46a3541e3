package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mkosyakov/authcore/internal/apperrors"
	"github.com/mkosyakov/authcore/internal/handlers/principal"
	"github.com/mkosyakov/authcore/internal/handlers/render"
	"github.com/mkosyakov/authcore/internal/models"
)

type authService interface {
	Authenticate(ctx context.Context, bearer string) (models.User, models.EffectivePermissions, error)
}

// BearerFromRequest extracts the access token from the Authorization header
func BearerFromRequest(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// Auth verifies the bearer token, resolves permissions and attaches the
// principal to the request context. Credential failures of every flavor
// collapse into one generic 401; only dependency outages surface as 503 so
// callers can tell infrastructure trouble from bad tokens.
func Auth(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := BearerFromRequest(r)
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, perms, err := as.Authenticate(r.Context(), bearer)
			if err != nil {
				if errors.Is(err, apperrors.ErrUnavailable) {
					render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
					return
				}
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := principal.New(r.Context(), principal.Principal{User: user, Permissions: perms})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
