package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/mkosyakov/authcore/internal/apperrors"
	"github.com/mkosyakov/authcore/internal/handlers/middleware"
	"github.com/mkosyakov/authcore/internal/handlers/principal"
	"github.com/mkosyakov/authcore/internal/handlers/render"
	"github.com/mkosyakov/authcore/internal/logger"
	"github.com/mkosyakov/authcore/internal/models"
)

// TokenPairResponse is the body of every endpoint that issues tokens
type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // access token lifetime, seconds
}

func tokenPairResponse(pair models.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		ExpiresIn:    int64(time.Until(pair.Access.ExpiresAt).Round(time.Second).Seconds()),
	}
}

func handleRegister(as authService, l logger.Logger) http.Handler {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RegisterRequest](w, r)
		if err != nil {
			return
		}

		pair, err := as.Register(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			default:
				l.Error("register failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, tokenPairResponse(pair))
	})
}

func handleLogin(as authService, l logger.Logger) http.Handler {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			return
		}

		pair, err := as.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			default:
				l.Error("login failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, tokenPairResponse(pair))
	})
}

func handleTokenRefresh(as authService, l logger.Logger) http.Handler {
	type RefreshRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RefreshRequest](w, r)
		if err != nil {
			return
		}

		pair, err := as.Refresh(r.Context(), data.RefreshToken)
		if err != nil {
			// Reused, expired and unknown all collapse into the same 401:
			// the distinction stays in logs and metrics, where it belongs
			switch {
			case errors.Is(err, apperrors.ErrTokenReused),
				errors.Is(err, apperrors.ErrTokenExpired),
				errors.Is(err, apperrors.ErrTokenInvalid),
				errors.Is(err, apperrors.ErrRefreshTokenNotFound):
				l.Warn("refresh rejected", "reason", err.Error())
				render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
			default:
				l.Error("refresh failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, tokenPairResponse(pair))
	})
}

func handleLogout(as authService, l logger.Logger) http.Handler {
	type LogoutRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LogoutRequest](w, r)
		if err != nil {
			return
		}

		// The access token, when present, gets blacklisted for its
		// remaining life
		access, _ := middleware.BearerFromRequest(r)

		if err := as.Logout(r.Context(), data.RefreshToken, access); err != nil {
			l.Error("logout failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.NoContent(w)
	})
}

func handleLogoutAll(as authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if err := as.LogoutAll(r.Context(), p.User.ID); err != nil {
			l.Error("global logout failed", "user_id", p.User.ID, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.NoContent(w)
	})
}

func handleMe() http.Handler {
	type BindingResponse struct {
		ScopeType  string `json:"scopeType"`
		ScopeID    string `json:"scopeId"`
		Permission string `json:"permission"`
	}
	type MeResponse struct {
		ID          string            `json:"id"`
		Email       string            `json:"email"`
		Role        string            `json:"role"`
		TenantID    string            `json:"tenantId,omitempty"`
		Roles       []string          `json:"roles"`
		Permissions []string          `json:"permissions"`
		Bindings    []BindingResponse `json:"bindings"`
		Universal   bool              `json:"universal"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		resp := MeResponse{
			ID:          p.User.ID.String(),
			Email:       p.User.Email,
			Role:        p.User.Role,
			TenantID:    p.User.TenantID,
			Roles:       make([]string, 0, len(p.Permissions.Roles)),
			Permissions: make([]string, 0, len(p.Permissions.Permissions)),
			Bindings:    make([]BindingResponse, 0, len(p.Permissions.Bindings)),
			Universal:   p.Permissions.Universal,
		}
		for role := range p.Permissions.Roles {
			resp.Roles = append(resp.Roles, role)
		}
		for perm := range p.Permissions.Permissions {
			resp.Permissions = append(resp.Permissions, perm)
		}
		for _, b := range p.Permissions.Bindings {
			resp.Bindings = append(resp.Bindings, BindingResponse{
				ScopeType:  b.ScopeType,
				ScopeID:    b.ScopeID,
				Permission: b.Permission,
			})
		}

		render.JSON(w, resp)
	})
}
