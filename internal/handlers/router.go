package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/mkosyakov/authcore/internal/handlers/middleware"
	"github.com/mkosyakov/authcore/internal/logger"
	"github.com/mkosyakov/authcore/internal/metrics"
	"github.com/mkosyakov/authcore/internal/models"
)

type authService interface {
	// Register user with email and password
	// Has to return apperrors.ErrUserAlreadyExists if email is taken
	Register(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Login user with email and password
	// Has to return apperrors.ErrUserNotFound on bad credentials
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Rotate the refresh token for a new pair
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Revoke the refresh family; blacklist the access token if present
	Logout(ctx context.Context, refresh string, access string) error

	// Bump auth-version: every outstanding access token dies
	LogoutAll(ctx context.Context, userID uuid.UUID) error

	// Resolve a bearer token into user and effective permissions
	Authenticate(ctx context.Context, bearer string) (models.User, models.EffectivePermissions, error)
}

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Login attempts allowed per client IP
	LoginRateBurst     int
	LoginRatePerSecond int
}

func NewRouter(as authService, cfg RouterConfig, l logger.Logger) http.Handler {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	if cfg.LoginRateBurst == 0 {
		cfg.LoginRateBurst = 10
	}
	if cfg.LoginRatePerSecond == 0 {
		cfg.LoginRatePerSecond = 5
	}

	withAuth := middleware.Auth(as)
	loginLimit := middleware.RateLimit(cfg.LoginRateBurst, cfg.LoginRatePerSecond)

	authMux := http.NewServeMux()
	authMux.Handle("POST /register", chain(handleRegister(as, l), loginLimit))
	authMux.Handle("POST /login", chain(handleLogin(as, l), loginLimit))
	authMux.Handle("POST /refresh", handleTokenRefresh(as, l))
	authMux.Handle("POST /logout", handleLogout(as, l))
	authMux.Handle("POST /logout-all", withAuth(handleLogoutAll(as, l)))
	authMux.Handle("GET /me", withAuth(handleMe()))

	root := http.NewServeMux()
	root.Handle("/auth/", http.StripPrefix("/auth", authMux))
	root.Handle("GET /metrics", metrics.Handler())

	return chain(root, middleware.Logger(l))
}
