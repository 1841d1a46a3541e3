package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mkosyakov/authcore/internal/apperrors"
	"github.com/mkosyakov/authcore/internal/cache"
	"github.com/mkosyakov/authcore/internal/logger"
	"github.com/mkosyakov/authcore/internal/metrics"
	"github.com/mkosyakov/authcore/internal/models"
	"github.com/mkosyakov/authcore/internal/rbac"
	"github.com/mkosyakov/authcore/internal/repository"
)

const defaultRole = "field_operator"

type Config struct {
	// Hasher for registration and login. Defaults to BcryptHasher.
	Hasher PasswordHasher

	// DemoToken enables the sandbox bypass when non-empty. Must stay empty
	// in every deployment that is not explicitly a demo environment.
	DemoToken string
}

// Service ties the token manager, credential store, cache and permission
// resolver into the operations the HTTP layer consumes.
type Service struct {
	tokens   *TokenManager
	hasher   PasswordHasher
	users    repository.UserRepo
	resolver *rbac.Resolver
	cache    *cache.Cache
	demo     *DemoAccess
	logger   logger.Logger
}

func NewService(cfg Config, tokens *TokenManager, users repository.UserRepo, resolver *rbac.Resolver, c *cache.Cache, l logger.Logger) (*Service, error) {
	if tokens == nil || users == nil || resolver == nil || c == nil {
		return nil, errors.New("token manager, user repo, resolver and cache must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		tokens:   tokens,
		hasher:   hasher,
		users:    users,
		resolver: resolver,
		cache:    c,
		demo:     NewDemoAccess(cfg.DemoToken),
		logger:   l,
	}, nil
}

func (s *Service) Register(ctx context.Context, email string, password string) (models.TokenPair, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.users.CreateUser(ctx, repository.CreateUserParams{
		Email:          email,
		HashedPassword: hash,
		Role:           defaultRole,
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not be generated: %w", err)
	}

	return pair, nil
}

func (s *Service) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn a compare anyway so unknown emails cost the same as bad passwords
		_ = s.hasher.Compare("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinval", password)
		metrics.LoginAttempts.WithLabelValues("unauthorized").Inc()
		return models.TokenPair{}, apperrors.ErrUserNotFound
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		metrics.LoginAttempts.WithLabelValues("unauthorized").Inc()
		return models.TokenPair{}, apperrors.ErrUserNotFound
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return models.TokenPair{}, fmt.Errorf("token could not be generated: %w", err)
	}

	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	return pair, nil
}

// Refresh rotates the presented refresh token for a new pair. Failures keep
// their internal distinction (invalid, expired, reused) for logs and
// metrics; the HTTP layer collapses them into one generic unauthorized.
func (s *Service) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	return s.tokens.Rotate(ctx, refresh)
}

// Logout revokes the refresh family and, when the still-live access token
// accompanies the request, blacklists it for its remaining lifetime.
// Calling it twice with the same refresh token is safe.
func (s *Service) Logout(ctx context.Context, refresh string, access string) error {
	if err := s.tokens.RevokeByRefresh(ctx, refresh); err != nil {
		return fmt.Errorf("error revoking refresh family: %w", err)
	}

	if access != "" {
		if err := s.tokens.BlacklistAccess(ctx, access); err != nil {
			// A malformed access token shouldn't block logout; the refresh
			// family is already dead
			s.logger.Warn("could not blacklist access token on logout", "error", err.Error())
		}
	}

	return nil
}

// LogoutAll bumps the user's auth-version, killing every outstanding access
// token at its next verification, and drops the cached user row so the new
// version is visible immediately.
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	version, err := s.users.BumpAuthVersion(ctx, userID)
	if err != nil {
		return fmt.Errorf("error bumping auth version: %w", err)
	}

	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		// The stale row ages out within the cache TTL anyway
		s.logger.Warn("could not invalidate cached user", "user_id", userID, "error", err.Error())
	}

	s.logger.Info("global logout", "user_id", userID, "auth_version", version)
	return nil
}

// Authenticate turns a bearer token into the verified user and their
// effective permissions. This is the single entry point the middleware uses.
func (s *Service) Authenticate(ctx context.Context, bearer string) (models.User, models.EffectivePermissions, error) {
	if user, ok := s.demo.Match(bearer); ok {
		perms, err := s.resolver.Resolve(ctx, user)
		return user, perms, err
	}

	user, _, err := s.tokens.Verify(ctx, bearer)
	if err != nil {
		return models.User{}, models.EffectivePermissions{}, err
	}

	perms, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return models.User{}, models.EffectivePermissions{}, err
	}

	return user, perms, nil
}
