package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkosyakov/authcore/internal/apperrors"
	"github.com/mkosyakov/authcore/internal/logger"
	"github.com/mkosyakov/authcore/internal/metrics"
	"github.com/mkosyakov/authcore/internal/models"
	"github.com/mkosyakov/authcore/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultSigningMethod   = "HS256"

	// Clock skew tolerated at verification only, never at signing
	defaultLeeway = 10 * time.Second
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID      uuid.UUID `json:"uid"`
	Role        string    `json:"role"`
	AuthVersion int64     `json:"ver"`
	TenantID    string    `json:"tid,omitempty"`
}

// UserLoader reads the current user row, normally through the short-TTL
// cache with the credential store as fallback.
type UserLoader interface {
	LoadUser(ctx context.Context, userID uuid.UUID) (models.User, error)
}

// Blacklist holds revoked access token hashes until they expire on their own.
type Blacklist interface {
	BlacklistToken(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error)
}

// Token manager config with sensible defaults
type TokenManagerConfig struct {
	// Secret key to sign access tokens. Required.
	SecretKey string

	// Fixed issuer and audience claims. Required.
	Issuer   string
	Audience string

	// JWT MAC algorithm, default HS256
	Alg string

	// Access and refresh token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Accepted clock skew at verification time
	Leeway time.Duration
}

// TokenManager is the sole authority for minting and validating bearer
// credentials: access token issue/verify, refresh rotation and reuse
// handling, family revocation and access blacklisting.
type TokenManager struct {
	key      string
	alg      jwt.SigningMethod
	issuer   string
	audience string

	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration

	refreshRepo repository.RefreshTokenRepo
	users       UserLoader
	blacklist   Blacklist
	logger      logger.Logger

	now func() time.Time
}

func NewTokenManager(cfg TokenManagerConfig, refreshRepo repository.RefreshTokenRepo, users UserLoader, blacklist Blacklist, l logger.Logger) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience must not be empty")
	}
	if refreshRepo == nil || users == nil || blacklist == nil {
		return nil, errors.New("refresh repo, user loader and blacklist must not be nil")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)
	setDefaultDuration(&cfg.Leeway, defaultLeeway)

	return &TokenManager{
		key:         cfg.SecretKey,
		alg:         jwt.GetSigningMethod(cfg.Alg),
		issuer:      cfg.Issuer,
		audience:    cfg.Audience,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		leeway:      cfg.Leeway,
		refreshRepo: refreshRepo,
		users:       users,
		blacklist:   blacklist,
		logger:      l,
		now:         time.Now,
	}, nil
}

// HashToken is the deterministic key both the ledger and the blacklist use.
// Raw token strings never leave process memory.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GeneratePair starts a brand-new refresh family for the user and mints
// the matching access token.
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	return m.generateInFamily(ctx, user, uuid.New())
}

func (m *TokenManager) generateInFamily(ctx context.Context, user models.User, familyID uuid.UUID) (models.TokenPair, error) {
	var pair models.TokenPair
	now := m.now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	accessToken := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   user.ID.String(),
				Issuer:    m.issuer,
				Audience:  jwt.ClaimStrings{m.audience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
			},
			UserID:      user.ID,
			Role:        user.Role,
			AuthVersion: user.AuthVersion,
			TenantID:    user.TenantID,
		},
	)
	access, err := accessToken.SignedString([]byte(m.key))
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	// Opaque refresh secret, 32 random bytes
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return pair, fmt.Errorf("error while generating refresh token. Err: %w", err)
	}
	refresh := hex.EncodeToString(b)

	err = m.refreshRepo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		FamilyID:  familyID,
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		Status:    models.RefreshStatusActive,
		CreatedAt: now,
		ExpiresAt: refreshExpiresAt,
	})
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}, nil
}

// parseAccess validates signature, issuer, audience and lifetime and maps
// library failures onto the app error taxonomy.
func (m *TokenManager) parseAccess(access string) (AccessTokenClaims, error) {
	claims := AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		&claims,
		func(t *jwt.Token) (any, error) { return []byte(m.key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithLeeway(m.leeway),
	)

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, fmt.Errorf("%w: %w", apperrors.ErrTokenExpired, err)
	default:
		return claims, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}
}

// Verify validates an access token end to end: signature and claims,
// blacklist, then the auth-version snapshot against the current user row.
// The returned user is the row the token was checked against.
func (m *TokenManager) Verify(ctx context.Context, access string) (models.User, AccessTokenClaims, error) {
	claims, err := m.parseAccess(access)
	if err != nil {
		metrics.TokenVerifications.WithLabelValues(verificationResult(err)).Inc()
		return models.User{}, claims, err
	}

	// Blacklist check fails closed: if the cache cannot answer, the token
	// is not accepted, but the failure is reported as Unavailable so
	// clients do not take it for bad credentials.
	revoked, err := m.blacklist.IsTokenBlacklisted(ctx, HashToken(access))
	if err != nil {
		metrics.TokenVerifications.WithLabelValues("unavailable").Inc()
		return models.User{}, claims, fmt.Errorf("%w: blacklist check failed: %w", apperrors.ErrUnavailable, err)
	}
	if revoked {
		metrics.TokenVerifications.WithLabelValues("revoked").Inc()
		return models.User{}, claims, apperrors.ErrTokenRevoked
	}

	user, err := m.users.LoadUser(ctx, claims.UserID)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		metrics.TokenVerifications.WithLabelValues("invalid").Inc()
		return models.User{}, claims, fmt.Errorf("%w: token subject unknown", apperrors.ErrTokenInvalid)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.TokenVerifications.WithLabelValues("unavailable").Inc()
		return models.User{}, claims, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	default:
		metrics.TokenVerifications.WithLabelValues("unavailable").Inc()
		return models.User{}, claims, fmt.Errorf("error loading token subject: %w", err)
	}

	// Stale snapshot means a global logout happened after issuance. Every
	// token minted before the bump dies here, without any per-token state.
	if claims.AuthVersion != user.AuthVersion {
		metrics.TokenVerifications.WithLabelValues("expired").Inc()
		return models.User{}, claims, fmt.Errorf("%w: session expired", apperrors.ErrTokenExpired)
	}

	metrics.TokenVerifications.WithLabelValues("ok").Inc()
	return user, claims, nil
}

// Rotate exchanges an active refresh token for a fresh pair in the same
// family. Presenting a rotated or revoked token is treated as conclusive
// evidence of theft: the whole family is revoked before the call fails.
func (m *TokenManager) Rotate(ctx context.Context, refresh string) (models.TokenPair, error) {
	hash := HashToken(refresh)

	token, err := m.refreshRepo.ClaimActive(ctx, hash)
	if err != nil {
		if !errors.Is(err, apperrors.ErrRefreshTokenNotFound) {
			return models.TokenPair{}, err
		}

		// No active row claimed. Either the token never existed, or it
		// exists in a non-active state, which means someone already spent it.
		existing, getErr := m.refreshRepo.Get(ctx, hash)
		if getErr != nil {
			metrics.RefreshRotations.WithLabelValues("invalid").Inc()
			return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, getErr)
		}

		if revokeErr := m.refreshRepo.RevokeFamily(ctx, existing.FamilyID); revokeErr != nil {
			return models.TokenPair{}, fmt.Errorf("error revoking family on reuse: %w", revokeErr)
		}

		metrics.RefreshRotations.WithLabelValues("reused").Inc()
		metrics.ReuseDetections.Inc()
		m.logger.Warn("refresh token reuse detected, family revoked",
			"user_id", existing.UserID,
			"family_id", existing.FamilyID,
			"token_id", existing.ID,
			"status", existing.Status,
		)
		return models.TokenPair{}, apperrors.ErrTokenReused
	}

	if token.ExpiresAt.Before(m.now()) {
		if err := m.refreshRepo.Revoke(ctx, token.ID); err != nil {
			return models.TokenPair{}, fmt.Errorf("error revoking expired token: %w", err)
		}
		metrics.RefreshRotations.WithLabelValues("expired").Inc()
		return models.TokenPair{}, fmt.Errorf("%w: refresh token expired", apperrors.ErrTokenExpired)
	}

	user, err := m.users.LoadUser(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error loading token owner: %w", err)
	}

	pair, err := m.generateInFamily(ctx, user, token.FamilyID)
	if err != nil {
		return pair, err
	}

	metrics.RefreshRotations.WithLabelValues("ok").Inc()
	return pair, nil
}

// RevokeFamily marks every ledger record of the family revoked. Idempotent.
func (m *TokenManager) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	return m.refreshRepo.RevokeFamily(ctx, familyID)
}

// RevokeByRefresh revokes the whole family the presented token belongs to.
// Unknown tokens are a no-op so logout stays idempotent.
func (m *TokenManager) RevokeByRefresh(ctx context.Context, refresh string) error {
	token, err := m.refreshRepo.Get(ctx, HashToken(refresh))
	switch {
	case err == nil:
		return m.refreshRepo.RevokeFamily(ctx, token.FamilyID)
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return nil
	default:
		return err
	}
}

// BlacklistAccess revokes a still-live access token for its remaining
// lifetime. Expired tokens are a no-op; the entry would outlive nothing.
func (m *TokenManager) BlacklistAccess(ctx context.Context, access string) error {
	claims, err := m.parseAccess(access)
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenExpired) {
			return nil
		}
		return err
	}

	ttl := claims.ExpiresAt.Sub(m.now())
	return m.blacklist.BlacklistToken(ctx, HashToken(access), ttl)
}

func verificationResult(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "expired"
	case errors.Is(err, apperrors.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, apperrors.ErrUnavailable):
		return "unavailable"
	default:
		return "invalid"
	}
}
