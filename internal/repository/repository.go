package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mkosyakov/authcore/internal/models"
)

type CreateUserParams struct {
	Email          string
	HashedPassword string
	Role           string
	TenantID       string
}

// User repository interface
type UserRepo interface {
	// Create user
	// Must return apperrors.ErrUserAlreadyExists if email is taken
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by id or email
	// Must return apperrors.ErrUserNotFound if user does not exist
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Change the primary role
	SetRole(ctx context.Context, userID uuid.UUID, role string) (models.User, error)

	// Append a granular permission to the user's own grant list.
	// Adding a permission the user already holds is a no-op.
	AddPermission(ctx context.Context, userID uuid.UUID, permission string) (models.User, error)

	// Increment auth_version and return the new value. This is the global
	// logout switch: every access token issued before the bump becomes
	// stale on its next verification.
	BumpAuthVersion(ctx context.Context, userID uuid.UUID) (int64, error)
}

// RefreshToken ledger interface
type RefreshTokenRepo interface {
	// Persist a new ledger record (status should be 'active')
	Save(ctx context.Context, token models.RefreshToken) error

	// Return the record whatever its status.
	// Must return apperrors.ErrRefreshTokenNotFound if absent
	Get(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Atomically flip the record from 'active' to 'rotated' and return it.
	// Exactly one of N concurrent callers wins; the rest get
	// apperrors.ErrRefreshTokenNotFound and must fall back to Get to tell
	// absence from reuse.
	ClaimActive(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Mark a single record revoked
	Revoke(ctx context.Context, tokenID uuid.UUID) error

	// Mark every record of the family revoked. Idempotent.
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error

	// Hard-delete records that expired before the cutoff. Returns the
	// number of rows removed.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Resource-scoped permission grants
type GrantRepo interface {
	Grant(ctx context.Context, grant models.ScopedGrant) error
	Revoke(ctx context.Context, grant models.ScopedGrant) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ScopedGrant, error)
}

// Storage bundles the repositories and the transactional runner
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Grant() GrantRepo

	// Run fn within a database transaction; every repo obtained from the
	// passed Storage shares it
	InTx(ctx context.Context, fn func(Storage) error) error
}
