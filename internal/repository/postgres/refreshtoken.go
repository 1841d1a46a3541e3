package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mkosyakov/authcore/internal/apperrors"
	"github.com/mkosyakov/authcore/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, family_id, user_id, token_hash, status, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) error {
	rows, _ := r.DB.Query(ctx, saveToken,
		token.ID, token.FamilyID, token.UserID, token.TokenHash, token.Status, token.CreatedAt, token.ExpiresAt)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getToken = `-- name: GetRefreshToken
SELECT id, family_id, user_id, status, created_at, expires_at
FROM refresh_tokens
WHERE token_hash = $1
`

// Get returns the record whatever its status, so callers can distinguish
// an unknown token from a rotated or revoked one
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenHash)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		t := models.RefreshToken{TokenHash: tokenHash}
		err := row.Scan(&t.ID, &t.FamilyID, &t.UserID, &t.Status, &t.CreatedAt, &t.ExpiresAt)
		return t, err
	})

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const claimActiveToken = `-- name: ClaimActiveRefreshToken
UPDATE refresh_tokens
SET status = 'rotated'
WHERE token_hash = $1 AND status = 'active'
RETURNING id, family_id, user_id, created_at, expires_at
`

// ClaimActive is the rotation race arbiter: the conditional UPDATE lets the
// database pick exactly one winner among concurrent calls with the same
// token. Losers see zero rows and must Get the record to decide whether the
// token is unknown or has just been rotated out from under them.
func (r *RefreshTokenRepo) ClaimActive(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, claimActiveToken, tokenHash)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		t := models.RefreshToken{TokenHash: tokenHash, Status: models.RefreshStatusRotated}
		err := row.Scan(&t.ID, &t.FamilyID, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
		return t, err
	})

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const revokeToken = `-- name: RevokeRefreshToken
UPDATE refresh_tokens
SET status = 'revoked'
WHERE id = $1
`

func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, revokeToken, tokenID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const revokeFamily = `-- name: RevokeRefreshTokenFamily
UPDATE refresh_tokens
SET status = 'revoked'
WHERE family_id = $1 AND status != 'revoked'
`

// RevokeFamily kills every token of one login lineage. Safe to repeat.
func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, revokeFamily, familyID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteExpired = `-- name: DeleteExpiredRefreshTokens
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpired, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}
