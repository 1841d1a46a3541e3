package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mkosyakov/authcore/internal/models"
)

type GrantRepo struct {
	DB DBTX
}

const insertGrant = `-- name: Grant
INSERT INTO scoped_grants (user_id, scope_type, scope_id, permission)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
`

func (r *GrantRepo) Grant(ctx context.Context, grant models.ScopedGrant) error {
	_, err := r.DB.Exec(ctx, insertGrant, grant.UserID, grant.ScopeType, grant.ScopeID, grant.Permission)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteGrant = `-- name: RevokeGrant
DELETE FROM scoped_grants
WHERE user_id = $1 AND scope_type = $2 AND scope_id = $3 AND permission = $4
`

func (r *GrantRepo) Revoke(ctx context.Context, grant models.ScopedGrant) error {
	_, err := r.DB.Exec(ctx, deleteGrant, grant.UserID, grant.ScopeType, grant.ScopeID, grant.Permission)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const listGrantsForUser = `-- name: ListGrantsForUser
SELECT user_id, scope_type, scope_id, permission, created_at
FROM scoped_grants
WHERE user_id = $1
ORDER BY created_at
`

func (r *GrantRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ScopedGrant, error) {
	rows, _ := r.DB.Query(ctx, listGrantsForUser, userID)
	grants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ScopedGrant, error) {
		var g models.ScopedGrant
		err := row.Scan(&g.UserID, &g.ScopeType, &g.ScopeID, &g.Permission, &g.CreatedAt)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return grants, nil
}
