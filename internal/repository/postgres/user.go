package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkosyakov/authcore/internal/apperrors"
	"github.com/mkosyakov/authcore/internal/models"
	"github.com/mkosyakov/authcore/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const createUser = `-- name: CreateUser
INSERT INTO users (id, email, password_hash, role, tenant_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, email, password_hash, role, permissions, auth_version, tenant_id
`

func (r *UserRepo) CreateUser(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), arg.Email, arg.HashedPassword, arg.Role, arg.TenantID)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT id, created_at, email, password_hash, role, permissions, auth_version, tenant_id
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, userID)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT id, created_at, email, password_hash, role, permissions, auth_version, tenant_id
FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const setUserRole = `-- name: SetRole
UPDATE users
SET role = $2
WHERE id = $1
RETURNING id, created_at, email, password_hash, role, permissions, auth_version, tenant_id
`

func (r *UserRepo) SetRole(ctx context.Context, userID uuid.UUID, role string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, setUserRole, userID, role)
	return collectUser(rows)
}

const addUserPermission = `-- name: AddPermission
UPDATE users
SET permissions = CASE
	WHEN $2 = ANY (permissions) THEN permissions
	ELSE array_append(permissions, $2)
END
WHERE id = $1
RETURNING id, created_at, email, password_hash, role, permissions, auth_version, tenant_id
`

func (r *UserRepo) AddPermission(ctx context.Context, userID uuid.UUID, permission string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, addUserPermission, userID, permission)
	return collectUser(rows)
}

const bumpAuthVersion = `-- name: BumpAuthVersion
UPDATE users
SET auth_version = auth_version + 1
WHERE id = $1
RETURNING auth_version
`

func (r *UserRepo) BumpAuthVersion(ctx context.Context, userID uuid.UUID) (int64, error) {
	rows, _ := r.DB.Query(ctx, bumpAuthVersion, userID)
	version, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])

	switch {
	case err == nil:
		return version, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, apperrors.ErrUserNotFound
	default:
		return 0, fmt.Errorf("db error: %w", err)
	}
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Email, &u.HashedPassword, &u.Role, &u.Permissions, &u.AuthVersion, &u.TenantID)
	return u, err
}
