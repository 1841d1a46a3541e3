package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Email          string
	HashedPassword string

	// Primary role, e.g. "admin" or "field_operator"
	Role string

	// Legacy per-user permission grants kept on the user row itself
	Permissions []string

	// AuthVersion only grows and only via global logout.
	// Access tokens snapshot it at issue time; a mismatch at verification
	// time means every token issued before the bump is dead.
	AuthVersion int64

	TenantID string
}
