package models

import (
	"time"

	"github.com/google/uuid"
)

// Refresh token rotation states stored in the ledger
const (
	RefreshStatusActive  = "active"
	RefreshStatusRotated = "rotated"
	RefreshStatusRevoked = "revoked"
)

// RefreshToken is a ledger record. The raw token value never touches the
// database: only its sha256 hash is stored.
type RefreshToken struct {
	ID        uuid.UUID // jti
	FamilyID  uuid.UUID // shared by every rotation of one login session
	UserID    uuid.UUID
	TokenHash string
	Status    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager on login, register or rotation
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
