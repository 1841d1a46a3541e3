package auth

import (
	"crypto/subtle"

	"github.com/google/uuid"

	"github.com/mkosyakov/authcore/internal/models"
)

// demoUserID is fixed so demo sessions are recognizable in logs
var demoUserID = uuid.MustParse("00000000-0000-4000-8000-000000000d34")

// DemoAccess maps a single configured bearer value to a synthetic,
// fully-privileged user, bypassing signature verification entirely.
// It defeats the token model and exists only for sandbox deployments:
// leave the token empty everywhere else and the strategy is never built.
type DemoAccess struct {
	token string
	user  models.User
}

func NewDemoAccess(token string) *DemoAccess {
	if token == "" {
		return nil
	}
	return &DemoAccess{
		token: token,
		user: models.User{
			ID:          demoUserID,
			Email:       "demo@sandbox.invalid",
			Role:        "internal_admin",
			AuthVersion: 1,
			TenantID:    "demo",
		},
	}
}

// Match reports whether the bearer is the demo token. Constant time, so
// the demo value cannot be probed byte by byte.
func (d *DemoAccess) Match(bearer string) (models.User, bool) {
	if d == nil {
		return models.User{}, false
	}
	if subtle.ConstantTimeCompare([]byte(d.token), []byte(bearer)) != 1 {
		return models.User{}, false
	}
	return d.user, true
}
