package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/mkosyakov/authcore/internal/cache"
	"github.com/mkosyakov/authcore/internal/models"
	"github.com/mkosyakov/authcore/internal/repository"
)

// CachedUserSource is the read-through UserLoader the token manager
// verifies against: redis first, credential store on a miss, repopulating
// with the short TTL.
type CachedUserSource struct {
	Cache *cache.Cache
	Users repository.UserRepo
}

func (s CachedUserSource) LoadUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.Cache.GetUser(ctx, userID, func(ctx context.Context) (models.User, error) {
		return s.Users.GetUserByID(ctx, userID)
	})
}
