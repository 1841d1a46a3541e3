package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/mkosyakov/authcore/internal/models"
)

const defaultUserTTL = 5 * time.Minute

type Config struct {
	// RedisURL in format redis://[:password@]host:port[/db]
	RedisURL string

	// UserTTL bounds how long a cached user row may lag behind the
	// database. Role and permission changes propagate within this window,
	// so it should stay short.
	UserTTL time.Duration
}

// Cache backs the two shared, multi-writer stores of the auth core: the
// short-TTL user row cache and the access token blacklist. Both are
// TTL-governed, no explicit locking: entries are idempotent and expiry is
// the only deletion path besides explicit invalidation.
type Cache struct {
	client  *redis.Client
	userTTL time.Duration
}

func New(cfg Config) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	userTTL := cfg.UserTTL
	if userTTL == 0 {
		userTTL = defaultUserTTL
	}

	return &Cache{client: client, userTTL: userTTL}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func userKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id)
}

func blacklistKey(tokenHash string) string {
	return fmt.Sprintf("blacklist:%s", tokenHash)
}

// GetUser serves the user row through the cache, calling load on a miss and
// repopulating with the short TTL. A cache outage degrades to a plain load:
// the cache is an optimization here, not a source of truth.
func (c *Cache) GetUser(ctx context.Context, id uuid.UUID, load func(context.Context) (models.User, error)) (models.User, error) {
	key := userKey(id)

	data, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var user models.User
		if err := json.Unmarshal([]byte(data), &user); err == nil {
			return user, nil
		}
		// Corrupt payload: drop it and reload
		c.client.Del(ctx, key)
	}

	user, err := load(ctx)
	if err != nil {
		return user, err
	}

	if data, err := json.Marshal(user); err == nil {
		// Best effort populate; a failed write only costs the next caller a load
		_ = c.client.Set(ctx, key, data, c.userTTL).Err()
	}

	return user, nil
}

func (c *Cache) InvalidateUser(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, userKey(id)).Err()
}

// BlacklistToken records a revoked access token hash. TTL must be the
// token's remaining validity so the blacklist never outlives its tokens.
func (c *Cache) BlacklistToken(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired, nothing to revoke
	}
	if err := c.client.Set(ctx, blacklistKey(tokenHash), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// IsTokenBlacklisted reports whether the hash is on the blacklist. Unlike
// the user cache an error here must not be swallowed: the check is a
// security control and callers are expected to fail closed.
func (c *Cache) IsTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	n, err := c.client.Exists(ctx, blacklistKey(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}
