package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkosyakov/authcore/internal/models"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := New(Config{RedisURL: "redis://" + mr.Addr(), UserTTL: time.Minute})
	require.NoError(t, err, "cache should connect to miniredis")
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func Test_Cache_New(t *testing.T) {
	t.Parallel()

	t.Run("invalid url", func(t *testing.T) {
		_, err := New(Config{RedisURL: "not-a-url"})
		require.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := New(Config{RedisURL: "redis://127.0.0.1:1"})
		require.Error(t, err)
	})
}

func Test_Cache_GetUser(t *testing.T) {
	t.Parallel()

	user := models.User{
		ID:          uuid.New(),
		Email:       "operator@example.com",
		Role:        "field_operator",
		AuthVersion: 1,
	}

	t.Run("miss loads and populates", func(t *testing.T) {
		c, mr := newTestCache(t)

		loads := 0
		load := func(ctx context.Context) (models.User, error) {
			loads++
			return user, nil
		}

		got, err := c.GetUser(t.Context(), user.ID, load)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, 1, loads)

		// Second read must come from the cache
		got, err = c.GetUser(t.Context(), user.ID, load)
		require.NoError(t, err)
		assert.Equal(t, user.Email, got.Email)
		assert.Equal(t, 1, loads, "cached read must not hit the loader")

		mr.CheckGet(t, "user:"+user.ID.String(), mustJSON(t, user))
	})

	t.Run("entry expires after ttl", func(t *testing.T) {
		c, mr := newTestCache(t)

		loads := 0
		load := func(ctx context.Context) (models.User, error) {
			loads++
			return user, nil
		}

		_, err := c.GetUser(t.Context(), user.ID, load)
		require.NoError(t, err)

		mr.FastForward(2 * time.Minute)

		_, err = c.GetUser(t.Context(), user.ID, load)
		require.NoError(t, err)
		assert.Equal(t, 2, loads, "expired entry must be loaded again")
	})

	t.Run("corrupt entry reloaded", func(t *testing.T) {
		c, mr := newTestCache(t)
		require.NoError(t, mr.Set("user:"+user.ID.String(), "{not json"))

		got, err := c.GetUser(t.Context(), user.ID, func(ctx context.Context) (models.User, error) {
			return user, nil
		})

		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID, "corrupt entry must fall back to the loader")
	})

	t.Run("loader error propagates", func(t *testing.T) {
		c, _ := newTestCache(t)

		wantErr := errors.New("db is down")
		_, err := c.GetUser(t.Context(), user.ID, func(ctx context.Context) (models.User, error) {
			return models.User{}, wantErr
		})

		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("cache outage degrades to loader", func(t *testing.T) {
		c, mr := newTestCache(t)
		mr.Close()

		got, err := c.GetUser(t.Context(), user.ID, func(ctx context.Context) (models.User, error) {
			return user, nil
		})

		require.NoError(t, err, "user cache is an optimization, outage must not fail the read")
		assert.Equal(t, user.ID, got.ID)
	})
}

func Test_Cache_InvalidateUser(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	user := models.User{ID: uuid.New(), Email: "operator@example.com"}

	loads := 0
	load := func(ctx context.Context) (models.User, error) {
		loads++
		return user, nil
	}

	_, err := c.GetUser(t.Context(), user.ID, load)
	require.NoError(t, err)

	require.NoError(t, c.InvalidateUser(t.Context(), user.ID))

	_, err = c.GetUser(t.Context(), user.ID, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads, "invalidated entry must be loaded again")
}

func Test_Cache_Blacklist(t *testing.T) {
	t.Parallel()

	t.Run("blacklisted token is found until ttl", func(t *testing.T) {
		c, mr := newTestCache(t)

		require.NoError(t, c.BlacklistToken(t.Context(), "token-hash", time.Minute))

		found, err := c.IsTokenBlacklisted(t.Context(), "token-hash")
		require.NoError(t, err)
		assert.True(t, found)

		mr.FastForward(2 * time.Minute)

		found, err = c.IsTokenBlacklisted(t.Context(), "token-hash")
		require.NoError(t, err)
		assert.False(t, found, "blacklist entry must not outlive the token")
	})

	t.Run("unknown token is not blacklisted", func(t *testing.T) {
		c, _ := newTestCache(t)

		found, err := c.IsTokenBlacklisted(t.Context(), "never-seen")

		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("expired token is a no-op", func(t *testing.T) {
		c, _ := newTestCache(t)

		require.NoError(t, c.BlacklistToken(t.Context(), "token-hash", -time.Second))

		found, err := c.IsTokenBlacklisted(t.Context(), "token-hash")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("outage surfaces the error", func(t *testing.T) {
		c, mr := newTestCache(t)
		mr.Close()

		_, err := c.IsTokenBlacklisted(t.Context(), "token-hash")

		require.Error(t, err, "blacklist check is a security control, errors must surface")
	})
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
