package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choiseongjun/chat-with-stream/internal/domain"
)

func newRedisCache(t *testing.T) (*RedisRecentCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisRecentCacheFromClient(client, "chat:room:")
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func forEachCache(t *testing.T, fn func(t *testing.T, c RecentCache)) {
	t.Run("redis", func(t *testing.T) {
		c, _ := newRedisCache(t)
		fn(t, c)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryRecentCache())
	})
}

func strs(entries [][]byte) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e)
	}
	return out
}

func TestRecentCache_PushFrontOrder(t *testing.T) {
	forEachCache(t, func(t *testing.T, c RecentCache) {
		ctx := context.Background()

		require.NoError(t, c.PushFront(ctx, "r1", []byte("a")))
		require.NoError(t, c.PushFront(ctx, "r1", []byte("b"), []byte("c")))

		entries, err := c.ReadAll(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b", "a"}, strs(entries))
	})
}

func TestRecentCache_TrimKeepsMostRecent(t *testing.T) {
	forEachCache(t, func(t *testing.T, c RecentCache) {
		ctx := context.Background()

		for i := 0; i < 10; i++ {
			require.NoError(t, c.PushFront(ctx, "r1", []byte(fmt.Sprintf("m%d", i))))
			require.NoError(t, c.Trim(ctx, "r1", 3))
		}

		entries, err := c.ReadAll(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"m9", "m8", "m7"}, strs(entries))
	})
}

func TestRecentCache_DeleteAllAndIsolation(t *testing.T) {
	forEachCache(t, func(t *testing.T, c RecentCache) {
		ctx := context.Background()

		require.NoError(t, c.PushFront(ctx, "r1", []byte("a")))
		require.NoError(t, c.PushFront(ctx, "r2", []byte("b")))
		require.NoError(t, c.DeleteAll(ctx, "r1"))

		entries, err := c.ReadAll(ctx, "r1")
		require.NoError(t, err)
		assert.Empty(t, entries)

		entries, err = c.ReadAll(ctx, "r2")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, strs(entries))
	})
}

func TestRedisRecentCache_UsesPrefixedListKey(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, c.PushFront(context.Background(), "lobby", []byte("hello")))

	list, err := mr.List("chat:room:lobby")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, list)
}

func TestRedisRecentCache_UnavailableIsCacheError(t *testing.T) {
	c, mr := newRedisCache(t)
	mr.Close()

	_, err := c.ReadAll(context.Background(), "r1")
	assert.ErrorIs(t, err, domain.ErrCache)
}
