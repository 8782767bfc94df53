package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/choiseongjun/chat-with-stream/internal/domain"
	"github.com/choiseongjun/chat-with-stream/pkg/pubsub"
)

// RedisRecentCache keeps one Redis list per room.
type RedisRecentCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRecentCache(cfg pubsub.RedisConfig, prefix string) (*RedisRecentCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to connect to redis: %v", domain.ErrCache, err)
	}

	return NewRedisRecentCacheFromClient(client, prefix), nil
}

// NewRedisRecentCacheFromClient wraps an existing client.
func NewRedisRecentCacheFromClient(client *redis.Client, prefix string) *RedisRecentCache {
	return &RedisRecentCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisRecentCache) key(roomID string) string {
	return c.prefix + roomID
}

func (c *RedisRecentCache) PushFront(ctx context.Context, roomID string, entries ...[]byte) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]interface{}, len(entries))
	for i, e := range entries {
		values[i] = e
	}
	if err := c.client.LPush(ctx, c.key(roomID), values...).Err(); err != nil {
		return fmt.Errorf("%w: lpush: %v", domain.ErrCache, err)
	}
	return nil
}

func (c *RedisRecentCache) Trim(ctx context.Context, roomID string, n int) error {
	if n <= 0 {
		return c.DeleteAll(ctx, roomID)
	}
	if err := c.client.LTrim(ctx, c.key(roomID), 0, int64(n-1)).Err(); err != nil {
		return fmt.Errorf("%w: ltrim: %v", domain.ErrCache, err)
	}
	return nil
}

func (c *RedisRecentCache) ReadAll(ctx context.Context, roomID string) ([][]byte, error) {
	values, err := c.client.LRange(ctx, c.key(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: lrange: %v", domain.ErrCache, err)
	}
	entries := make([][]byte, len(values))
	for i, v := range values {
		entries[i] = []byte(v)
	}
	return entries, nil
}

func (c *RedisRecentCache) DeleteAll(ctx context.Context, roomID string) error {
	if err := c.client.Del(ctx, c.key(roomID)).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", domain.ErrCache, err)
	}
	return nil
}

func (c *RedisRecentCache) Close() error {
	return c.client.Close()
}
