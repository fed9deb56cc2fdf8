package consistency

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisCache adapts a Redis client to the CacheAdapter interface
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache creates a Redis-backed cache adapter
func NewRedisCache(address, password string, db int, logger *zap.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: client, logger: logger}
}

// Get fetches a key; a redis.Nil reply is reported as not found
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// IsExpired reports whether a key is gone or has no remaining TTL. Redis
// removes expired keys, so absence counts as expired here.
func (c *RedisCache) IsExpired(ctx context.Context, key string) (bool, error) {
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return false, err
	}
	// -2 means the key does not exist, -1 means no expiration is set.
	if ttl == -2 {
		return true, nil
	}
	return false, nil
}

// Close releases the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
