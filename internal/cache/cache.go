// Package cache is the key/value layer shared by the Redis reference store
// and the verification result cache. RedisCache talks to a Redis server;
// MemoryCache stands in when none is configured.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned by Get when the key does not exist or has expired.
var ErrMiss = errors.New("cache miss")

// Cache is the string key/value contract both the reference store and the
// result cache rely on. Set must replace the whole value in one step so a
// concurrent Get sees either the old or the new value.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache implements Cache with plain SET and GET commands.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client. The caller owns the client and closes it.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set issues a single SET. A zero expiration keeps the key forever, which is
// what the reference store uses.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get issues a GET, translating redis.Nil into ErrMiss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return value, err
}
