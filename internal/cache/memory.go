package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = time.Minute

// MemoryCache is an in-process Cache used when no Redis address is configured.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache returns an empty MemoryCache. Expired entries are purged every minute.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, memoryCleanupInterval)}
}

// Set stores value under key. Values are stored in their fmt string form, as
// Redis would, and a zero expiration keeps the key forever.
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		str = fmt.Sprint(v)
	}

	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	c.items.Set(key, str, expiration)
	return nil
}

// Get returns the value under key or ErrMiss.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return "", ErrMiss
	}
	return v.(string), nil
}
