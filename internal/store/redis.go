package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/face-verify/internal/cache"
)

// DefaultRedisKey is the key holding the reference record.
const DefaultRedisKey = "faceverify:reference"

// RedisStore keeps the reference as one JSON document under a single key.
// A single SET replaces the whole record, which gives the atomicity the store
// needs without extra locking.
type RedisStore struct {
	cache  cache.Cache
	key    string
	logger *zap.Logger
}

// NewRedisStore returns a store writing to key; an empty key uses DefaultRedisKey.
func NewRedisStore(c cache.Cache, key string, logger *zap.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{cache: c, key: key, logger: logger.Named("redis_store")}
}

// Save replaces the reference record. The crop is not kept in Redis.
func (s *RedisStore) Save(ctx context.Context, ref *Reference) error {
	if err := checkReference(ref); err != nil {
		return err
	}
	data, err := encodeRecord(ref)
	if err != nil {
		return fmt.Errorf("encode reference record: %w", err)
	}
	if err := s.cache.Set(ctx, s.key, string(data), 0); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	if ref.Crop != nil {
		s.logger.Debug("reference crop is not persisted by the redis store")
	}
	return nil
}

// Load reads the reference record.
func (s *RedisStore) Load(ctx context.Context) (*Reference, error) {
	value, err := s.cache.Get(ctx, s.key)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decodeRecord([]byte(value))
}
