package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is the read-through cache in front of the property store. The
// memory backend serves single-instance deployments, Redis serves fleets.
type Cache interface {
	// Get returns ErrCacheMiss when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error

	// GetOrSet returns the cached value or stores the result of fn.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error)

	Close() error
}

// ErrCacheMiss indicates the key was not found in cache.
var ErrCacheMiss = errors.New("cache miss")

// PropertyKey is the cache key of a property looked up by serial number.
func PropertyKey(serialNumber string) string {
	return "property:serial:" + serialNumber
}

// getOrSet implements GetOrSet on top of Get and Set.
func getOrSet(ctx context.Context, c Cache, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	if value, err := c.Get(ctx, key); err == nil {
		return value, nil
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		return nil, err
	}
	return value, nil
}
