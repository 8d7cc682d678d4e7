package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps values as plain Redis strings under a key prefix.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "propscan:kv"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(k string) string {
	return s.keyPrefix + ":" + k
}

// Get retrieves a value by key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Set stores a value without expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

// Remove deletes a value by key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

var _ Store = (*RedisStore)(nil)
