package gist

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed gist store. It's suitable for
// multi-server deployments with shared canonical state.
type RedisStore struct {
	client *redis.Client
	prefix string
	closed bool
}

// RedisStoreOption configures RedisStore behavior.
type RedisStoreOption func(*redisStoreConfig)

type redisStoreConfig struct {
	prefix string
}

// WithRedisPrefix sets the key prefix for gist keys.
// Default: "gistsync:gist:".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(c *redisStoreConfig) {
		c.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed gist store.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	cfg := &redisStoreConfig{
		prefix: "gistsync:gist:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.prefix,
	}
}

// key returns the Redis key for a gist ID.
func (r *RedisStore) key(gistID string) string {
	return r.prefix + gistID
}

// Load retrieves canonical content if it exists.
func (r *RedisStore) Load(ctx context.Context, gistID string) (string, bool, error) {
	if r.closed {
		return "", false, ErrStoreClosed{}
	}

	content, err := r.client.Get(ctx, r.key(gistID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("gist: redis load: %w", err)
	}
	return content, true, nil
}

// Save stores canonical content. Gists do not expire.
func (r *RedisStore) Save(ctx context.Context, gistID, content string) error {
	if r.closed {
		return ErrStoreClosed{}
	}

	if err := r.client.Set(ctx, r.key(gistID), content, 0).Err(); err != nil {
		return fmt.Errorf("gist: redis save: %w", err)
	}
	return nil
}

// Delete removes a gist from the store.
func (r *RedisStore) Delete(ctx context.Context, gistID string) error {
	if r.closed {
		return ErrStoreClosed{}
	}

	if err := r.client.Del(ctx, r.key(gistID)).Err(); err != nil {
		return fmt.Errorf("gist: redis delete: %w", err)
	}
	return nil
}

// Close shuts down the store and the underlying client.
func (r *RedisStore) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}
