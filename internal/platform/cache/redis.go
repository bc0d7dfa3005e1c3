package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed store. Values are JSON-encoded at this
// edge only; in-memory stores never see serialized bytes. Backend
// failures and decode failures are reported as misses so a degraded
// Redis never aborts a request.
type RedisStore[V any] struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

// RedisStoreConfig holds Redis connection settings for a store.
type RedisStoreConfig struct {
	Addr       string
	Password   string
	DB         int
	Prefix     string // key namespace, e.g. "quote"
	DefaultTTL time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore[V any](cfg RedisStoreConfig) (*RedisStore[V], error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore[V]{
		client:     client,
		prefix:     cfg.Prefix,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// NewRedisStoreFromClient wraps an existing client, letting several
// stores share one connection pool.
func NewRedisStoreFromClient[V any](client *redis.Client, prefix string, defaultTTL time.Duration) *RedisStore[V] {
	return &RedisStore[V]{client: client, prefix: prefix, defaultTTL: defaultTTL}
}

func (r *RedisStore[V]) redisKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// Get retrieves and decodes a value. Any backend or decode error is a
// miss.
func (r *RedisStore[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	raw, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		// redis.Nil is an ordinary miss; backend errors degrade to one.
		r.misses.Add(1)
		return zero, false
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		r.misses.Add(1)
		return zero, false
	}

	r.hits.Add(1)
	return value, true
}

// Set encodes and stores a value with the given TTL.
func (r *RedisStore[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	if err := r.client.Set(ctx, r.redisKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Remove deletes a key if present.
func (r *RedisStore[V]) Remove(ctx context.Context, key string) {
	_ = r.client.Del(ctx, r.redisKey(key)).Err()
}

// Clear removes all keys under this store's prefix.
func (r *RedisStore[V]) Clear(ctx context.Context) {
	pattern := r.redisKey("*")
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		_ = r.client.Del(ctx, iter.Val()).Err()
	}
}

// Len returns the number of keys under this store's prefix.
func (r *RedisStore[V]) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var count int
	iter := r.client.Scan(ctx, 0, r.redisKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}

// Stats returns a snapshot of the store's counters. Evictions are
// handled by Redis itself and not tracked here.
func (r *RedisStore[V]) Stats() LayerStats {
	return LayerStats{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
	}
}

// Close closes the Redis connection.
func (r *RedisStore[V]) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable.
func (r *RedisStore[V]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
