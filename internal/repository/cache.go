package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "roadkpi"

// Cache stores encoded API responses per vehicle/kpi combination
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Invalidate drops every entry of one vehicle/kpi combination
	Invalidate(ctx context.Context, vehicleType, kpiType string) error
}

// CacheKey names an entry; entries of one combination share a prefix
func CacheKey(vehicleType, kpiType, kind string, parts ...string) string {
	key := fmt.Sprintf("%s:%s/%s:%s", keyPrefix, vehicleType, kpiType, kind)
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// RedisCache keeps responses in Redis with a TTL
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisCache creates a cache on top of a connected client
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: client, ttl: ttl}
}

// Get returns the cached value, ok=false on a miss
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return data, true, nil
}

// Set stores a value with the cache TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.redis.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

// Invalidate deletes all keys under the vehicle/kpi prefix
func (c *RedisCache) Invalidate(ctx context.Context, vehicleType, kpiType string) error {
	pattern := fmt.Sprintf("%s:%s/%s:*", keyPrefix, vehicleType, kpiType)

	var keys []string
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// NoCache is used when Redis is not configured
type NoCache struct{}

func (NoCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoCache) Set(context.Context, string, []byte) error { return nil }
func (NoCache) Invalidate(context.Context, string, string) error { return nil }
