package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/syncbridge/backend/internal/application/mapping"
)

// RedisMappingCache implements the mapping resolver cache on Redis
type RedisMappingCache struct {
	client *redis.Client
}

// NewRedisMappingCache creates a cache backed by an existing Redis client
func NewRedisMappingCache(client *redis.Client) *RedisMappingCache {
	return &RedisMappingCache{client: client}
}

// Get returns the cached value and whether the key was present
func (c *RedisMappingCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores a value with a TTL
func (c *RedisMappingCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// Ensure RedisMappingCache implements mapping.Cache
var _ mapping.Cache = (*RedisMappingCache)(nil)
