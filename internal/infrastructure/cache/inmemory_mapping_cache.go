package cache

import (
	"context"
	"sync"
	"time"

	"github.com/syncbridge/backend/internal/application/mapping"
)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// InMemoryMappingCache implements the mapping resolver cache on a map.
// Expired entries are evicted lazily on read; the working set is bounded by
// the mapping table so no sweeper is needed.
type InMemoryMappingCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewInMemoryMappingCache creates a new in-memory mapping cache
func NewInMemoryMappingCache() *InMemoryMappingCache {
	return &InMemoryMappingCache{
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value and whether the key was present
func (c *InMemoryMappingCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return "", false, nil
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores a value with a TTL
func (c *InMemoryMappingCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Ensure InMemoryMappingCache implements mapping.Cache
var _ mapping.Cache = (*InMemoryMappingCache)(nil)
