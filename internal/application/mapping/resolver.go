package mapping

import (
	"context"
	"errors"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// Cache is the key-value cache the resolver reads through. Implementations
// exist for Redis (production) and in-memory (tests, single instance).
type Cache interface {
	// Get returns the cached value and whether the key was present
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value with a TTL
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// negativeMarker is cached for identifiers that resolved to no mapping, so
// repeated lookups for genuinely-unmapped items don't hammer the store.
const negativeMarker = "!"

const (
	cacheKeyInventoryItem = "mapping:invitem:"
	cacheKeyVariant       = "mapping:variant:"
)

// Config holds resolver cache tuning
type Config struct {
	// CacheTTL is how long positive lookups are cached
	CacheTTL time.Duration
	// NegativeTTL is how long misses are cached. Kept short: a fresh mapping
	// becomes visible after at most this window.
	NegativeTTL time.Duration
}

// DefaultConfig returns the default resolver cache tuning
func DefaultConfig() Config {
	return Config{
		CacheTTL:    time.Hour,
		NegativeTTL: 5 * time.Minute,
	}
}

// Resolver resolves storefront-side identifiers to internal SKUs and active
// product mappings. It is invoked on every webhook and every queued job, so
// lookups are cache-accelerated. Staleness within the cache TTL after a
// mapping change is an accepted tradeoff, not a bug: there is no active
// invalidation.
type Resolver struct {
	store  integration.MappingStore
	cache  Cache
	config Config
	logger *zap.Logger
}

// NewResolver creates a new mapping resolver
func NewResolver(store integration.MappingStore, cache Cache, config Config, logger *zap.Logger) *Resolver {
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	if config.NegativeTTL <= 0 {
		config.NegativeTTL = DefaultConfig().NegativeTTL
	}
	return &Resolver{
		store:  store,
		cache:  cache,
		config: config,
		logger: logger,
	}
}

// ResolveSKUByInventoryItemID returns the internal SKU mapped to a storefront
// inventory item ID, or ErrMappingNotFound
func (r *Resolver) ResolveSKUByInventoryItemID(ctx context.Context, inventoryItemID string) (string, error) {
	return r.resolveSKU(ctx, cacheKeyInventoryItem+inventoryItemID, func() (*integration.ProductMapping, error) {
		return r.store.FindByInventoryItemID(ctx, inventoryItemID)
	})
}

// ResolveSKUByVariantID returns the internal SKU mapped to a storefront
// variant ID, or ErrMappingNotFound
func (r *Resolver) ResolveSKUByVariantID(ctx context.Context, variantID string) (string, error) {
	return r.resolveSKU(ctx, cacheKeyVariant+variantID, func() (*integration.ProductMapping, error) {
		return r.store.FindByVariantID(ctx, variantID)
	})
}

// ActiveMapping returns the mapping for a SKU only if it is usable.
// Returns ErrMappingNotFound when no row exists and ErrMappingNotActive when
// the mapping exists but is pending or errored. Always reads the store, not
// the cache: workers must never trust mapping state captured at enqueue time.
func (r *Resolver) ActiveMapping(ctx context.Context, sku string) (*integration.ProductMapping, error) {
	m, err := r.store.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if !m.IsUsable() {
		return nil, integration.ErrMappingNotActive
	}
	return m, nil
}

// resolveSKU is the shared cache-aside lookup path
func (r *Resolver) resolveSKU(ctx context.Context, cacheKey string, lookup func() (*integration.ProductMapping, error)) (string, error) {
	if cached, ok, err := r.cache.Get(ctx, cacheKey); err != nil {
		// Cache trouble never fails a lookup, the store is authoritative
		r.logger.Warn("mapping cache read failed", zap.String("key", cacheKey), zap.Error(err))
	} else if ok {
		if cached == negativeMarker {
			return "", integration.ErrMappingNotFound
		}
		return cached, nil
	}

	m, err := lookup()
	if err != nil {
		if errors.Is(err, integration.ErrMappingNotFound) {
			if cacheErr := r.cache.Set(ctx, cacheKey, negativeMarker, r.config.NegativeTTL); cacheErr != nil {
				r.logger.Warn("mapping cache write failed", zap.String("key", cacheKey), zap.Error(cacheErr))
			}
			return "", integration.ErrMappingNotFound
		}
		return "", err
	}

	if !m.IsUsable() {
		// A pending or errored mapping resolves like a missing one. The
		// negative TTL keeps the window short, so activating the mapping
		// takes effect promptly.
		if cacheErr := r.cache.Set(ctx, cacheKey, negativeMarker, r.config.NegativeTTL); cacheErr != nil {
			r.logger.Warn("mapping cache write failed", zap.String("key", cacheKey), zap.Error(cacheErr))
		}
		return "", integration.ErrMappingNotActive
	}

	if cacheErr := r.cache.Set(ctx, cacheKey, m.SKU, r.config.CacheTTL); cacheErr != nil {
		r.logger.Warn("mapping cache write failed", zap.String("key", cacheKey), zap.Error(cacheErr))
	}
	return m.SKU, nil
}
