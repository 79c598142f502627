package cache

import (
	"context"
	"path"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// defaultMemoryEntries bounds the in-memory cache. Each entry is a small
// permission set, so the bound is about eviction churn, not memory.
const defaultMemoryEntries = 10000

// MemoryCache is an in-process Cache for single-node deployments and tests.
// The expirable LRU pins its TTL at construction, so switching degraded mode
// rebuilds the cache; the purge that implies is the correct behavior anyway,
// since entries written under the long TTL can no longer be trusted.
type MemoryCache struct {
	mu       sync.RWMutex
	cache    *lru.LRU[string, rbac.PermissionSet]
	ttl      TTLPolicy
	maxSize  int
	degraded bool
	metrics  *observability.Metrics
}

// NewMemoryCache creates an in-memory cache with the given TTL policy
func NewMemoryCache(maxEntries int, ttl TTLPolicy, metrics *observability.Metrics) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryEntries
	}
	if ttl.Base == 0 {
		ttl = DefaultTTLPolicy()
	}
	return &MemoryCache{
		cache:   lru.NewLRU[string, rbac.PermissionSet](maxEntries, nil, ttl.Base),
		ttl:     ttl,
		maxSize: maxEntries,
		metrics: metrics,
	}
}

// GetSet retrieves a cached permission set
func (c *MemoryCache) GetSet(ctx context.Context, key string) (rbac.PermissionSet, bool, error) {
	c.mu.RLock()
	set, ok := c.cache.Get(key)
	c.mu.RUnlock()

	if !ok {
		c.recordMiss(key)
		return nil, false, nil
	}
	c.recordHit(key)
	return set, true, nil
}

// PutSet stores a permission set
func (c *MemoryCache) PutSet(ctx context.Context, key string, set rbac.PermissionSet) error {
	c.mu.RLock()
	c.cache.Add(key, set)
	c.mu.RUnlock()
	return nil
}

// Evict removes the given keys
func (c *MemoryCache) Evict(ctx context.Context, keys ...string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, key := range keys {
		if c.cache.Remove(key) {
			c.recordEviction(key, "invalidation")
		}
	}
	return nil
}

// EvictPatterns removes keys matching glob patterns
func (c *MemoryCache) EvictPatterns(ctx context.Context, patterns ...string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, key := range c.cache.Keys() {
		for _, pattern := range patterns {
			if ok, _ := path.Match(pattern, key); ok {
				if c.cache.Remove(key) {
					c.recordEviction(key, "sweep")
				}
				break
			}
		}
	}
	return nil
}

// SetDegraded switches the effective TTL. Toggling rebuilds the LRU because
// the expirable implementation cannot change TTL in place.
func (c *MemoryCache) SetDegraded(degraded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded == degraded {
		return
	}
	c.degraded = degraded
	c.cache = lru.NewLRU[string, rbac.PermissionSet](c.maxSize, nil, c.ttl.Effective(degraded))
	if c.metrics != nil {
		if degraded {
			c.metrics.DegradedMode.Set(1)
		} else {
			c.metrics.DegradedMode.Set(0)
		}
	}
}

// Degraded reports whether the cache is in degraded mode
func (c *MemoryCache) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// Close releases resources
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
	return nil
}

func (c *MemoryCache) recordHit(key string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(KeyType(key)).Inc()
	}
}

func (c *MemoryCache) recordMiss(key string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(KeyType(key)).Inc()
	}
}

func (c *MemoryCache) recordEviction(key, reason string) {
	if c.metrics != nil {
		c.metrics.CacheEvictionsTotal.WithLabelValues(KeyType(key), reason).Inc()
	}
}
