package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int

	// OpTimeout bounds each cache operation so a slow Redis cannot eat the
	// whole check budget. Zero means the 50ms default.
	OpTimeout time.Duration

	TTL TTLPolicy
}

// RedisCache is the production Cache backed by a shared Redis
type RedisCache struct {
	client   *redis.Client
	ttlMu    sync.RWMutex
	ttl      TTLPolicy
	timeout  time.Duration
	degraded atomic.Bool
	metrics  *observability.Metrics
}

// NewRedisCache creates a Redis-backed cache and verifies connectivity
func NewRedisCache(cfg RedisConfig, metrics *observability.Metrics) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl.Base == 0 {
		ttl = DefaultTTLPolicy()
	}
	timeout := cfg.OpTimeout
	if timeout == 0 {
		timeout = 50 * time.Millisecond
	}

	return &RedisCache{
		client:  client,
		ttl:     ttl,
		timeout: timeout,
		metrics: metrics,
	}, nil
}

// NewRedisCacheFromClient wraps an existing client; used by tests and the
// flush tool
func NewRedisCacheFromClient(client *redis.Client, ttl TTLPolicy, metrics *observability.Metrics) *RedisCache {
	if ttl.Base == 0 {
		ttl = DefaultTTLPolicy()
	}
	return &RedisCache{
		client:  client,
		ttl:     ttl,
		timeout: 50 * time.Millisecond,
		metrics: metrics,
	}
}

func (c *RedisCache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// GetSet retrieves a cached permission set
func (c *RedisCache) GetSet(ctx context.Context, key string) (rbac.PermissionSet, bool, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.recordMiss(key)
		return nil, false, nil
	} else if err != nil {
		c.recordError("get")
		return nil, false, fmt.Errorf("%w: redis get failed: %v", ErrUnavailable, err)
	}

	var set rbac.PermissionSet
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		// Corrupt entries are deleted and treated as a miss
		c.client.Del(ctx, key)
		c.recordEviction(key, "corrupt")
		c.recordMiss(key)
		return nil, false, nil
	}

	c.recordHit(key)
	return set, true, nil
}

// PutSet stores a permission set with the effective TTL
func (c *RedisCache) PutSet(ctx context.Context, key string, set rbac.PermissionSet) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal permission set: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttlPolicy().Effective(c.degraded.Load())).Err(); err != nil {
		c.recordError("set")
		return fmt.Errorf("%w: redis set failed: %v", ErrUnavailable, err)
	}
	return nil
}

// Evict removes the given keys
func (c *RedisCache) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.recordError("del")
		return fmt.Errorf("%w: redis del failed: %v", ErrUnavailable, err)
	}
	for _, key := range keys {
		c.recordEviction(key, "invalidation")
	}
	return nil
}

// EvictPatterns removes keys matching glob patterns using SCAN, never KEYS,
// so sweeps do not block the server
func (c *RedisCache) EvictPatterns(ctx context.Context, patterns ...string) error {
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				c.recordError("del")
				return fmt.Errorf("%w: failed to delete key %s: %v", ErrUnavailable, iter.Val(), err)
			}
			c.recordEviction(iter.Val(), "sweep")
		}
		if err := iter.Err(); err != nil {
			c.recordError("scan")
			return fmt.Errorf("%w: scan failed for pattern %s: %v", ErrUnavailable, pattern, err)
		}
	}
	return nil
}

// SetDegraded switches the effective TTL between Base and Degraded
func (c *RedisCache) SetDegraded(degraded bool) {
	was := c.degraded.Swap(degraded)
	if c.metrics != nil && was != degraded {
		if degraded {
			c.metrics.DegradedMode.Set(1)
		} else {
			c.metrics.DegradedMode.Set(0)
		}
	}
}

// Degraded reports whether the cache is in degraded mode
func (c *RedisCache) Degraded() bool {
	return c.degraded.Load()
}

// SetTTLPolicy swaps the TTL policy; new writes pick it up immediately.
// Entries written under the old policy keep their original expiry.
func (c *RedisCache) SetTTLPolicy(ttl TTLPolicy) {
	if ttl.Base == 0 {
		return
	}
	c.ttlMu.Lock()
	c.ttl = ttl
	c.ttlMu.Unlock()
}

func (c *RedisCache) ttlPolicy() TTLPolicy {
	c.ttlMu.RLock()
	defer c.ttlMu.RUnlock()
	return c.ttl
}

// Ping checks Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for health checks and pub/sub
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) recordHit(key string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(KeyType(key)).Inc()
	}
}

func (c *RedisCache) recordMiss(key string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(KeyType(key)).Inc()
	}
}

func (c *RedisCache) recordEviction(key, reason string) {
	if c.metrics != nil {
		c.metrics.CacheEvictionsTotal.WithLabelValues(KeyType(key), reason).Inc()
	}
}

func (c *RedisCache) recordError(op string) {
	if c.metrics != nil {
		c.metrics.CacheErrorsTotal.WithLabelValues(op).Inc()
	}
}
