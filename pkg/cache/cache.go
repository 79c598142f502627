package cache

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/warden/pkg/rbac"
)

// ErrUnavailable indicates the cache backend could not be reached. Callers
// treat it as a miss on the read path and as a hard failure on the
// invalidation path.
var ErrUnavailable = errors.New("cache unavailable")

// TTLPolicy controls the safety-net expiry applied to every cached set.
// Base is the normal bound on staleness; Degraded is the tightened bound
// used while event-driven invalidation cannot be trusted.
type TTLPolicy struct {
	Base     time.Duration
	Degraded time.Duration
}

// DefaultTTLPolicy returns the standard 15-minute safety net with a
// 1-minute degraded fallback
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Base:     15 * time.Minute,
		Degraded: time.Minute,
	}
}

// Effective returns the TTL to apply given the current degraded state
func (p TTLPolicy) Effective(degraded bool) time.Duration {
	if degraded {
		return p.Degraded
	}
	return p.Base
}

// Cache stores serialized permission sets under string keys. An empty set is
// a valid cached value: "no permissions" is a real answer and caching it
// shields the store from repeated lookups for non-members.
type Cache interface {
	// GetSet returns the cached set for key. The second return is false on
	// a miss; corrupt entries are deleted and reported as a miss.
	GetSet(ctx context.Context, key string) (rbac.PermissionSet, bool, error)

	// PutSet stores the set under key with the policy's effective TTL
	PutSet(ctx context.Context, key string, set rbac.PermissionSet) error

	// Evict removes the given keys. Evicting an absent key is not an error.
	Evict(ctx context.Context, keys ...string) error

	// EvictPatterns removes every key matching the given glob patterns
	EvictPatterns(ctx context.Context, patterns ...string) error

	// SetDegraded switches the effective TTL between Base and Degraded
	SetDegraded(degraded bool)

	// Degraded reports whether the cache is in degraded mode
	Degraded() bool

	Close() error
}
