package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/store"
)

// DefaultTimeout bounds a full resolution against the store
const DefaultTimeout = 150 * time.Millisecond

// Resolver computes a user's effective permission set within an organization:
// the union of the permission bundles of every role the user actively holds.
// Role bundles go through the cache so resolving many users of the same org
// does not re-query the same roles.
type Resolver struct {
	store   store.Store
	cache   cache.Cache
	logger  *observability.Logger
	metrics *observability.Metrics
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Resolver
type Option func(*Resolver)

// WithTimeout overrides the resolution timeout
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithClock overrides the clock; tests use this to pin activity windows
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a Resolver
func New(s store.Store, c cache.Cache, logger *observability.Logger, metrics *observability.Metrics, opts ...Option) *Resolver {
	r := &Resolver{
		store:   s,
		cache:   c,
		logger:  logger,
		metrics: metrics,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the user's effective permission set in the organization.
// A user with no active assignments resolves to an empty set, not an error;
// "no permissions" is a legitimate answer.
func (r *Resolver) Resolve(ctx context.Context, userID, orgID int64) (rbac.PermissionSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ResolverDuration.Observe(time.Since(start).Seconds())
		}
	}()

	now := r.now()
	assignments, err := r.store.ActiveAssignments(ctx, userID, orgID, now)
	if err != nil {
		r.recordError()
		return nil, fmt.Errorf("failed to load assignments for user %d in org %d: %w", userID, orgID, err)
	}

	result := rbac.NewPermissionSet()
	seen := make(map[int64]struct{}, len(assignments))

	for _, a := range assignments {
		// The store already filters, but the predicate stays authoritative
		if !a.ActiveAt(now) {
			continue
		}
		if _, ok := seen[a.RoleID]; ok {
			continue
		}
		seen[a.RoleID] = struct{}{}

		bundle, err := r.rolePermissions(ctx, a.RoleID)
		if err != nil {
			r.recordError()
			return nil, fmt.Errorf("failed to load permissions for role %d: %w", a.RoleID, err)
		}
		result.Union(bundle)
	}

	return result, nil
}

// rolePermissions returns a role's bundle, cache-first. Cache failures fall
// through to the store; only store failures abort resolution.
func (r *Resolver) rolePermissions(ctx context.Context, roleID int64) (rbac.PermissionSet, error) {
	key := cache.RolePermissionsKey(roleID)

	bundle, ok, err := r.cache.GetSet(ctx, key)
	if err != nil {
		r.logger.WithError(err).WithField("role_id", roleID).Warn("role bundle cache read failed, falling through to store")
	} else if ok {
		return bundle, nil
	}

	bundle, err = r.store.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.PutSet(ctx, key, bundle); err != nil {
		r.logger.WithError(err).WithField("role_id", roleID).Warn("role bundle cache write failed")
	}
	return bundle, nil
}

func (r *Resolver) recordError() {
	if r.metrics != nil {
		r.metrics.ResolverErrorsTotal.Inc()
	}
}
