package invalidation

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/events"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/store"
)

// Invalidation breadth tiers. Targeted clears one user's entry, selective
// clears the holders of one role, broad sweeps an entire organization.
const (
	TierTargeted  = "targeted"
	TierSelective = "selective"
	TierBroad     = "broad"
)

// Engine maps each domain event to its invalidation breadth and performs the
// evictions. It is the only component that knows why a cache entry dies; the
// cache itself stays policy-free.
type Engine struct {
	cache    cache.Cache
	store    store.Store
	recorder audit.Recorder
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// New creates an invalidation engine
func New(c cache.Cache, s store.Store, recorder audit.Recorder, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		cache:    c,
		store:    s,
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// HandleEvent implements events.Handler. Decode failures are dropped, not
// retried: decoding is deterministic. Eviction failures are returned so the
// consumer retries, and flip the cache into degraded mode until an event
// succeeds again.
func (e *Engine) HandleEvent(ctx context.Context, env events.Envelope) error {
	start := time.Now()
	logger := observability.FromContext(ctx).WithField("event_kind", string(env.Kind))

	var (
		tier string
		err  error
	)

	switch env.Kind {
	case events.KindUserRoleAssigned:
		tier, err = e.handleUserRoleAssigned(ctx, env, logger)
	case events.KindUserRoleRemoved:
		tier, err = e.handleUserRoleRemoved(ctx, env, logger)
	case events.KindRoleModified:
		tier, err = e.handleRoleModified(ctx, env, logger)
	case events.KindRoleDeleted:
		tier, err = e.handleRoleDeleted(ctx, env, logger)
	default:
		// ParseEnvelope already rejects unknown kinds; this only fires if a
		// kind is added there without a handler here
		logger.Warnf("no handler for event kind %q, dropping", env.Kind)
		return nil
	}

	if err != nil {
		e.record(env.Kind, tier, "error")
		e.enterDegraded(ctx, env, err)
		return err
	}
	if tier == "" {
		// Dropped during decode
		e.record(env.Kind, "none", "dropped")
		return nil
	}

	e.record(env.Kind, tier, "ok")
	if e.metrics != nil {
		e.metrics.InvalidationDuration.WithLabelValues(tier).Observe(time.Since(start).Seconds())
	}
	e.leaveDegraded(ctx, env)
	return nil
}

// handleUserRoleAssigned evicts the one affected user entry
func (e *Engine) handleUserRoleAssigned(ctx context.Context, env events.Envelope, logger *observability.Logger) (string, error) {
	p, err := env.DecodeUserRoleAssigned()
	if err != nil {
		e.dropMalformed(logger, err)
		return "", nil
	}

	if err := e.cache.Evict(ctx, cache.UserPermissionsKey(p.UserID, p.OrganizationID)); err != nil {
		return TierTargeted, fmt.Errorf("targeted eviction failed: %w", err)
	}
	return TierTargeted, nil
}

// handleUserRoleRemoved evicts the one affected user entry
func (e *Engine) handleUserRoleRemoved(ctx context.Context, env events.Envelope, logger *observability.Logger) (string, error) {
	p, err := env.DecodeUserRoleRemoved()
	if err != nil {
		e.dropMalformed(logger, err)
		return "", nil
	}

	logger.WithFields(map[string]interface{}{
		"user_id": p.UserID,
		"org_id":  p.OrganizationID,
		"reason":  string(p.Reason),
	}).Debug("evicting user entry after role removal")

	if err := e.cache.Evict(ctx, cache.UserPermissionsKey(p.UserID, p.OrganizationID)); err != nil {
		return TierTargeted, fmt.Errorf("targeted eviction failed: %w", err)
	}
	return TierTargeted, nil
}

// handleRoleModified evicts the role bundle and every holder's entry, and
// escalates to an organization-wide sweep when a high-privilege permission
// is involved in the change
func (e *Engine) handleRoleModified(ctx context.Context, env events.Envelope, logger *observability.Logger) (string, error) {
	p, err := env.DecodeRoleModified()
	if err != nil {
		e.dropMalformed(logger, err)
		return "", nil
	}

	if err := e.cache.Evict(ctx,
		cache.RolePermissionsKey(p.RoleID),
		cache.OrganizationRolesKey(p.OrganizationID),
	); err != nil {
		return TierSelective, fmt.Errorf("role eviction failed: %w", err)
	}

	highPrivilege := highPrivilegeChange(p.Changed())
	tier := TierSelective
	if highPrivilege {
		tier = TierBroad
	}

	if err := e.evictHolders(ctx, p.RoleID, logger); err != nil {
		if !highPrivilege {
			// Holder lookup failed; the org sweep costs more but restores
			// correctness without the holder list
			logger.WithError(err).Warn("holder lookup failed, widening to org sweep")
			tier = TierBroad
			if err := e.cache.EvictPatterns(ctx, cache.UserPermissionsOrgPattern(p.OrganizationID)); err != nil {
				return tier, fmt.Errorf("fallback org sweep failed: %w", err)
			}
			return tier, nil
		}
		// The broad sweep below covers every holder anyway
		logger.WithError(err).Warn("holder lookup failed, relying on org sweep")
	}

	if highPrivilege {
		if err := e.broadSweep(ctx, env, p, logger); err != nil {
			return tier, err
		}
	}
	return tier, nil
}

// handleRoleDeleted evicts the role bundle and every previously-assigned
// user's entry
func (e *Engine) handleRoleDeleted(ctx context.Context, env events.Envelope, logger *observability.Logger) (string, error) {
	p, err := env.DecodeRoleDeleted()
	if err != nil {
		e.dropMalformed(logger, err)
		return "", nil
	}

	if err := e.cache.Evict(ctx,
		cache.RolePermissionsKey(p.RoleID),
		cache.OrganizationRolesKey(p.OrganizationID),
	); err != nil {
		return TierSelective, fmt.Errorf("role eviction failed: %w", err)
	}

	holders, err := e.store.RoleHolders(ctx, p.RoleID, e.now())
	if err != nil || len(holders) == 0 {
		// The deletion may have cascaded over the assignments before the
		// event arrived, leaving no holders to enumerate. Sweep the org
		// rather than trust an empty list.
		if err != nil {
			logger.WithError(err).Warn("holder lookup failed for deleted role, widening to org sweep")
		}
		if err := e.cache.EvictPatterns(ctx, cache.UserPermissionsOrgPattern(p.OrganizationID)); err != nil {
			return TierBroad, fmt.Errorf("org sweep failed: %w", err)
		}
		return TierBroad, nil
	}

	keys := make([]string, 0, len(holders))
	for _, h := range holders {
		keys = append(keys, cache.UserPermissionsKey(h.UserID, h.OrganizationID))
	}
	if err := e.cache.Evict(ctx, keys...); err != nil {
		return TierSelective, fmt.Errorf("holder eviction failed: %w", err)
	}
	return TierSelective, nil
}

// evictHolders clears the cached entry of every active holder of a role
func (e *Engine) evictHolders(ctx context.Context, roleID int64, logger *observability.Logger) error {
	holders, err := e.store.RoleHolders(ctx, roleID, e.now())
	if err != nil {
		return err
	}
	if len(holders) == 0 {
		return nil
	}

	keys := make([]string, 0, len(holders))
	for _, h := range holders {
		keys = append(keys, cache.UserPermissionsKey(h.UserID, h.OrganizationID))
	}
	logger.WithField("holders", len(holders)).Debug("evicting role holder entries")
	return e.cache.Evict(ctx, keys...)
}

// broadSweep clears every user entry in the organization and leaves an audit
// record. An un-invalidated privilege change is a security incident, so this
// is the one place correctness is allowed to dominate cost.
func (e *Engine) broadSweep(ctx context.Context, env events.Envelope, p events.RoleModified, logger *observability.Logger) error {
	if err := e.cache.EvictPatterns(ctx, cache.UserPermissionsOrgPattern(p.OrganizationID)); err != nil {
		return fmt.Errorf("org sweep failed: %w", err)
	}

	if e.metrics != nil {
		e.metrics.HighPrivilegeSweepsTotal.Inc()
	}

	record := &audit.SecurityEvent{
		Timestamp:      e.now(),
		EventType:      audit.EventHighPrivilegeSweep,
		OrganizationID: p.OrganizationID,
		RoleID:         p.RoleID,
		CorrelationID:  env.ID,
		PermissionKeys: p.Changed(),
		Message:        fmt.Sprintf("organization-wide cache sweep: high-privilege change on role %d", p.RoleID),
	}
	if err := e.recorder.Record(ctx, record); err != nil {
		// Audit failure must not undo a completed sweep
		logger.WithError(err).Error("failed to record high-privilege sweep")
	}
	return nil
}

// enterDegraded flips the cache into degraded mode after an eviction failure
func (e *Engine) enterDegraded(ctx context.Context, env events.Envelope, cause error) {
	if e.cache.Degraded() {
		return
	}
	e.cache.SetDegraded(true)
	e.logger.WithError(cause).Error("cache invalidation degraded, tightening TTLs")

	record := &audit.SecurityEvent{
		Timestamp:     e.now(),
		EventType:     audit.EventDegradedInvalidation,
		CorrelationID: env.ID,
		Message:       "entering degraded invalidation: " + cause.Error(),
	}
	if err := e.recorder.Record(ctx, record); err != nil {
		e.logger.WithError(err).Error("failed to record degraded transition")
	}
}

// leaveDegraded restores normal TTLs after a fully successful event
func (e *Engine) leaveDegraded(ctx context.Context, env events.Envelope) {
	if !e.cache.Degraded() {
		return
	}
	e.cache.SetDegraded(false)
	e.logger.Info("cache invalidation recovered, restoring TTLs")

	record := &audit.SecurityEvent{
		Timestamp:     e.now(),
		EventType:     audit.EventDegradedInvalidation,
		CorrelationID: env.ID,
		Message:       "leaving degraded invalidation",
	}
	if err := e.recorder.Record(ctx, record); err != nil {
		e.logger.WithError(err).Error("failed to record degraded recovery")
	}
}

func (e *Engine) dropMalformed(logger *observability.Logger, err error) {
	logger.WithError(err).Warn("dropping event with undecodable payload")
	if e.metrics != nil {
		e.metrics.EventsDroppedTotal.WithLabelValues("malformed").Inc()
	}
}

func (e *Engine) record(kind events.Kind, tier, outcome string) {
	if e.metrics != nil {
		e.metrics.InvalidationEventsTotal.WithLabelValues(string(kind), tier, outcome).Inc()
	}
}

// highPrivilegeChange reports whether any changed permission key is
// classified high privilege
func highPrivilegeChange(keys []string) bool {
	for _, key := range keys {
		if rbac.IsHighPrivilege(key) {
			return true
		}
	}
	return false
}
