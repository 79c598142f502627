package check

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// DefaultBatchLimit bounds the number of items per batch check
const DefaultBatchLimit = 100

// Item is one (resource, action) pair to check. ResourceID narrows the check
// to a specific resource instance; the engine carries it through but grants
// are category-level today.
type Item struct {
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	ResourceID string `json:"resource_id,omitempty"`
}

// Result is the definitive answer for one item: granted, or denied with a
// reason. There is no unknown state.
type Result struct {
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	ResourceID string `json:"resource_id,omitempty"`
	Granted    bool   `json:"granted"`
	Reason     string `json:"reason,omitempty"`
}

// PermissionResolver computes an effective permission set on a cache miss
type PermissionResolver interface {
	Resolve(ctx context.Context, userID, orgID int64) (rbac.PermissionSet, error)
}

// MembershipChecker answers whether a user belongs to an organization.
// Consulted only on the deny path to pick the right reason.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID, orgID int64) (bool, error)
}

// Service answers permission checks cache-first. One set fetch serves an
// entire batch; that amortization is why batch exists at all.
type Service struct {
	cache      cache.Cache
	resolver   PermissionResolver
	membership MembershipChecker
	logger     *observability.Logger
	metrics    *observability.Metrics
	batchLimit int
}

// Option configures a Service
type Option func(*Service)

// WithBatchLimit overrides the batch size limit
func WithBatchLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.batchLimit = limit
		}
	}
}

// NewService creates a permission check service
func NewService(c cache.Cache, r PermissionResolver, m MembershipChecker, logger *observability.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		cache:      c,
		resolver:   r,
		membership: m,
		logger:     logger,
		metrics:    metrics,
		batchLimit: DefaultBatchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckSingle answers one permission check
func (s *Service) CheckSingle(ctx context.Context, userID, orgID int64, item Item) (Result, error) {
	results, err := s.check(ctx, "single", userID, orgID, []Item{item})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// CheckBatch answers up to batchLimit checks against one fetched set,
// preserving input order
func (s *Service) CheckBatch(ctx context.Context, userID, orgID int64, items []Item) ([]Result, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Message: "batch must not be empty"}
	}
	if len(items) > s.batchLimit {
		s.count("batch", "rejected")
		return nil, &BatchTooLargeError{Size: len(items), Limit: s.batchLimit}
	}
	if s.metrics != nil {
		s.metrics.CheckBatchSize.Observe(float64(len(items)))
	}
	return s.check(ctx, "batch", userID, orgID, items)
}

func (s *Service) check(ctx context.Context, kind string, userID, orgID int64, items []Item) ([]Result, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.CheckDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		}
	}()

	// Validation happens before any cache or store work
	perms, err := validate(userID, orgID, items)
	if err != nil {
		s.count(kind, "rejected")
		return nil, err
	}

	set, err := s.permissionSet(ctx, userID, orgID)
	if err != nil {
		s.count(kind, "error")
		return nil, err
	}

	results := make([]Result, len(items))
	anyDenied := false
	for i, item := range items {
		granted := set.Has(perms[i])
		results[i] = Result{
			Resource:   item.Resource,
			Action:     item.Action,
			ResourceID: item.ResourceID,
			Granted:    granted,
		}
		if !granted {
			anyDenied = true
		}
	}

	if anyDenied {
		reason, err := s.denialReason(ctx, userID, orgID)
		if err != nil {
			s.count(kind, "error")
			return nil, err
		}
		for i := range results {
			if !results[i].Granted {
				results[i].Reason = reason
			}
		}
	}

	outcome := "granted"
	if anyDenied {
		outcome = "denied"
	}
	s.count(kind, outcome)
	return results, nil
}

// permissionSet fetches the cached set or resolves and caches it. A cache
// read failure routes the check around the cache rather than failing it;
// only resolver failures propagate, and those fail closed.
func (s *Service) permissionSet(ctx context.Context, userID, orgID int64) (rbac.PermissionSet, error) {
	key := cache.UserPermissionsKey(userID, orgID)

	set, ok, err := s.cache.GetSet(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id": userID,
			"org_id":  orgID,
		}).Warn("cache read failed, routing check to resolver")
	} else if ok {
		return set, nil
	}

	set, err = s.resolver.Resolve(ctx, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("permission resolution failed: %w", err)
	}

	if err := s.cache.PutSet(ctx, key, set); err != nil {
		s.logger.WithError(err).Warn("cache write failed after resolution")
	}
	return set, nil
}

// denialReason distinguishes "not a member" from "Insufficient permissions".
// A membership-check failure propagates: guessing the reason risks leaking
// membership information.
func (s *Service) denialReason(ctx context.Context, userID, orgID int64) (string, error) {
	member, err := s.membership.IsMember(ctx, userID, orgID)
	if err != nil {
		return "", fmt.Errorf("membership check failed: %w", err)
	}
	if !member {
		return ReasonNotAMember, nil
	}
	return ReasonInsufficient, nil
}

// validate checks ids and every item against the static catalog, returning
// the parsed permissions in input order
func validate(userID, orgID int64, items []Item) ([]rbac.Permission, error) {
	if userID <= 0 {
		return nil, &ValidationError{Field: "user_id", Message: "must be positive"}
	}
	if orgID <= 0 {
		return nil, &ValidationError{Field: "organization_id", Message: "must be positive"}
	}

	perms := make([]rbac.Permission, len(items))
	for i, item := range items {
		res, err := rbac.ParseResource(item.Resource)
		if err != nil {
			return nil, &ValidationError{Field: "resource", Message: err.Error()}
		}
		act, err := rbac.ParseAction(item.Action)
		if err != nil {
			return nil, &ValidationError{Field: "action", Message: err.Error()}
		}
		perms[i] = rbac.Permission{Resource: res, Action: act}
	}
	return perms, nil
}

func (s *Service) count(kind, result string) {
	if s.metrics != nil {
		s.metrics.CheckRequestsTotal.WithLabelValues(kind, result).Inc()
	}
}
