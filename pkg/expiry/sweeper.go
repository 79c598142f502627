package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/warden/pkg/events"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/store"
)

// DefaultSchedule runs the sweep every minute; the TTL safety net covers the
// window between an assignment lapsing and the next sweep
const DefaultSchedule = "* * * * *"

// DefaultBatchSize bounds how many lapsed assignments one sweep processes
const DefaultBatchSize = 500

// Sweeper finds assignments whose expiry has passed, emits a synthetic
// UserRoleRemoved event with reason EXPIRED for each, and marks them removed
// so the next sweep skips them. Expiry rides the same invalidation path as
// explicit removals; there is no second eviction code path.
type Sweeper struct {
	store     store.Store
	publisher events.Publisher
	logger    *observability.Logger
	batchSize int
	now       func() time.Time
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithBatchSize overrides the per-sweep batch size
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock overrides the clock for tests
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a Sweeper
func New(st store.Store, pub events.Publisher, logger *observability.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     st,
		publisher: pub,
		logger:    logger.WithField("component", "expiry_sweep"),
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep processes one batch of lapsed assignments. Returns the number of
// assignments swept.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	expired, err := s.store.ExpiredAssignments(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load expired assignments: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	// Events go out first: if marking fails the next sweep re-emits, and
	// the invalidation engine is idempotent. The reverse order could lose
	// the eviction entirely.
	var swept []int64
	for _, a := range expired {
		env, err := events.NewEnvelope(
			uuid.NewString(),
			events.KindUserRoleRemoved,
			now,
			events.UserRoleRemoved{
				UserID:         a.UserID,
				RoleID:         a.RoleID,
				OrganizationID: a.OrganizationID,
				Reason:         events.ReasonExpired,
			},
		)
		if err != nil {
			return len(swept), err
		}
		if err := s.publisher.PublishEvent(ctx, env); err != nil {
			// Stop here; unmarked assignments are retried next sweep
			s.logger.WithError(err).WithField("assignment_id", a.ID).Error("failed to publish expiry event")
			break
		}
		swept = append(swept, a.ID)
	}

	if len(swept) > 0 {
		if err := s.store.MarkAssignmentsExpired(ctx, swept, now); err != nil {
			return len(swept), fmt.Errorf("failed to mark swept assignments: %w", err)
		}
		s.logger.WithField("count", len(swept)).Info("swept expired role assignments")
	}

	if len(swept) < len(expired) {
		return len(swept), fmt.Errorf("swept %d of %d expired assignments", len(swept), len(expired))
	}
	return len(swept), nil
}

// Schedule registers the sweep on a cron scheduler
func (s *Sweeper) Schedule(c *cron.Cron, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	_, err := c.AddFunc(spec, func() {
		defer observability.RecoverPanic(s.logger, "expiry sweep")
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.WithError(err).Error("expiry sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	return nil
}
