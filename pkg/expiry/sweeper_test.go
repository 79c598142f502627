package expiry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/events"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/store"
)

type fakeStore struct {
	store.Store

	expired     []rbac.UserRoleAssignment
	expiredErr  error
	marked      [][]int64
	markErr     error
	expireCalls int
}

func (f *fakeStore) ExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]rbac.UserRoleAssignment, error) {
	f.expireCalls++
	if f.expiredErr != nil {
		return nil, f.expiredErr
	}
	if len(f.expired) > limit {
		return f.expired[:limit], nil
	}
	return f.expired, nil
}

func (f *fakeStore) MarkAssignmentsExpired(ctx context.Context, ids []int64, now time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, ids)
	return nil
}

type fakePublisher struct {
	published []events.Envelope
	failAfter int // fail on the Nth publish (1-based); 0 = never
}

func (f *fakePublisher) PublishEvent(ctx context.Context, env events.Envelope) error {
	if f.failAfter > 0 && len(f.published)+1 >= f.failAfter {
		return errors.New("publish failed")
	}
	f.published = append(f.published, env)
	return nil
}

func newTestSweeper(fs *fakeStore, pub *fakePublisher, opts ...Option) *Sweeper {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return New(fs, pub, logger, opts...)
}

func expiredAssignment(id, userID, roleID, orgID int64) rbac.UserRoleAssignment {
	past := time.Now().Add(-time.Hour)
	return rbac.UserRoleAssignment{
		ID: id, UserID: userID, RoleID: roleID, OrganizationID: orgID,
		ExpiresAt: &past,
	}
}

func TestSweep_EmitsExpiredRemovals(t *testing.T) {
	fs := &fakeStore{expired: []rbac.UserRoleAssignment{
		expiredAssignment(1, 42, 10, 7),
		expiredAssignment(2, 43, 10, 7),
	}}
	pub := &fakePublisher{}
	s := newTestSweeper(fs, pub)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.published, 2)
	for i, env := range pub.published {
		assert.Equal(t, events.KindUserRoleRemoved, env.Kind)
		assert.NotEmpty(t, env.ID, "synthetic events need correlation IDs")

		p, err := env.DecodeUserRoleRemoved()
		require.NoError(t, err)
		assert.Equal(t, events.ReasonExpired, p.Reason)
		assert.Equal(t, fs.expired[i].UserID, p.UserID)
	}

	require.Len(t, fs.marked, 1)
	assert.Equal(t, []int64{1, 2}, fs.marked[0])
}

func TestSweep_NothingExpired(t *testing.T) {
	fs := &fakeStore{}
	pub := &fakePublisher{}
	s := newTestSweeper(fs, pub)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, pub.published)
	assert.Empty(t, fs.marked)
}

func TestSweep_PublishFailureLeavesRestForNextSweep(t *testing.T) {
	fs := &fakeStore{expired: []rbac.UserRoleAssignment{
		expiredAssignment(1, 42, 10, 7),
		expiredAssignment(2, 43, 10, 7),
		expiredAssignment(3, 44, 10, 7),
	}}
	pub := &fakePublisher{failAfter: 2}
	s := newTestSweeper(fs, pub)

	n, err := s.Sweep(context.Background())
	require.Error(t, err, "partial sweep must be reported")
	assert.Equal(t, 1, n)

	// Only the published assignment is marked; the rest retry next sweep
	require.Len(t, fs.marked, 1)
	assert.Equal(t, []int64{1}, fs.marked[0])
}

func TestSweep_StoreFailure(t *testing.T) {
	fs := &fakeStore{expiredErr: store.ErrUnavailable}
	s := newTestSweeper(fs, &fakePublisher{})

	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestSweep_BatchSizeRespected(t *testing.T) {
	fs := &fakeStore{expired: []rbac.UserRoleAssignment{
		expiredAssignment(1, 42, 10, 7),
		expiredAssignment(2, 43, 10, 7),
		expiredAssignment(3, 44, 10, 7),
	}}
	pub := &fakePublisher{}
	s := newTestSweeper(fs, pub, WithBatchSize(2))

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, pub.published, 2)
}
