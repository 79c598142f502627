package resolver

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/store"
)

// fakeStore counts calls so tests can assert cache effectiveness
type fakeStore struct {
	store.Store

	assignments     map[[2]int64][]rbac.UserRoleAssignment
	bundles         map[int64]rbac.PermissionSet
	assignmentCalls int
	bundleCalls     int
	assignmentsErr  error
	bundleErr       error
}

func (f *fakeStore) ActiveAssignments(ctx context.Context, userID, orgID int64, now time.Time) ([]rbac.UserRoleAssignment, error) {
	f.assignmentCalls++
	if f.assignmentsErr != nil {
		return nil, f.assignmentsErr
	}
	return f.assignments[[2]int64{userID, orgID}], nil
}

func (f *fakeStore) RolePermissions(ctx context.Context, roleID int64) (rbac.PermissionSet, error) {
	f.bundleCalls++
	if f.bundleErr != nil {
		return nil, f.bundleErr
	}
	if b, ok := f.bundles[roleID]; ok {
		return b, nil
	}
	return rbac.NewPermissionSet(), nil
}

func newTestResolver(t *testing.T, fs *fakeStore) (*Resolver, cache.Cache) {
	t.Helper()
	c := cache.NewMemoryCache(100, cache.DefaultTTLPolicy(), nil)
	t.Cleanup(func() { c.Close() })
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return New(fs, c, logger, nil), c
}

func perm(r rbac.Resource, a rbac.Action) rbac.Permission {
	return rbac.Permission{Resource: r, Action: a}
}

func TestResolve_UnionsRoleBundles(t *testing.T) {
	fs := &fakeStore{
		assignments: map[[2]int64][]rbac.UserRoleAssignment{
			{42, 7}: {
				{ID: 1, UserID: 42, RoleID: 10, OrganizationID: 7},
				{ID: 2, UserID: 42, RoleID: 11, OrganizationID: 7},
			},
		},
		bundles: map[int64]rbac.PermissionSet{
			10: rbac.NewPermissionSet(perm(rbac.ResourcePayments, rbac.ActionRead)),
			11: rbac.NewPermissionSet(
				perm(rbac.ResourcePayments, rbac.ActionRead),
				perm(rbac.ResourceUsers, rbac.ActionWrite),
			),
		},
	}
	r, _ := newTestResolver(t, fs)

	set, err := r.Resolve(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len(), "union must deduplicate overlapping grants")
	assert.True(t, set.Has(perm(rbac.ResourcePayments, rbac.ActionRead)))
	assert.True(t, set.Has(perm(rbac.ResourceUsers, rbac.ActionWrite)))
}

func TestResolve_NoAssignmentsIsEmptySetNotError(t *testing.T) {
	fs := &fakeStore{}
	r, _ := newTestResolver(t, fs)

	set, err := r.Resolve(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.NotNil(t, set)
	assert.Equal(t, 0, set.Len())
}

func TestResolve_RoleBundlesAreCached(t *testing.T) {
	fs := &fakeStore{
		assignments: map[[2]int64][]rbac.UserRoleAssignment{
			{1, 7}: {{ID: 1, UserID: 1, RoleID: 10, OrganizationID: 7}},
			{2, 7}: {{ID: 2, UserID: 2, RoleID: 10, OrganizationID: 7}},
		},
		bundles: map[int64]rbac.PermissionSet{
			10: rbac.NewPermissionSet(perm(rbac.ResourceAudit, rbac.ActionRead)),
		},
	}
	r, _ := newTestResolver(t, fs)

	_, err := r.Resolve(context.Background(), 1, 7)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), 2, 7)
	require.NoError(t, err)

	assert.Equal(t, 1, fs.bundleCalls, "second user holding the same role must hit the cached bundle")
	assert.Equal(t, 2, fs.assignmentCalls)
}

func TestResolve_DuplicateRoleAssignmentsFetchOnce(t *testing.T) {
	fs := &fakeStore{
		assignments: map[[2]int64][]rbac.UserRoleAssignment{
			{1, 7}: {
				{ID: 1, UserID: 1, RoleID: 10, OrganizationID: 7},
				{ID: 2, UserID: 1, RoleID: 10, OrganizationID: 7},
			},
		},
		bundles: map[int64]rbac.PermissionSet{
			10: rbac.NewPermissionSet(perm(rbac.ResourceAudit, rbac.ActionRead)),
		},
	}
	r, _ := newTestResolver(t, fs)

	set, err := r.Resolve(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 1, fs.bundleCalls)
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	fs := &fakeStore{assignmentsErr: store.ErrUnavailable}
	r, _ := newTestResolver(t, fs)

	_, err := r.Resolve(context.Background(), 42, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestResolve_BundleErrorPropagates(t *testing.T) {
	fs := &fakeStore{
		assignments: map[[2]int64][]rbac.UserRoleAssignment{
			{42, 7}: {{ID: 1, UserID: 42, RoleID: 10, OrganizationID: 7}},
		},
		bundleErr: store.ErrUnavailable,
	}
	r, _ := newTestResolver(t, fs)

	_, err := r.Resolve(context.Background(), 42, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestResolve_SkipsInactiveAssignments(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	fs := &fakeStore{
		assignments: map[[2]int64][]rbac.UserRoleAssignment{
			{42, 7}: {
				{ID: 1, UserID: 42, RoleID: 10, OrganizationID: 7, ExpiresAt: &past},
				{ID: 2, UserID: 42, RoleID: 11, OrganizationID: 7, RemovedAt: &past},
			},
		},
		bundles: map[int64]rbac.PermissionSet{
			10: rbac.NewPermissionSet(perm(rbac.ResourcePayments, rbac.ActionAdmin)),
			11: rbac.NewPermissionSet(perm(rbac.ResourceUsers, rbac.ActionAdmin)),
		},
	}
	r, _ := newTestResolver(t, fs)

	set, err := r.Resolve(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len(), "lapsed and removed assignments grant nothing")
	assert.Equal(t, 0, fs.bundleCalls)
}
