package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/check"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/store"
)

type fakeResolver struct {
	sets map[[2]int64]rbac.PermissionSet
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID, orgID int64) (rbac.PermissionSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	if set, ok := f.sets[[2]int64{userID, orgID}]; ok {
		return set, nil
	}
	return rbac.NewPermissionSet(), nil
}

type fakeStore struct {
	store.Store

	members  map[[2]int64]bool
	catalog  []rbac.CatalogEntry
	roles    map[int64][]rbac.Role
	storeErr error
}

func (f *fakeStore) IsMember(ctx context.Context, userID, orgID int64) (bool, error) {
	if f.storeErr != nil {
		return false, f.storeErr
	}
	return f.members[[2]int64{userID, orgID}], nil
}

func (f *fakeStore) ListCatalog(ctx context.Context) ([]rbac.CatalogEntry, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	return f.catalog, nil
}

func (f *fakeStore) OrganizationRoles(ctx context.Context, orgID int64) ([]rbac.Role, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	return f.roles[orgID], nil
}

func newTestServer(t *testing.T, r *fakeResolver, fs *fakeStore) *Server {
	t.Helper()
	c := cache.NewMemoryCache(100, cache.DefaultTTLPolicy(), nil)
	t.Cleanup(func() { c.Close() })
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	checks := check.NewService(c, r, fs, logger, nil)
	return NewServer(checks, fs, logger, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestCheckSingle_Granted(t *testing.T) {
	r := &fakeResolver{sets: map[[2]int64]rbac.PermissionSet{
		{42, 7}: rbac.NewPermissionSet(rbac.Permission{Resource: rbac.ResourcePayments, Action: rbac.ActionRead}),
	}}
	fs := &fakeStore{members: map[[2]int64]bool{{42, 7}: true}}
	s := newTestServer(t, r, fs)

	rec := doJSON(t, s, "POST", "/api/v1/organizations/7/users/42/permissions/check",
		check.Item{Resource: "PAYMENTS", Action: "READ"})

	require.Equal(t, http.StatusOK, rec.Code)

	var result check.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Granted)
	assert.Empty(t, result.Reason)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCheckSingle_DeniedWithReason(t *testing.T) {
	r := &fakeResolver{}
	fs := &fakeStore{members: map[[2]int64]bool{{42, 7}: true}}
	s := newTestServer(t, r, fs)

	rec := doJSON(t, s, "POST", "/api/v1/organizations/7/users/42/permissions/check",
		check.Item{Resource: "PAYMENTS", Action: "WRITE"})

	require.Equal(t, http.StatusOK, rec.Code, "a denial is a definitive answer, not an error")

	var result check.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Granted)
	assert.Equal(t, check.ReasonInsufficient, result.Reason)
}

func TestCheckSingle_NotAMember(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, &fakeStore{})

	rec := doJSON(t, s, "POST", "/api/v1/organizations/7/users/42/permissions/check",
		check.Item{Resource: "PAYMENTS", Action: "READ"})

	require.Equal(t, http.StatusOK, rec.Code)

	var result check.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Granted)
	assert.Equal(t, check.ReasonNotAMember, result.Reason)
}

func TestCheckSingle_UnknownResourceRejected(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, &fakeStore{})

	rec := doJSON(t, s, "POST", "/api/v1/organizations/7/users/42/permissions/check",
		check.Item{Resource: "WIDGETS", Action: "READ"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckSingle_NonIntegerPath(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, &fakeStore{})

	rec := doJSON(t, s, "POST", "/api/v1/organizations/acme/users/42/permissions/check",
		check.Item{Resource: "PAYMENTS", Action: "READ"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckSingle_MalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, &fakeStore{})

	req := httptest.NewRequest("POST", "/api/v1/organizations/7/users/42/permissions/check",
		bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckSingle_ResolverUnavailable(t *testing.T) {
	r := &fakeResolver{err: store.ErrUnavailable}
	s := newTestServer(t, r, &fakeStore{})

	rec := doJSON(t, s, "POST", "/api/v1/organizations/7/users/42/permissions/check",
		check.Item{Resource: "PAYMENTS", Action: "READ"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "infrastructure failure must never read as a grant")
}

func TestCheckBatch(t *testing.T) {
	r := &fakeResolver{sets: map[[2]int64]rbac.PermissionSet{
		{42, 7}: rbac.NewPermissionSet(rbac.Permission{Resource: rbac.ResourcePayments, Action: rbac.ActionRead}),
	}}
	fs := &fakeStore{members: map[[2]int64]bool{{42, 7}: true}}
	s := newTestServer(t, r, fs)

	rec := doJSON(t, s, "POST", "/api/v1/organizations/7/users/42/permissions/check-batch",
		batchCheckRequest{Items: []check.Item{
			{Resource: "PAYMENTS", Action: "READ"},
			{Resource: "PAYMENTS", Action: "WRITE"},
		}})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Granted)
	assert.False(t, resp.Results[1].Granted)
	assert.Equal(t, check.ReasonInsufficient, resp.Results[1].Reason)
}

func TestCheckBatch_TooLarge(t *testing.T) {
	fs := &fakeStore{members: map[[2]int64]bool{{42, 7}: true}}
	s := newTestServer(t, &fakeResolver{}, fs)

	items := make([]check.Item, 101)
	for i := range items {
		items[i] = check.Item{Resource: "PAYMENTS", Action: "READ"}
	}
	rec := doJSON(t, s, "POST", "/api/v1/organizations/7/users/42/permissions/check-batch",
		batchCheckRequest{Items: items})

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCheckBatch_Empty(t *testing.T) {
	s := newTestServer(t, &fakeResolver{}, &fakeStore{})

	rec := doJSON(t, s, "POST", "/api/v1/organizations/7/users/42/permissions/check-batch",
		batchCheckRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCatalog(t *testing.T) {
	fs := &fakeStore{catalog: []rbac.CatalogEntry{
		{ID: 1, Resource: rbac.ResourcePayments, Action: rbac.ActionRead, Active: true},
		{ID: 2, Resource: rbac.ResourcePayments, Action: rbac.ActionWrite, Active: true},
	}}
	s := newTestServer(t, &fakeResolver{}, fs)

	rec := doJSON(t, s, "GET", "/api/v1/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp catalogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Permissions, 2)
	assert.Equal(t, rbac.ResourcePayments, resp.Permissions[0].Resource)
}

func TestListCatalog_StoreUnavailable(t *testing.T) {
	fs := &fakeStore{storeErr: store.ErrUnavailable}
	s := newTestServer(t, &fakeResolver{}, fs)

	rec := doJSON(t, s, "GET", "/api/v1/permissions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListOrganizationRoles(t *testing.T) {
	fs := &fakeStore{roles: map[int64][]rbac.Role{
		7: {{ID: 10, OrganizationID: 7, Name: "admin", Type: rbac.RolePredefined, Active: true}},
	}}
	s := newTestServer(t, &fakeResolver{}, fs)

	rec := doJSON(t, s, "GET", "/api/v1/organizations/7/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rolesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Roles, 1)
	assert.Equal(t, "admin", resp.Roles[0].Name)

	// Unknown org returns an empty list, not null
	rec = doJSON(t, s, "GET", "/api/v1/organizations/999/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"roles":[]`)
}
