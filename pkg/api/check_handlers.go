package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/check"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/store"
)

// batchCheckRequest is the body of POST .../permissions/check-batch
type batchCheckRequest struct {
	Items []check.Item `json:"items"`
}

// batchCheckResponse wraps the per-item results
type batchCheckResponse struct {
	Results []check.Result `json:"results"`
}

// checkSingle handles POST .../users/{userId}/permissions/check
func (s *Server) checkSingle(w http.ResponseWriter, r *http.Request) {
	userID, orgID, ok := parseSubject(w, r)
	if !ok {
		return
	}

	var item check.Item
	if !httputil.ParseJSONOrError(w, r, &item) {
		return
	}

	result, err := s.checks.CheckSingle(r.Context(), userID, orgID, item)
	if err != nil {
		s.writeCheckError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// checkBatch handles POST .../users/{userId}/permissions/check-batch
func (s *Server) checkBatch(w http.ResponseWriter, r *http.Request) {
	userID, orgID, ok := parseSubject(w, r)
	if !ok {
		return
	}

	var req batchCheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	results, err := s.checks.CheckBatch(r.Context(), userID, orgID, req.Items)
	if err != nil {
		s.writeCheckError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, batchCheckResponse{Results: results})
}

// parseSubject extracts the user and organization from the path
func parseSubject(w http.ResponseWriter, r *http.Request) (userID, orgID int64, ok bool) {
	orgID, ok = httputil.ParsePathInt64OrError(w, r, "orgId")
	if !ok {
		return 0, 0, false
	}
	userID, ok = httputil.ParsePathInt64OrError(w, r, "userId")
	if !ok {
		return 0, 0, false
	}
	return userID, orgID, true
}

// writeCheckError maps check failures onto HTTP statuses. Infrastructure
// failures surface as 503 so callers retry; they are never a grant.
func (s *Server) writeCheckError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *check.ValidationError
	if errors.As(err, &verr) {
		httputil.WriteBadRequest(w, verr.Error())
		return
	}

	var berr *check.BatchTooLargeError
	if errors.As(err, &berr) {
		httputil.WritePayloadTooLarge(w, berr.Error())
		return
	}

	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, cache.ErrUnavailable) {
		observability.FromContext(r.Context()).WithError(err).Error("check failed on infrastructure")
		httputil.WriteServiceUnavailable(w, "permission check temporarily unavailable")
		return
	}

	observability.FromContext(r.Context()).WithError(err).Error("check failed")
	httputil.WriteInternalError(w, errors.New("internal server error"))
}
