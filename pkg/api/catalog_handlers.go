package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/store"
)

type catalogResponse struct {
	Permissions []rbac.CatalogEntry `json:"permissions"`
}

type rolesResponse struct {
	Roles []rbac.Role `json:"roles"`
}

// listCatalog handles GET /api/v1/permissions
func (s *Server) listCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListCatalog(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if entries == nil {
		entries = []rbac.CatalogEntry{}
	}
	httputil.WriteSuccess(w, catalogResponse{Permissions: entries})
}

// listOrganizationRoles handles GET /api/v1/organizations/{orgId}/roles
func (s *Server) listOrganizationRoles(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "orgId")
	if !ok {
		return
	}

	roles, err := s.store.OrganizationRoles(r.Context(), orgID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httputil.WriteSuccess(w, rolesResponse{Roles: roles})
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		observability.FromContext(r.Context()).WithError(err).Error("store unavailable")
		httputil.WriteServiceUnavailable(w, "store temporarily unavailable")
		return
	}
	observability.FromContext(r.Context()).WithError(err).Error("store query failed")
	httputil.WriteInternalError(w, errors.New("internal server error"))
}
