package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/warden/pkg/check"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/store"
)

// maxBodyBytes bounds check request bodies; even a full batch is tiny
const maxBodyBytes = 1 << 20

// Server exposes the permission engine over HTTP
type Server struct {
	router  *mux.Router
	handler http.Handler
	checks  *check.Service
	store   store.Store
	logger  *observability.Logger
}

// NewServer creates the API server with its middleware chain
func NewServer(checks *check.Service, st store.Store, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router: mux.NewRouter(),
		checks: checks,
		store:  st,
		logger: logger.WithField("component", "api"),
	}

	s.setupRoutes()

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	}
	if metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(metrics))
	}

	s.handler = otelhttp.NewHandler(
		httputil.Chain(middlewares...)(s.router),
		"warden.api",
	)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/organizations/{orgId}/users/{userId}/permissions/check", s.checkSingle).Methods("POST")
	s.router.HandleFunc("/api/v1/organizations/{orgId}/users/{userId}/permissions/check-batch", s.checkBatch).Methods("POST")
	s.router.HandleFunc("/api/v1/organizations/{orgId}/roles", s.listOrganizationRoles).Methods("GET")
	s.router.HandleFunc("/api/v1/permissions", s.listCatalog).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
