// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks, and graceful shutdown for Warden.
//
// Logging is stdlib slog behind a small wrapper so call sites get a stable
// WithField/WithError API and context-carried request and correlation IDs.
// Metrics are Prometheus with a warden_ prefix; traces go out over OTLP gRPC
// when enabled. Readiness distinguishes the store (required) from the cache
// (optional): Postgres being down makes the service unhealthy, Redis being
// down only degrades it.
package observability
