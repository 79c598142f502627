// Package httputil holds the shared HTTP plumbing: JSON response helpers,
// request parsing, and the middleware chain (request IDs, logging, panic
// recovery, body limits) used by the API server.
package httputil
