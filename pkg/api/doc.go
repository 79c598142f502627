// Package api is the HTTP surface of the permission engine: single and batch
// permission checks plus read-only catalog and role listings. Handlers stay
// thin; the check service owns the semantics and this layer only maps its
// errors onto statuses.
package api
