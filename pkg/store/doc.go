// Package store is the read-side adapter over the platform's RBAC schema:
// role assignments, role permission bundles, organization membership, and the
// permission catalog. Warden never mutates this data except to stamp expired
// assignments as removed, which keeps the expiry sweep idempotent.
package store
