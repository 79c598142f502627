// Package expiry sweeps lapsed role assignments. The resolver already
// ignores them via the shared activity predicate; the sweep exists so their
// cached grants are evicted promptly instead of waiting out the TTL. Each
// lapsed assignment becomes a synthetic UserRoleRemoved event with reason
// EXPIRED, feeding the normal invalidation path.
package expiry
