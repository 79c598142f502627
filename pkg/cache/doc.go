// Package cache provides the permission cache layer: serialized permission
// sets stored under well-known keys with a TTL safety net.
//
// Three key families exist: userPermissions:{userId}:{orgId} for resolved
// per-user sets, rolePermissions:{roleId} for role bundles, and
// organizationRoles:{orgId} for an organization's role list. Eviction is
// driven by the invalidation engine; the TTL (15 minutes, tightened to 1
// minute in degraded mode) only bounds staleness when events are missed.
//
// RedisCache is the production implementation; MemoryCache serves tests and
// single-node deployments. Both treat an empty permission set as a cacheable
// value and report backend failures as ErrUnavailable so the check path can
// fall through to the resolver instead of failing the request.
package cache
