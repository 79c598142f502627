// Package invalidation turns role-change events into cache evictions of the
// right breadth.
//
// Three tiers exist. Assignment changes touch one user and clear one key
// (targeted). Role edits clear the role bundle plus every active holder's
// entry (selective). A change involving a high-privilege permission sweeps
// every user entry in the organization and leaves a security-audit record
// (broad), because a stale grant of ADMIN or DELETE is an incident, not a
// performance problem.
//
// When evictions fail the engine flips the cache into degraded mode, which
// tightens the TTL safety net until an event processes cleanly again.
package invalidation
