// Package events defines the role-change domain events and the Redis
// pub/sub consumer that feeds them to the invalidation engine.
//
// Four kinds exist: USER_ROLE_ASSIGNED, USER_ROLE_REMOVED, ROLE_MODIFIED and
// ROLE_DELETED. Envelopes are validated at the boundary; malformed events
// are dropped with a metric rather than retried, since decoding is
// deterministic. Handler failures get a short exponential-backoff retry
// before the event is abandoned and the engine falls back to degraded TTLs.
package events
