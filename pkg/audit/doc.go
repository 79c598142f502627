// Package audit records security-relevant invalidation activity: every
// organization-wide sweep caused by a high-privilege permission change, and
// transitions in and out of degraded invalidation. Records go to the
// structured log and, when configured, to a security_audit table.
package audit
