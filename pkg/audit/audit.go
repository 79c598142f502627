package audit

import (
	"context"
	"time"
)

// EventType classifies security audit records
type EventType string

const (
	// EventHighPrivilegeSweep records an organization-wide cache sweep
	// triggered by a high-privilege permission change
	EventHighPrivilegeSweep EventType = "high_privilege_sweep"

	// EventDegradedInvalidation records the invalidation pipeline entering
	// or leaving degraded mode
	EventDegradedInvalidation EventType = "degraded_invalidation"
)

// SecurityEvent is a single audit record. CorrelationID ties it back to the
// domain event that caused it.
type SecurityEvent struct {
	ID             int64                  `json:"id,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	EventType      EventType              `json:"event_type"`
	OrganizationID int64                  `json:"organization_id,omitempty"`
	RoleID         int64                  `json:"role_id,omitempty"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	PermissionKeys []string               `json:"permission_keys,omitempty"`
	Message        string                 `json:"message"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Recorder persists security audit records. Recording must never block the
// invalidation path: implementations return errors for the caller to log,
// not to act on.
type Recorder interface {
	Record(ctx context.Context, event *SecurityEvent) error
}
