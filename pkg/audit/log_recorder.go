package audit

import (
	"context"

	"github.com/platinummonkey/warden/pkg/observability"
)

// LogRecorder writes audit records to the structured log. Used standalone in
// deployments without an audit database, or alongside DBRecorder via Multi.
type LogRecorder struct {
	logger *observability.Logger
}

// NewLogRecorder creates a log-backed recorder
func NewLogRecorder(logger *observability.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.WithField("component", "security_audit")}
}

// Record implements Recorder
func (r *LogRecorder) Record(ctx context.Context, event *SecurityEvent) error {
	r.logger.WithFields(map[string]interface{}{
		"event_type":      string(event.EventType),
		"organization_id": event.OrganizationID,
		"role_id":         event.RoleID,
		"correlation_id":  event.CorrelationID,
		"permission_keys": event.PermissionKeys,
	}).Warn(event.Message)
	return nil
}

// Multi fans a record out to several recorders; the first error wins but
// every recorder still runs
type Multi []Recorder

// Record implements Recorder
func (m Multi) Record(ctx context.Context, event *SecurityEvent) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
