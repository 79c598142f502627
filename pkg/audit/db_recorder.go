package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// DBRecorder persists security audit records to PostgreSQL
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder creates a database-backed recorder and ensures its table
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	r := &DBRecorder{db: db}
	if err := r.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure security_audit table: %w", err)
	}
	return r, nil
}

// ensureTable creates the security_audit table if it doesn't exist
func (r *DBRecorder) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS security_audit (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		organization_id BIGINT,
		role_id BIGINT,
		correlation_id VARCHAR(100),
		permission_keys TEXT[],
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_security_audit_timestamp ON security_audit(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_security_audit_event_type ON security_audit(event_type);
	CREATE INDEX IF NOT EXISTS idx_security_audit_organization_id ON security_audit(organization_id);
	`

	_, err := r.db.Exec(query)
	return err
}

// Record implements Recorder
func (r *DBRecorder) Record(ctx context.Context, event *SecurityEvent) error {
	var metadataJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO security_audit (
			timestamp, event_type, organization_id, role_id,
			correlation_id, permission_keys, message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		event.Timestamp,
		string(event.EventType),
		event.OrganizationID,
		event.RoleID,
		event.CorrelationID,
		pq.Array(event.PermissionKeys),
		event.Message,
		metadataJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}
