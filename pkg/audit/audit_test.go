package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/platinummonkey/warden/pkg/observability"
)

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)
	r := NewLogRecorder(logger)

	err := r.Record(context.Background(), &SecurityEvent{
		Timestamp:      time.Now(),
		EventType:      EventHighPrivilegeSweep,
		OrganizationID: 7,
		RoleID:         10,
		CorrelationID:  "evt-1",
		PermissionKeys: []string{"ORGANIZATIONS:ADMIN"},
		Message:        "org-wide sweep after high-privilege role change",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	if entry["event_type"] != string(EventHighPrivilegeSweep) {
		t.Errorf("Expected event_type %q, got %v", EventHighPrivilegeSweep, entry["event_type"])
	}
	if entry["correlation_id"] != "evt-1" {
		t.Errorf("Expected correlation_id evt-1, got %v", entry["correlation_id"])
	}
}

func TestDBRecorder_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS security_audit").
		WillReturnResult(sqlmock.NewResult(0, 0))

	r, err := NewDBRecorder(db)
	if err != nil {
		t.Fatalf("NewDBRecorder failed: %v", err)
	}

	mock.ExpectQuery("INSERT INTO security_audit").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	event := &SecurityEvent{
		Timestamp:      time.Now(),
		EventType:      EventHighPrivilegeSweep,
		OrganizationID: 7,
		RoleID:         10,
		PermissionKeys: []string{"PAYMENTS:DELETE"},
		Message:        "sweep",
	}
	if err := r.Record(context.Background(), event); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if event.ID != 5 {
		t.Errorf("Expected record ID 5, got %d", event.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

type failingRecorder struct{}

func (failingRecorder) Record(ctx context.Context, event *SecurityEvent) error {
	return errors.New("sink down")
}

func TestMulti_AllRecordersRun(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	m := Multi{failingRecorder{}, NewLogRecorder(logger)}
	err := m.Record(context.Background(), &SecurityEvent{
		EventType: EventDegradedInvalidation,
		Message:   "entering degraded mode",
	})

	if err == nil {
		t.Error("Expected first recorder's error to propagate")
	}
	if buf.Len() == 0 {
		t.Error("Second recorder must still run after the first fails")
	}
}
