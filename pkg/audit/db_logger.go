package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	status VARCHAR(20) NOT NULL,
	user_id UUID,
	email VARCHAR(320),
	organization_id UUID,
	session_id UUID,
	resource_type VARCHAR(50),
	resource_id VARCHAR(255),
	request_id VARCHAR(100),
	message TEXT,
	error_message TEXT,
	metadata JSONB,
	changes JSONB,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_organization_id ON audit_logs(organization_id);
`

const insertAuditEvent = `
	INSERT INTO audit_logs (timestamp, event_type, status, user_id, email, organization_id, session_id,
	                        resource_type, resource_id, request_id, message, error_message, metadata, changes)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING id
`

// DBLogger writes audit events to the audit_logs table next to the
// authorization store
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates the audit_logs table when missing and returns a logger over db
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return &DBLogger{db: db}, nil
}

// Log inserts event and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	metadata, err := jsonColumn(event.Metadata, len(event.Metadata) > 0)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	changes, err := jsonColumn(event.Changes, event.Changes != nil)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	row := l.db.QueryRowContext(ctx, insertAuditEvent,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.Email, event.OrganizationID, event.SessionID,
		event.ResourceType, event.ResourceID, event.RequestID,
		event.Message, event.ErrorMessage, metadata, changes,
	)
	if err := row.Scan(&event.ID); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// jsonColumn encodes v for a JSONB column, or NULL when present is false
func jsonColumn(v interface{}, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

// Cleanup deletes events older than retention and reports how many went
func (l *DBLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := l.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < $1`, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	return result.RowsAffected()
}

// Close leaves the database open; the store owns it
func (l *DBLogger) Close() error {
	return nil
}
