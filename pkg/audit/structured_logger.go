package audit

import (
	"context"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// StructuredLogger writes audit events as structured log lines
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates an audit logger on top of logger
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	if logger == nil {
		logger = observability.Discard()
	}
	return &StructuredLogger{logger: logger.WithField("component", "audit")}
}

// Log writes the event. Failures and denials are logged at warn level.
func (l *StructuredLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != nil {
		fields["user_id"] = event.UserID.String()
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.OrganizationID != nil {
		fields["organization_id"] = event.OrganizationID.String()
	}
	if event.SessionID != nil {
		fields["session_id"] = event.SessionID.String()
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	logger := l.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		logger.Info(event.Message)
	} else {
		logger.Warn(event.Message)
	}
	return nil
}

// Close is a no-op
func (l *StructuredLogger) Close() error {
	return nil
}
