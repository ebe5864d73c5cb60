package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin                EventType = "auth.login"
	EventTypeAuthLogout               EventType = "auth.logout"
	EventTypeAuthLoginFailed          EventType = "auth.login_failed"
	EventTypeAuthTokenRefresh         EventType = "auth.token_refresh"
	EventTypeAuthSessionInvalidated   EventType = "auth.session_invalidated"
	EventTypeAuthSessionsRevoked      EventType = "auth.sessions_revoked"
	EventTypeAuthSignup               EventType = "auth.signup"
	EventTypeAuthPasswordResetRequest EventType = "auth.password_reset_request"
	EventTypeAuthPasswordReset        EventType = "auth.password_reset"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"

	// Membership events
	EventTypeMembershipInvite     EventType = "membership.invite"
	EventTypeMembershipAccept     EventType = "membership.accept"
	EventTypeMembershipRoleChange EventType = "membership.role_change"
	EventTypeMembershipRemove     EventType = "membership.remove"

	// User events
	EventTypeUserUpdate EventType = "user.update"
	EventTypeUserDelete EventType = "user.delete"

	// Organization events
	EventTypeOrgCreate EventType = "org.create"
	EventTypeOrgUpdate EventType = "org.update"
	EventTypeOrgDelete EventType = "org.delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeUser         ResourceType = "user"
	ResourceTypeSession      ResourceType = "session"
	ResourceTypeOrganization ResourceType = "organization"
	ResourceTypeMembership   ResourceType = "membership"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	Email          string     `json:"email,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	SessionID      *uuid.UUID `json:"session_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Before/after values for updates
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithError records err on the event and returns it
func (e *AuditEvent) WithError(err error) *AuditEvent {
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}

// WithMetadata sets one metadata key and returns the event
func (e *AuditEvent) WithMetadata(key string, value interface{}) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
