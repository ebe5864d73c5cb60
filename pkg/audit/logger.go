package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes and releases the logger
	Close() error
}

// NopLogger discards every event
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (NopLogger) Close() error                                      { return nil }

// newEvent creates an event with the common fields populated
func newEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: observability.GetRequestID(ctx),
	}
}

// NewAuthenticationEvent describes a login, logout or session lifecycle event
func NewAuthenticationEvent(ctx context.Context, eventType EventType, userID *uuid.UUID, email string, status EventStatus, message string) *AuditEvent {
	event := newEvent(ctx, eventType, status)
	event.UserID = userID
	event.Email = email
	event.ResourceType = ResourceTypeUser
	if userID != nil {
		event.ResourceID = userID.String()
	}
	event.Message = message
	return event
}

// NewSessionEvent describes an event on a specific session
func NewSessionEvent(ctx context.Context, eventType EventType, session *models.Session, status EventStatus, message string) *AuditEvent {
	event := newEvent(ctx, eventType, status)
	event.UserID = models.UUIDPtr(session.UserID)
	event.SessionID = models.UUIDPtr(session.ID)
	event.OrganizationID = session.OrganizationID
	event.ResourceType = ResourceTypeSession
	event.ResourceID = session.ID.String()
	event.Message = message
	return event
}

// NewAuthorizationEvent describes an access decision on an organization
func NewAuthorizationEvent(ctx context.Context, eventType EventType, userID, orgID uuid.UUID, status EventStatus, message string) *AuditEvent {
	event := newEvent(ctx, eventType, status)
	event.UserID = models.UUIDPtr(userID)
	event.OrganizationID = models.UUIDPtr(orgID)
	event.ResourceType = ResourceTypeOrganization
	event.ResourceID = orgID.String()
	event.Message = message
	return event
}

// NewMembershipEvent describes a change to a membership made by actorID
func NewMembershipEvent(ctx context.Context, eventType EventType, actorID uuid.UUID, m *models.Membership, changes *ChangeDetails, message string) *AuditEvent {
	event := newEvent(ctx, eventType, EventStatusSuccess)
	event.UserID = models.UUIDPtr(actorID)
	event.OrganizationID = models.UUIDPtr(m.OrganizationID)
	event.ResourceType = ResourceTypeMembership
	event.ResourceID = m.ID.String()
	event.Changes = changes
	event.Message = message
	return event.WithMetadata("member_user_id", m.UserID.String())
}

// NewUserEvent describes a change to a user account made by actorID
func NewUserEvent(ctx context.Context, eventType EventType, actorID uuid.UUID, user *models.User, changes *ChangeDetails, message string) *AuditEvent {
	event := newEvent(ctx, eventType, EventStatusSuccess)
	event.UserID = models.UUIDPtr(actorID)
	event.Email = user.Email
	event.ResourceType = ResourceTypeUser
	event.ResourceID = user.ID.String()
	event.Changes = changes
	event.Message = message
	return event
}

// NewOrganizationEvent describes a change to an organization made by actorID
func NewOrganizationEvent(ctx context.Context, eventType EventType, actorID uuid.UUID, org *models.Organization, changes *ChangeDetails, message string) *AuditEvent {
	event := newEvent(ctx, eventType, EventStatusSuccess)
	event.UserID = models.UUIDPtr(actorID)
	event.OrganizationID = models.UUIDPtr(org.ID)
	event.ResourceType = ResourceTypeOrganization
	event.ResourceID = org.ID.String()
	event.Changes = changes
	event.Message = message
	return event
}
