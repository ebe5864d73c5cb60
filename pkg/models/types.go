package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is an organization-level role. Owners outrank editors, editors outrank viewers.
type Role string

const (
	RoleOwner  Role = "owner"  // Manages members and the organization itself
	RoleEditor Role = "editor" // Can write organization resources
	RoleViewer Role = "viewer" // Read-only access
)

// Rank orders roles; higher means more privileged. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r is at least as privileged as other
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// MembershipStatus tracks the invitation lifecycle. It only moves INVITED -> ACTIVE.
type MembershipStatus string

const (
	StatusInvited MembershipStatus = "invited"
	StatusActive  MembershipStatus = "active"
)

// Valid reports whether s is a known status
func (s MembershipStatus) Valid() bool {
	return s == StatusInvited || s == StatusActive
}

// ProviderType names an identity provider family
type ProviderType string

const (
	ProviderSupabase ProviderType = "supabase"
	ProviderOIDC     ProviderType = "oidc"
	ProviderAuth0    ProviderType = "auth0"
	ProviderClerk    ProviderType = "clerk"
	ProviderCustom   ProviderType = "custom"
)

// SessionState is derived from IsActive, EndReason and expiry
type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionExpired SessionState = "expired"
	SessionRevoked SessionState = "revoked"
	SessionInvalid SessionState = "invalid"
)

// User is the local account. It is created on first provider sync or at signup
// and is never hard-deleted.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	AuditFields
	SoftDelete
}

// DisplayName returns "First Last", falling back to the email address
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Email
	}
}

// CanAuthenticate reports whether the account may start new sessions
func (u *User) CanAuthenticate() bool {
	return u.IsActive && !u.IsDeleted()
}

// IdentityLink maps a provider identity onto a local user
type IdentityLink struct {
	ID             uuid.UUID              `json:"id"`
	UserID         uuid.UUID              `json:"user_id"`
	ProviderType   ProviderType           `json:"provider_type"`
	ProviderUserID string                 `json:"provider_user_id"`
	ProviderEmail  string                 `json:"provider_email,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	AuditFields
}

// Session reasons recorded when a session leaves the active state
const (
	EndReasonExpired = "expired"
	EndReasonRevoked = "revoked"
	EndReasonInvalid = "invalid"
)

// Session is the local record of an authenticated login
type Session struct {
	ID             uuid.UUID              `json:"id"`
	UserID         uuid.UUID              `json:"user_id"`
	IdentityLinkID uuid.UUID              `json:"identity_link_id"`
	AccessToken    string                 `json:"-"`
	RefreshToken   string                 `json:"-"`
	TokenType      string                 `json:"token_type"`
	ExpiresAt      time.Time              `json:"expires_at"`
	OrganizationID *uuid.UUID             `json:"organization_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	IsActive       bool                   `json:"is_active"`
	EndReason      string                 `json:"end_reason,omitempty"`
	AuditFields
}

// State derives the lifecycle state at time now
func (s *Session) State(now time.Time) SessionState {
	if !s.IsActive {
		switch s.EndReason {
		case EndReasonRevoked:
			return SessionRevoked
		case EndReasonInvalid:
			return SessionInvalid
		default:
			return SessionExpired
		}
	}
	if !now.Before(s.ExpiresAt) {
		return SessionExpired
	}
	return SessionActive
}

// Usable reports whether the session can authorize a request at time now
func (s *Session) Usable(now time.Time) bool {
	return s.State(now) == SessionActive
}

// End deactivates the session with the given reason
func (s *Session) End(reason string, now time.Time) {
	s.IsActive = false
	s.EndReason = reason
	s.UpdatedAt = now
}

// Organization is a tenant
type Organization struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	AuditFields
	SoftDelete
}

// Membership links a user to an organization with a role
type Membership struct {
	ID             uuid.UUID        `json:"id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Role           Role             `json:"role"`
	Status         MembershipStatus `json:"status"`
	InvitedBy      *uuid.UUID       `json:"invited_by,omitempty"`
	InvitedAt      *time.Time       `json:"invited_at,omitempty"`
	AcceptedAt     *time.Time       `json:"accepted_at,omitempty"`
	AuditFields
	SoftDelete
}

func (m *Membership) IsOwner() bool   { return m.Role == RoleOwner }
func (m *Membership) IsEditor() bool  { return m.Role == RoleEditor }
func (m *Membership) IsViewer() bool  { return m.Role == RoleViewer }
func (m *Membership) IsInvited() bool { return m.Status == StatusInvited }
func (m *Membership) IsActive() bool  { return m.Status == StatusActive }

// CanWrite reports whether the role allows writing organization resources
func (m *Membership) CanWrite() bool {
	return m.Role == RoleOwner || m.Role == RoleEditor
}

// CanManageUsers reports whether the role allows inviting, updating and removing members
func (m *Membership) CanManageUsers() bool {
	return m.Role == RoleOwner
}

// IsActiveOwner reports whether the membership counts toward the owner invariant
func (m *Membership) IsActiveOwner() bool {
	return m.IsActive() && m.IsOwner() && !m.IsDeleted()
}
