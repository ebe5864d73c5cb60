package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/models"
)

// DefaultListLimit caps list queries when the caller gives no limit
const DefaultListLimit = 100

// MembershipFilter narrows membership listings. Zero values mean "any".
type MembershipFilter struct {
	Status *models.MembershipStatus
	Role   *models.Role
	Offset int
	Limit  int
}

// EffectiveLimit returns Limit, or DefaultListLimit when unset
func (f MembershipFilter) EffectiveLimit() int {
	return effectiveLimit(f.Limit)
}

// Validate rejects negative paging values
func (f MembershipFilter) Validate() error {
	return validatePage(f.Offset, f.Limit)
}

// UserFilter narrows user listings. Soft-deleted users are never listed.
type UserFilter struct {
	// Search matches a substring of the email or name, ignoring case
	Search     string
	ActiveOnly bool
	Offset     int
	Limit      int
}

// EffectiveLimit returns Limit, or DefaultListLimit when unset
func (f UserFilter) EffectiveLimit() int {
	return effectiveLimit(f.Limit)
}

// Validate rejects negative paging values
func (f UserFilter) Validate() error {
	return validatePage(f.Offset, f.Limit)
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func validatePage(offset, limit int) error {
	if offset < 0 {
		return apperr.Validation("offset", "offset must not be negative")
	}
	if limit < 0 {
		return apperr.Validation("limit", "limit must not be negative")
	}
	return nil
}

// UserStore persists local users
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	// ListUsers returns non-deleted users ordered by creation time
	ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error)
	// CountUsers counts non-deleted users, optionally only active ones
	CountUsers(ctx context.Context, activeOnly bool) (int, error)
}

// IdentityLinkStore persists provider identity mappings
type IdentityLinkStore interface {
	CreateIdentityLink(ctx context.Context, link *models.IdentityLink) error
	GetIdentityLink(ctx context.Context, providerType models.ProviderType, providerUserID string) (*models.IdentityLink, error)
	GetIdentityLinkByID(ctx context.Context, id uuid.UUID) (*models.IdentityLink, error)
	UpdateIdentityLink(ctx context.Context, link *models.IdentityLink) error
}

// SessionStore persists sessions
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetSessionByAccessToken(ctx context.Context, accessToken string) (*models.Session, error)
	GetActiveSessionByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	// DeactivateUserSessions ends every active session of a user and returns how many changed
	DeactivateUserSessions(ctx context.Context, userID uuid.UUID, reason string, now time.Time) (int64, error)
	// DeactivateOrganizationSessions ends active sessions whose organization
	// context is orgID, only those of userID when it is set
	DeactivateOrganizationSessions(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, reason string, now time.Time) (int64, error)
	// ExpireSessions marks active sessions past their expiry as expired
	ExpireSessions(ctx context.Context, now time.Time) (int64, error)
	// PurgeSessions deletes inactive sessions last updated before cutoff
	PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// OrganizationStore persists organizations
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	// ListUserOrganizations returns non-deleted organizations where the user has an active membership
	ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error)
}

// MembershipStore persists memberships. Lookups ignore soft-deleted rows
// unless they fetch by primary key.
type MembershipStore interface {
	CreateMembership(ctx context.Context, m *models.Membership) error
	GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	GetMembershipByOrgAndUser(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error)
	UpdateMembership(ctx context.Context, m *models.Membership) error
	ListMemberships(ctx context.Context, orgID uuid.UUID, filter MembershipFilter) ([]*models.Membership, error)
	CountMemberships(ctx context.Context, orgID uuid.UUID, activeOnly bool) (int, error)
	ListUserMemberships(ctx context.Context, userID uuid.UUID, filter MembershipFilter) ([]*models.Membership, error)
	CountActiveOwners(ctx context.Context, orgID uuid.UUID) (int, error)
}

// Locker takes row locks that last until the enclosing transaction ends.
// Outside a transaction they behave like plain reads.
type Locker interface {
	// LockMembership locks and returns the non-deleted membership of userID in orgID
	LockMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error)
	// LockActiveOwners locks every active owner membership of orgID
	LockActiveOwners(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error)
	// LockSession locks a session row
	LockSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Tx is everything available inside a transaction
type Tx interface {
	UserStore
	IdentityLinkStore
	SessionStore
	OrganizationStore
	MembershipStore
	Locker
}

// Store is the authorization store. Direct method calls run outside any
// transaction; InTx runs fn atomically and rolls back if fn returns an error
// or ctx is cancelled before commit.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
