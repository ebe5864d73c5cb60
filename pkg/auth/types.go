package auth

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/cache"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

const (
	// DefaultSessionTTL applies when the provider reports no token expiry
	DefaultSessionTTL = time.Hour
	// DefaultProviderTimeout bounds each identity provider call
	DefaultProviderTimeout = 10 * time.Second
)

// SignupRequest registers a user with the provider and creates their first organization
type SignupRequest struct {
	Email            string
	Password         string
	FirstName        string
	LastName         string
	OrganizationName string
}

// SignupResult is what CreateUserWithOrganization created
type SignupResult struct {
	ProviderUser *identity.ProviderUser
	User         *models.User
	Organization *models.Organization
	Membership   *models.Membership
}

// UserID returns the local user id
func (r *SignupResult) UserID() uuid.UUID { return r.User.ID }

// OrganizationID returns the new organization's id
func (r *SignupResult) OrganizationID() uuid.UUID { return r.Organization.ID }

// Options carries tunables and optional collaborators. The zero value is valid.
type Options struct {
	Cache   cache.SessionCache
	Audit   audit.Logger
	Logger  *observability.Logger
	Metrics *observability.Metrics

	DefaultSessionTTL time.Duration
	ProviderTimeout   time.Duration
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Audit == nil {
		o.Audit = audit.NopLogger{}
	}
	if o.Logger == nil {
		o.Logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	if o.DefaultSessionTTL <= 0 {
		o.DefaultSessionTTL = DefaultSessionTTL
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = DefaultProviderTimeout
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}
