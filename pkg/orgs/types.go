package orgs

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Membership operation names used in metrics and logs
const (
	OpInvite     = "invite"
	OpAccept     = "accept"
	OpUpdateRole = "update_role"
	OpRemove     = "remove"
	OpCreateOrg  = "create_organization"
	OpUpdateOrg  = "update_organization"
	OpDeleteOrg  = "delete_organization"
)

// MembershipCreate is an invitation request. Role defaults to viewer.
type MembershipCreate struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           models.Role
}

// PermissionCheck names the permission a caller needs beyond active membership
type PermissionCheck struct {
	RequireWrite bool
	RequireOwner bool
}

// OrganizationCreate describes a new organization. An empty Slug is derived from Name.
type OrganizationCreate struct {
	Name        string
	Slug        string
	Description string
}

// OrganizationUpdate holds optional changes; nil fields are left as is
type OrganizationUpdate struct {
	Name        *string
	Slug        *string
	Description *string
}

// Options carries optional collaborators. The zero value is valid.
type Options struct {
	Audit   audit.Logger
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Audit == nil {
		o.Audit = audit.NopLogger{}
	}
	if o.Logger == nil {
		o.Logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}
