package users

import (
	"io"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// DefaultSearchLimit caps SearchUsers when the caller gives no limit
const DefaultSearchLimit = 10

// UserUpdate holds optional changes; nil fields are left as is. Only
// superusers may change IsActive.
type UserUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	IsActive  *bool
}

// Options carries optional collaborators. The zero value is valid.
type Options struct {
	Audit  audit.Logger
	Logger *observability.Logger
	Now    func() time.Time
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
