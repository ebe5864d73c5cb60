package store

import (
	"errors"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
)

// Resource names used in not-found and conflict errors
const (
	ResourceUser         = "User"
	ResourceIdentityLink = "IdentityLink"
	ResourceSession      = "Session"
	ResourceOrganization = "Organization"
	ResourceMembership   = "Membership"
)

// NotFound builds the error stores return for a missing row
func NotFound(resource, identifier string) error {
	return apperr.NotFound(resource, identifier)
}

// IsNotFound reports whether err is a missing-row error
func IsNotFound(err error) bool {
	return apperr.IsKind(err, apperr.KindNotFound)
}

// IsAlreadyExists reports whether err is a uniqueness violation
func IsAlreadyExists(err error) bool {
	return apperr.IsKind(err, apperr.KindAlreadyExists)
}

// IsDuplicate reports whether err is a uniqueness violation on field
func IsDuplicate(err error, field string) bool {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind != apperr.KindAlreadyExists {
		return false
	}
	return e.Details["field"] == field
}

// IsConflict reports whether err is a serialization failure worth retrying
func IsConflict(err error) bool {
	return apperr.IsKind(err, apperr.KindConflict)
}
