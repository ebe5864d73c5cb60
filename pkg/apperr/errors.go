package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of domain failure
type Kind string

const (
	// Authentication family
	KindCredentialsInvalid       Kind = "credentials_invalid"
	KindTokenExpired             Kind = "token_expired"
	KindTokenInvalid             Kind = "token_invalid"
	KindSessionNotFound          Kind = "session_not_found"
	KindUnsupportedProvider      Kind = "unsupported_provider"
	KindOrganizationAccessDenied Kind = "organization_access_denied"
	KindUserNotFound             Kind = "user_not_found"

	// Membership family
	KindMembershipNotFound        Kind = "membership_not_found"
	KindInvitationNotFound        Kind = "invitation_not_found"
	KindUserAlreadyMember         Kind = "user_already_member"
	KindUserAlreadyInvited        Kind = "user_already_invited"
	KindInvitationAlreadyAccepted Kind = "invitation_already_accepted"
	KindInsufficientPermissions   Kind = "insufficient_permissions"
	KindNotOrganizationMember     Kind = "not_organization_member"
	KindLastOwnerRemoval          Kind = "last_owner_removal"

	// General family
	KindNotFound              Kind = "not_found"
	KindAlreadyExists         Kind = "already_exists"
	KindValidation            Kind = "validation_error"
	KindPermissionDenied      Kind = "permission_denied"
	KindConflict              Kind = "conflict"
	KindBusinessRuleViolation Kind = "business_rule_violation"
	KindProviderUnavailable   Kind = "provider_unavailable"
)

// FamilyName groups kinds for callers that only care about the broad category
type FamilyName string

const (
	FamilyAuthentication FamilyName = "authentication"
	FamilyMembership     FamilyName = "membership"
	FamilyGeneral        FamilyName = "general"
)

// RuleMinimumOneOwner is the business rule behind KindLastOwnerRemoval
const RuleMinimumOneOwner = "minimum_one_owner"

// Error is the error type returned by every core operation
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so sentinel comparisons like
// errors.Is(err, apperr.New(apperr.KindSessionNotFound, "")) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithDetail returns the error with an extra detail attached
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that keeps err in the chain
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Family returns the family a kind belongs to
func Family(kind Kind) FamilyName {
	switch kind {
	case KindCredentialsInvalid, KindTokenExpired, KindTokenInvalid, KindSessionNotFound,
		KindUnsupportedProvider, KindOrganizationAccessDenied, KindUserNotFound:
		return FamilyAuthentication
	case KindMembershipNotFound, KindInvitationNotFound, KindUserAlreadyMember, KindUserAlreadyInvited,
		KindInvitationAlreadyAccepted, KindInsufficientPermissions, KindNotOrganizationMember, KindLastOwnerRemoval:
		return FamilyMembership
	default:
		return FamilyGeneral
	}
}

// HTTPStatus maps a kind to the status code a transport layer should use
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindCredentialsInvalid, KindTokenExpired, KindTokenInvalid, KindSessionNotFound:
		return http.StatusUnauthorized
	case KindOrganizationAccessDenied, KindInsufficientPermissions, KindNotOrganizationMember, KindPermissionDenied:
		return http.StatusForbidden
	case KindUserNotFound, KindMembershipNotFound, KindInvitationNotFound, KindNotFound:
		return http.StatusNotFound
	case KindUserAlreadyMember, KindUserAlreadyInvited, KindInvitationAlreadyAccepted, KindAlreadyExists, KindConflict:
		return http.StatusConflict
	case KindValidation, KindUnsupportedProvider:
		return http.StatusBadRequest
	case KindLastOwnerRemoval, KindBusinessRuleViolation:
		return http.StatusUnprocessableEntity
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
