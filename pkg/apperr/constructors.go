package apperr

import "fmt"

func CredentialsInvalid() *Error {
	return New(KindCredentialsInvalid, "Invalid credentials provided")
}

func TokenExpired() *Error {
	return New(KindTokenExpired, "Authentication token has expired")
}

func TokenInvalid() *Error {
	return New(KindTokenInvalid, "Invalid authentication token")
}

func SessionNotFound() *Error {
	return New(KindSessionNotFound, "Authentication session not found or expired")
}

func UnsupportedProvider(name string) *Error {
	return Newf(KindUnsupportedProvider, "Unsupported authentication provider: %s", name).
		WithDetail("provider", name)
}

func OrganizationAccessDenied(orgID string) *Error {
	return Newf(KindOrganizationAccessDenied, "Access denied to organization: %s", orgID).
		WithDetail("organization_id", orgID)
}

func UserNotFound(identifier string) *Error {
	return Newf(KindUserNotFound, "User not found: %s", identifier).
		WithDetail("identifier", identifier)
}

func MembershipNotFound() *Error {
	return New(KindMembershipNotFound, "Membership not found")
}

func InvitationNotFound() *Error {
	return New(KindInvitationNotFound, "Invitation not found")
}

func UserAlreadyMember() *Error {
	return New(KindUserAlreadyMember, "User is already an active member of this organization")
}

func UserAlreadyInvited() *Error {
	return New(KindUserAlreadyInvited, "User has already been invited to this organization")
}

func InvitationAlreadyAccepted() *Error {
	return New(KindInvitationAlreadyAccepted, "Invitation has already been accepted")
}

// InsufficientPermissions reports that the actor's role does not allow action
func InsufficientPermissions(action string) *Error {
	return Newf(KindInsufficientPermissions, "Insufficient permissions to %s this organization", action).
		WithDetail("action", action)
}

func NotOrganizationMember() *Error {
	return New(KindNotOrganizationMember, "You are not a member of this organization")
}

func LastOwnerRemoval() *Error {
	return New(KindLastOwnerRemoval, "Cannot remove the last owner from the organization").
		WithDetail("rule", RuleMinimumOneOwner)
}

// NotFound reports a missing resource, optionally naming its identifier
func NotFound(resource, identifier string) *Error {
	msg := fmt.Sprintf("%s not found", resource)
	if identifier != "" {
		msg = fmt.Sprintf("%s with identifier '%s' not found", resource, identifier)
	}
	return New(KindNotFound, msg).WithDetail("resource", resource)
}

func AlreadyExists(resource, field, value string) *Error {
	return Newf(KindAlreadyExists, "%s with %s '%s' already exists", resource, field, value).
		WithDetail("resource", resource).
		WithDetail("field", field)
}

func Validation(field, message string) *Error {
	return New(KindValidation, message).WithDetail("field", field)
}

func PermissionDenied(action, resource string) *Error {
	return Newf(KindPermissionDenied, "Permission denied: cannot %s %s", action, resource)
}

func Conflict(resource, message string) *Error {
	return New(KindConflict, message).WithDetail("resource", resource)
}

func BusinessRuleViolation(rule, message string) *Error {
	return New(KindBusinessRuleViolation, message).WithDetail("rule", rule)
}

// ProviderUnavailable wraps a transport or server failure of the identity
// provider. It says nothing about the credentials or token involved.
func ProviderUnavailable(provider string, err error) *Error {
	return Wrap(KindProviderUnavailable, err, "Identity provider unavailable").
		WithDetail("provider", provider)
}
