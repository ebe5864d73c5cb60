package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("while validating: %w", SessionNotFound())

	assert.True(t, errors.Is(err, SessionNotFound()))
	assert.False(t, errors.Is(err, TokenInvalid()))
	assert.True(t, IsKind(err, KindSessionNotFound))
	assert.Equal(t, KindSessionNotFound, KindOf(err))
}

func TestError_Unwrap(t *testing.T) {
	wrapped := Wrap(KindNotFound, sql.ErrNoRows, "user not found")

	assert.True(t, errors.Is(wrapped, sql.ErrNoRows))
	assert.Contains(t, wrapped.Error(), "user not found")
	assert.Contains(t, wrapped.Error(), sql.ErrNoRows.Error())
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindNotFound))
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"credentials", CredentialsInvalid(), "Invalid credentials provided"},
		{"expired", TokenExpired(), "Authentication token has expired"},
		{"invalid token", TokenInvalid(), "Invalid authentication token"},
		{"user", UserNotFound("a@b.c"), "User not found: a@b.c"},
		{"provider", UnsupportedProvider("acme"), "Unsupported authentication provider: acme"},
		{"org access", OrganizationAccessDenied("o1"), "Access denied to organization: o1"},
		{"not found", NotFound("Organization", ""), "Organization not found"},
		{"not found id", NotFound("Organization", "x"), "Organization with identifier 'x' not found"},
		{"exists", AlreadyExists("Organization", "slug", "acme"), "Organization with slug 'acme' already exists"},
		{"permission", PermissionDenied("delete", "organization"), "Permission denied: cannot delete organization"},
		{"last owner", LastOwnerRemoval(), "Cannot remove the last owner from the organization"},
		{"not member", NotOrganizationMember(), "You are not a member of this organization"},
		{"provider down", ProviderUnavailable("supabase", errors.New("connection refused")), "Identity provider unavailable: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestLastOwnerRemoval_Rule(t *testing.T) {
	err := LastOwnerRemoval()
	require.NotNil(t, err.Details)
	assert.Equal(t, RuleMinimumOneOwner, err.Details["rule"])
}

func TestFamily(t *testing.T) {
	assert.Equal(t, FamilyAuthentication, Family(KindTokenExpired))
	assert.Equal(t, FamilyAuthentication, Family(KindOrganizationAccessDenied))
	assert.Equal(t, FamilyMembership, Family(KindLastOwnerRemoval))
	assert.Equal(t, FamilyMembership, Family(KindUserAlreadyInvited))
	assert.Equal(t, FamilyGeneral, Family(KindConflict))
	assert.Equal(t, FamilyGeneral, Family(KindProviderUnavailable))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(KindSessionNotFound))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(KindInsufficientPermissions))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(KindMembershipNotFound))
	assert.Equal(t, http.StatusConflict, HTTPStatus(KindUserAlreadyMember))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(KindLastOwnerRemoval))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(KindProviderUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Kind("mystery")))
}
