package identity

import (
	"context"

	"github.com/platinummonkey/gatekeeper/pkg/models"
)

// Provider is the contract every external identity provider adapter satisfies.
//
// Adapters translate provider failures into apperr kinds (CredentialsInvalid,
// TokenExpired, TokenInvalid, UserNotFound, ...) and never touch local state.
type Provider interface {
	// Type returns the provider family
	Type() models.ProviderType

	// Authenticate exchanges email and password for tokens
	Authenticate(ctx context.Context, email, password string) (*AuthResult, error)

	// ValidateToken verifies an access token and returns its claims
	ValidateToken(ctx context.Context, token string) (Claims, error)

	// RefreshToken exchanges a refresh token for a new token pair
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)

	// CreateUser registers a new identity with the provider
	CreateUser(ctx context.Context, email, password string, attrs map[string]interface{}) (*ProviderUser, error)

	// GetUserByID looks up a provider identity; nil, nil when absent
	GetUserByID(ctx context.Context, id string) (*ProviderUser, error)

	// GetUserByEmail looks up a provider identity; nil, nil when absent
	GetUserByEmail(ctx context.Context, email string) (*ProviderUser, error)

	// UpdateUser changes provider-side attributes
	UpdateUser(ctx context.Context, id string, attrs map[string]interface{}) (*ProviderUser, error)

	// DeleteUser removes a provider identity
	DeleteUser(ctx context.Context, id string) error

	// Logout ends the provider-side session
	Logout(ctx context.Context, providerUserID, sessionRef string) (bool, error)

	// SendPasswordReset asks the provider to email a reset link
	SendPasswordReset(ctx context.Context, email string) (bool, error)

	// ResetPassword completes a reset using the token from the reset link
	ResetPassword(ctx context.Context, token, newPassword string) (bool, error)
}

// Factory builds a provider from configuration
type Factory func(ctx context.Context, cfg ProviderConfig) (Provider, error)
