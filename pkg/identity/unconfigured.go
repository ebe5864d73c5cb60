package identity

import (
	"context"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/models"
)

// Unconfigured stands in for a provider that was never registered.
// Every operation fails with KindUnsupportedProvider.
type Unconfigured struct {
	Name string
}

func (u *Unconfigured) fail() error {
	return apperr.UnsupportedProvider(u.Name).WithDetail("reason", "provider not configured")
}

func (u *Unconfigured) Type() models.ProviderType {
	return models.ProviderCustom
}

func (u *Unconfigured) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	return nil, u.fail()
}

func (u *Unconfigured) ValidateToken(ctx context.Context, token string) (Claims, error) {
	return nil, u.fail()
}

func (u *Unconfigured) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return nil, u.fail()
}

func (u *Unconfigured) CreateUser(ctx context.Context, email, password string, attrs map[string]interface{}) (*ProviderUser, error) {
	return nil, u.fail()
}

func (u *Unconfigured) GetUserByID(ctx context.Context, id string) (*ProviderUser, error) {
	return nil, u.fail()
}

func (u *Unconfigured) GetUserByEmail(ctx context.Context, email string) (*ProviderUser, error) {
	return nil, u.fail()
}

func (u *Unconfigured) UpdateUser(ctx context.Context, id string, attrs map[string]interface{}) (*ProviderUser, error) {
	return nil, u.fail()
}

func (u *Unconfigured) DeleteUser(ctx context.Context, id string) error {
	return u.fail()
}

func (u *Unconfigured) Logout(ctx context.Context, providerUserID, sessionRef string) (bool, error) {
	return false, u.fail()
}

func (u *Unconfigured) SendPasswordReset(ctx context.Context, email string) (bool, error) {
	return false, u.fail()
}

func (u *Unconfigured) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	return false, u.fail()
}
