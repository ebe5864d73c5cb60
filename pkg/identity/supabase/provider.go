package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
)

// Settings keys read from identity.ProviderConfig
const (
	SettingAPIURL    = "api_url"
	SettingJWTSecret = "jwt_secret"
	SettingPublicKey = "public_key"
	SettingSecretKey = "secret_key"
)

// Config holds connection settings for a Supabase project
type Config struct {
	APIURL    string
	JWTSecret string
	PublicKey string
	SecretKey string
	Timeout   time.Duration
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.PublicKey == "" {
		return fmt.Errorf("public_key is required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key is required")
	}
	return nil
}

// Provider talks to the Supabase auth (GoTrue) REST API
type Provider struct {
	config Config
	client *resty.Client
	admin  *resty.Client
}

// Factory builds a Provider from registry configuration
func Factory(ctx context.Context, cfg identity.ProviderConfig) (identity.Provider, error) {
	return New(Config{
		APIURL:    cfg.Setting(SettingAPIURL, ""),
		JWTSecret: cfg.Setting(SettingJWTSecret, ""),
		PublicKey: cfg.Setting(SettingPublicKey, ""),
		SecretKey: cfg.Setting(SettingSecretKey, ""),
		Timeout:   cfg.Timeout,
	})
}

// New creates a Supabase provider
func New(config Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	base := strings.TrimRight(config.APIURL, "/") + "/auth/v1"

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(config.Timeout).
		SetHeader("apikey", config.PublicKey).
		SetHeader("Content-Type", "application/json")

	admin := resty.New().
		SetBaseURL(base).
		SetTimeout(config.Timeout).
		SetHeader("apikey", config.SecretKey).
		SetAuthToken(config.SecretKey).
		SetHeader("Content-Type", "application/json")

	return &Provider{config: config, client: client, admin: admin}, nil
}

func (p *Provider) Type() models.ProviderType {
	return models.ProviderSupabase
}

// Authenticate signs in with the password grant
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*identity.AuthResult, error) {
	var session sessionResponse
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&session).
		SetError(&apiErr).
		Post("/token")
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to sign in: %w", err))
	}
	if resp.IsError() {
		if isClientError(resp.StatusCode()) {
			return nil, apperr.CredentialsInvalid()
		}
		return nil, apiErr.asError("sign in", resp.StatusCode())
	}
	if session.User == nil || session.AccessToken == "" {
		return nil, apperr.CredentialsInvalid()
	}

	return &identity.AuthResult{
		User:   session.User.toProviderUser(),
		Tokens: session.tokens(),
		SessionMetadata: map[string]interface{}{
			"provider":      string(models.ProviderSupabase),
			"provider_user": session.User.ID,
		},
	}, nil
}

// ValidateToken verifies an access token locally with the project's JWT secret
func (p *Provider) ValidateToken(ctx context.Context, token string) (identity.Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(p.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.TokenExpired()
		}
		return nil, apperr.Wrap(apperr.KindTokenInvalid, err, "Invalid authentication token")
	}
	if sub, _ := claims.GetSubject(); sub == "" {
		return nil, apperr.TokenInvalid()
	}
	return identity.Claims(claims), nil
}

// RefreshToken exchanges a refresh token with the refresh grant
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	var session sessionResponse
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&session).
		SetError(&apiErr).
		Post("/token")
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to refresh session: %w", err))
	}
	if resp.IsError() {
		if isClientError(resp.StatusCode()) {
			return nil, apperr.TokenInvalid()
		}
		return nil, apiErr.asError("refresh session", resp.StatusCode())
	}
	if session.AccessToken == "" {
		return nil, apperr.TokenInvalid()
	}
	tokens := session.tokens()
	return &tokens, nil
}

// CreateUser registers through the public signup endpoint
func (p *Provider) CreateUser(ctx context.Context, email, password string, attrs map[string]interface{}) (*identity.ProviderUser, error) {
	var out signupResponse
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"email": email, "password": password, "data": attrs}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/signup")
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to sign up: %w", err))
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusUnprocessableEntity || resp.StatusCode() == http.StatusConflict {
			return nil, apperr.AlreadyExists("User", "email", email)
		}
		if resp.StatusCode() == http.StatusBadRequest {
			return nil, apperr.Validation("password", apiErr.message())
		}
		return nil, apiErr.asError("sign up", resp.StatusCode())
	}

	user := out.resolve()
	if user == nil || user.ID == "" {
		return nil, unavailable(fmt.Errorf("signup response did not include a user"))
	}
	return user.toProviderUser(), nil
}

// GetUserByID reads a user with the service key
func (p *Provider) GetUserByID(ctx context.Context, id string) (*identity.ProviderUser, error) {
	var user gotrueUser
	var apiErr errorResponse
	resp, err := p.admin.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&user).
		SetError(&apiErr).
		Get("/admin/users/{id}")
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to get user: %w", err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, apiErr.asError("get user", resp.StatusCode())
	}
	return user.toProviderUser(), nil
}

// GetUserByEmail pages through the admin user list
func (p *Provider) GetUserByEmail(ctx context.Context, email string) (*identity.ProviderUser, error) {
	const perPage = 200
	for page := 1; ; page++ {
		var out userListResponse
		var apiErr errorResponse
		resp, err := p.admin.R().
			SetContext(ctx).
			SetQueryParam("page", fmt.Sprint(page)).
			SetQueryParam("per_page", fmt.Sprint(perPage)).
			SetResult(&out).
			SetError(&apiErr).
			Get("/admin/users")
		if err != nil {
			return nil, unavailable(fmt.Errorf("failed to list users: %w", err))
		}
		if resp.IsError() {
			return nil, apiErr.asError("list users", resp.StatusCode())
		}
		for i := range out.Users {
			if strings.EqualFold(out.Users[i].Email, email) {
				return out.Users[i].toProviderUser(), nil
			}
		}
		if len(out.Users) < perPage {
			return nil, nil
		}
	}
}

// UpdateUser merges attrs into the user's metadata
func (p *Provider) UpdateUser(ctx context.Context, id string, attrs map[string]interface{}) (*identity.ProviderUser, error) {
	var user gotrueUser
	var apiErr errorResponse
	resp, err := p.admin.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetBody(map[string]interface{}{"user_metadata": attrs}).
		SetResult(&user).
		SetError(&apiErr).
		Put("/admin/users/{id}")
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to update user: %w", err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, apperr.UserNotFound(id)
	}
	if resp.IsError() {
		return nil, apiErr.asError("update user", resp.StatusCode())
	}
	return user.toProviderUser(), nil
}

func (p *Provider) DeleteUser(ctx context.Context, id string) error {
	var apiErr errorResponse
	resp, err := p.admin.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetError(&apiErr).
		Delete("/admin/users/{id}")
	if err != nil {
		return unavailable(fmt.Errorf("failed to delete user: %w", err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return apperr.UserNotFound(id)
	}
	if resp.IsError() {
		return apiErr.asError("delete user", resp.StatusCode())
	}
	return nil
}

// Logout revokes the provider session. sessionRef is the access token of the
// session being closed.
func (p *Provider) Logout(ctx context.Context, providerUserID, sessionRef string) (bool, error) {
	if sessionRef == "" {
		return false, apperr.TokenInvalid()
	}
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(sessionRef).
		SetError(&apiErr).
		Post("/logout")
	if err != nil {
		return false, unavailable(fmt.Errorf("failed to sign out: %w", err))
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		// token already revoked or expired upstream
		return true, nil
	}
	if resp.IsError() {
		return false, apiErr.asError("sign out", resp.StatusCode())
	}
	return true, nil
}

func (p *Provider) SendPasswordReset(ctx context.Context, email string) (bool, error) {
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email}).
		SetError(&apiErr).
		Post("/recover")
	if err != nil {
		return false, unavailable(fmt.Errorf("failed to send password reset: %w", err))
	}
	if resp.IsError() {
		return false, apiErr.asError("send password reset", resp.StatusCode())
	}
	return true, nil
}

// ResetPassword sets a new password using the recovery token as bearer
func (p *Provider) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"password": newPassword}).
		SetError(&apiErr).
		Put("/user")
	if err != nil {
		return false, unavailable(fmt.Errorf("failed to reset password: %w", err))
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return false, apperr.TokenInvalid()
	}
	if resp.IsError() {
		return false, apiErr.asError("reset password", resp.StatusCode())
	}
	return true, nil
}

// unavailable marks err as a provider outage rather than a rejection
func unavailable(err error) error {
	return apperr.ProviderUnavailable(string(models.ProviderSupabase), err)
}

func isClientError(status int) bool {
	return status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden
}

var _ identity.Provider = (*Provider)(nil)
