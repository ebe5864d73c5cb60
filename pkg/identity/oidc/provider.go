package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
)

// Settings keys read from identity.ProviderConfig
const (
	SettingIssuerURL       = "issuer_url"
	SettingClientID        = "client_id"
	SettingClientSecret    = "client_secret"
	SettingScopes          = "scopes"
	SettingSkipIssuerCheck = "skip_issuer_check"
)

// Config holds OIDC client settings
type Config struct {
	IssuerURL       string
	ClientID        string
	ClientSecret    string
	Scopes          []string
	SkipIssuerCheck bool
	Timeout         time.Duration
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	return nil
}

type discoveryClaims struct {
	RevocationEndpoint string `json:"revocation_endpoint"`
}

// Provider authenticates against a generic OpenID Connect issuer using the
// resource owner password grant
type Provider struct {
	config       Config
	provider     *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	revocation   string
	http         *resty.Client
}

// Factory builds a Provider from registry configuration
func Factory(ctx context.Context, cfg identity.ProviderConfig) (identity.Provider, error) {
	var scopes []string
	if raw := cfg.Setting(SettingScopes, ""); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				scopes = append(scopes, s)
			}
		}
	}
	return New(ctx, Config{
		IssuerURL:       cfg.Setting(SettingIssuerURL, ""),
		ClientID:        cfg.Setting(SettingClientID, ""),
		ClientSecret:    cfg.Setting(SettingClientSecret, ""),
		Scopes:          scopes,
		SkipIssuerCheck: cfg.Setting(SettingSkipIssuerCheck, "false") == "true",
		Timeout:         cfg.Timeout,
	})
}

// New discovers the issuer and creates a provider
func New(ctx context.Context, config Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(config.Scopes) == 0 {
		config.Scopes = []string{gooidc.ScopeOpenID, "profile", "email", gooidc.ScopeOfflineAccess}
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	provider, err := gooidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&gooidc.Config{
		ClientID:        config.ClientID,
		SkipIssuerCheck: config.SkipIssuerCheck,
	})

	oauth2Config := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       config.Scopes,
	}

	var disc discoveryClaims
	if err := provider.Claims(&disc); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document: %w", err)
	}

	return &Provider{
		config:       config,
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
		revocation:   disc.RevocationEndpoint,
		http:         resty.New().SetTimeout(config.Timeout),
	}, nil
}

func (p *Provider) Type() models.ProviderType {
	return models.ProviderOIDC
}

// Authenticate runs the password grant and verifies the returned ID token
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*identity.AuthResult, error) {
	token, err := p.oauth2Config.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, grantError(fmt.Errorf("failed to exchange credentials: %w", err), apperr.KindCredentialsInvalid)
	}

	claims, err := p.claimsFor(ctx, token)
	if err != nil {
		return nil, err
	}

	user := claimsToUser(claims)
	if user.ID == "" {
		return nil, apperr.New(apperr.KindTokenInvalid, "missing subject in OIDC token")
	}
	if user.Email == "" {
		user.Email = email
	}

	return &identity.AuthResult{
		User:   user,
		Tokens: tokenPair(token),
		SessionMetadata: map[string]interface{}{
			"provider": string(models.ProviderOIDC),
			"issuer":   p.config.IssuerURL,
		},
	}, nil
}

// claimsFor prefers the ID token and falls back to the userinfo endpoint
func (p *Provider) claimsFor(ctx context.Context, token *oauth2.Token) (identity.Claims, error) {
	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, translateVerifyError(err)
		}
		var claims identity.Claims
		if err := idToken.Claims(&claims); err != nil {
			return nil, apperr.Wrap(apperr.KindTokenInvalid, err, "Invalid authentication token")
		}
		return claims, nil
	}
	return p.fetchUserInfo(ctx, token)
}

func (p *Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (identity.Claims, error) {
	userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, unavailable(fmt.Errorf("failed to fetch userinfo: %w", err))
		}
		return nil, apperr.Wrap(apperr.KindTokenInvalid, err, "Invalid authentication token")
	}
	var claims identity.Claims
	if err := userInfo.Claims(&claims); err != nil {
		return nil, apperr.Wrap(apperr.KindTokenInvalid, err, "Invalid authentication token")
	}
	return claims, nil
}

// ValidateToken accepts either a JWT verifiable with the issuer's keys or an
// opaque token the userinfo endpoint accepts
func (p *Provider) ValidateToken(ctx context.Context, token string) (identity.Claims, error) {
	if strings.Count(token, ".") == 2 {
		idToken, err := p.verifier.Verify(ctx, token)
		if err == nil {
			var claims identity.Claims
			if err := idToken.Claims(&claims); err != nil {
				return nil, apperr.Wrap(apperr.KindTokenInvalid, err, "Invalid authentication token")
			}
			return claims, nil
		}
		var expired *gooidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, apperr.TokenExpired()
		}
	}
	return p.fetchUserInfo(ctx, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	src := p.oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, grantError(fmt.Errorf("failed to refresh token: %w", err), apperr.KindTokenInvalid)
	}
	pair := tokenPair(token)
	return &pair, nil
}

func (p *Provider) unsupported(op string) error {
	return apperr.UnsupportedProvider(string(models.ProviderOIDC)).WithDetail("operation", op)
}

func (p *Provider) CreateUser(ctx context.Context, email, password string, attrs map[string]interface{}) (*identity.ProviderUser, error) {
	return nil, p.unsupported("create_user")
}

func (p *Provider) GetUserByID(ctx context.Context, id string) (*identity.ProviderUser, error) {
	return nil, p.unsupported("get_user_by_id")
}

func (p *Provider) GetUserByEmail(ctx context.Context, email string) (*identity.ProviderUser, error) {
	return nil, p.unsupported("get_user_by_email")
}

func (p *Provider) UpdateUser(ctx context.Context, id string, attrs map[string]interface{}) (*identity.ProviderUser, error) {
	return nil, p.unsupported("update_user")
}

func (p *Provider) DeleteUser(ctx context.Context, id string) error {
	return p.unsupported("delete_user")
}

// Logout revokes the access token when the issuer advertises a revocation
// endpoint. Issuers without one have nothing to revoke.
func (p *Provider) Logout(ctx context.Context, providerUserID, sessionRef string) (bool, error) {
	if p.revocation == "" || sessionRef == "" {
		return true, nil
	}
	resp, err := p.http.R().
		SetContext(ctx).
		SetBasicAuth(p.config.ClientID, p.config.ClientSecret).
		SetFormData(map[string]string{
			"token":           sessionRef,
			"token_type_hint": "access_token",
		}).
		Post(p.revocation)
	if err != nil {
		return false, unavailable(fmt.Errorf("failed to revoke token: %w", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return false, unavailable(fmt.Errorf("token revocation failed with status %d", resp.StatusCode()))
	}
	return true, nil
}

func (p *Provider) SendPasswordReset(ctx context.Context, email string) (bool, error) {
	return false, p.unsupported("send_password_reset")
}

func (p *Provider) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	return false, p.unsupported("reset_password")
}

// grantError maps a failed token request. The issuer answering with a 4xx
// OAuth error rejects the grant; anything else is an outage.
func grantError(err error, rejected apperr.Kind) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && (re.Response == nil || re.Response.StatusCode < http.StatusInternalServerError) {
		msg := apperr.TokenInvalid().Message
		if rejected == apperr.KindCredentialsInvalid {
			msg = apperr.CredentialsInvalid().Message
		}
		return apperr.Wrap(rejected, err, msg)
	}
	return unavailable(err)
}

func unavailable(err error) error {
	return apperr.ProviderUnavailable(string(models.ProviderOIDC), err)
}

func translateVerifyError(err error) error {
	var expired *gooidc.TokenExpiredError
	if errors.As(err, &expired) {
		return apperr.TokenExpired()
	}
	return apperr.Wrap(apperr.KindTokenInvalid, err, "Invalid authentication token")
}

func tokenPair(token *oauth2.Token) identity.TokenPair {
	pair := identity.TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    strings.ToLower(token.TokenType),
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		pair.ExpiresAt = &expiry
	}
	return pair
}

func claimsToUser(claims identity.Claims) *identity.ProviderUser {
	meta := make(map[string]interface{})
	for _, key := range []string{"name", "given_name", "family_name", "preferred_username", "picture"} {
		if v := claims.String(key); v != "" {
			meta[key] = v
		}
	}
	if v := claims.String("given_name"); v != "" {
		meta["first_name"] = v
	}
	if v := claims.String("family_name"); v != "" {
		meta["last_name"] = v
	}
	verified, _ := claims["email_verified"].(bool)
	return &identity.ProviderUser{
		ID:            claims.Subject(),
		Email:         claims.Email(),
		ProviderType:  models.ProviderOIDC,
		EmailVerified: verified,
		Metadata:      meta,
	}
}

var _ identity.Provider = (*Provider)(nil)
