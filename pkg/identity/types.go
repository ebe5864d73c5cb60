package identity

import (
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/models"
)

// DefaultTokenType is used when a provider does not name one
const DefaultTokenType = "bearer"

// ProviderUser is a user record as the identity provider sees it
type ProviderUser struct {
	ID            string                 `json:"id"`
	Email         string                 `json:"email"`
	ProviderType  models.ProviderType    `json:"provider_type"`
	EmailVerified bool                   `json:"email_verified"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     *time.Time             `json:"created_at,omitempty"`
	UpdatedAt     *time.Time             `json:"updated_at,omitempty"`
}

// TokenPair holds the credentials a provider issued for a login or refresh.
// RefreshToken and ExpiresAt may be empty when the provider does not supply them.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    time.Duration `json:"expires_in,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
}

// Expiry resolves the absolute expiry, preferring ExpiresAt, then ExpiresIn,
// then now+fallback.
func (t *TokenPair) Expiry(now time.Time, fallback time.Duration) time.Time {
	if t.ExpiresAt != nil && !t.ExpiresAt.IsZero() {
		return *t.ExpiresAt
	}
	if t.ExpiresIn > 0 {
		return now.Add(t.ExpiresIn)
	}
	return now.Add(fallback)
}

// Type returns the token type, defaulting to bearer
func (t *TokenPair) Type() string {
	if t.TokenType == "" {
		return DefaultTokenType
	}
	return t.TokenType
}

// AuthResult is the outcome of a successful provider authentication
type AuthResult struct {
	User            *ProviderUser          `json:"user"`
	Tokens          TokenPair              `json:"tokens"`
	SessionMetadata map[string]interface{} `json:"session_metadata,omitempty"`
}

// Claims are the verified contents of an access token
type Claims map[string]interface{}

// Subject returns the "sub" claim
func (c Claims) Subject() string {
	return c.String("sub")
}

// Email returns the "email" claim
func (c Claims) Email() string {
	return c.String("email")
}

// String returns a claim as a string, or "" if absent or not a string
func (c Claims) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// ProviderConfig configures one provider instance
type ProviderConfig struct {
	Name     string            `yaml:"name"`
	Settings map[string]string `yaml:"settings"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// Setting returns a settings value or def when unset
func (c ProviderConfig) Setting(key, def string) string {
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return def
}
