package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
)

const (
	testClientID     = "gatekeeper-client"
	testClientSecret = "gatekeeper-secret"
	testKeyID        = "test-key"
)

type testIssuer struct {
	srv     *httptest.Server
	key     *rsa.PrivateKey
	revoked []string
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	iss := &testIssuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"issuer":                                iss.srv.URL,
			"authorization_endpoint":                iss.srv.URL + "/authorize",
			"token_endpoint":                        iss.srv.URL + "/token",
			"jwks_uri":                              iss.srv.URL + "/keys",
			"userinfo_endpoint":                     iss.srv.URL + "/userinfo",
			"revocation_endpoint":                   iss.srv.URL + "/revoke",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKeyID,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.Form.Get("grant_type") {
		case "password":
			if r.Form.Get("username") == "outage@example.com" {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily_unavailable"})
				return
			}
			if r.Form.Get("username") != "ada@example.com" || r.Form.Get("password") != "correct" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token":  "opaque-access",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": "refresh-1",
				"id_token":      iss.idToken(t, time.Now().Add(time.Hour)),
			})
		case "refresh_token":
			if r.Form.Get("refresh_token") != "refresh-1" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token":  "opaque-access-2",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": "refresh-2",
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		}
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer opaque-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"sub": "subject-1", "email": "ada@example.com"})
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		iss.revoked = append(iss.revoked, r.Form.Get("token"))
		w.WriteHeader(http.StatusOK)
	})

	iss.srv = httptest.NewServer(mux)
	t.Cleanup(iss.srv.Close)
	return iss
}

func (i *testIssuer) idToken(t *testing.T, exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            i.srv.URL,
		"aud":            testClientID,
		"sub":            "subject-1",
		"email":          "ada@example.com",
		"email_verified": true,
		"given_name":     "Ada",
		"family_name":    "Lovelace",
		"iat":            time.Now().Add(-time.Minute).Unix(),
		"exp":            exp.Unix(),
	})
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(i.key)
	require.NoError(t, err)
	return signed
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestProvider(t *testing.T) (*Provider, *testIssuer) {
	t.Helper()
	iss := newTestIssuer(t)
	p, err := Factory(context.Background(), identity.ProviderConfig{
		Name: "oidc",
		Settings: map[string]string{
			SettingIssuerURL:    iss.srv.URL,
			SettingClientID:     testClientID,
			SettingClientSecret: testClientSecret,
			SettingScopes:       "openid, email, profile",
		},
	})
	require.NoError(t, err)
	return p.(*Provider), iss
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{"missing issuer", Config{ClientID: "c", ClientSecret: "s"}, "issuer_url is required"},
		{"missing client_id", Config{IssuerURL: "https://issuer", ClientSecret: "s"}, "client_id is required"},
		{"missing client_secret", Config{IssuerURL: "https://issuer", ClientID: "c"}, "client_secret is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestNew_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(context.Background(), Config{IssuerURL: srv.URL, ClientID: "c", ClientSecret: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to discover OIDC provider")
}

func TestAuthenticate(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		res, err := p.Authenticate(ctx, "ada@example.com", "correct")
		require.NoError(t, err)
		assert.Equal(t, "subject-1", res.User.ID)
		assert.Equal(t, "ada@example.com", res.User.Email)
		assert.True(t, res.User.EmailVerified)
		assert.Equal(t, "Ada", res.User.Metadata["first_name"])
		assert.Equal(t, models.ProviderOIDC, res.User.ProviderType)
		assert.Equal(t, "opaque-access", res.Tokens.AccessToken)
		assert.Equal(t, "refresh-1", res.Tokens.RefreshToken)
		assert.Equal(t, "bearer", res.Tokens.TokenType)
		require.NotNil(t, res.Tokens.ExpiresAt)
	})

	t.Run("bad password", func(t *testing.T) {
		_, err := p.Authenticate(ctx, "ada@example.com", "wrong")
		assert.True(t, apperr.IsKind(err, apperr.KindCredentialsInvalid))
	})

	t.Run("issuer error", func(t *testing.T) {
		_, err := p.Authenticate(ctx, "outage@example.com", "correct")
		assert.True(t, apperr.IsKind(err, apperr.KindProviderUnavailable), "unexpected error: %v", err)
	})
}

func TestIssuerUnreachable(t *testing.T) {
	p, iss := newTestProvider(t)
	iss.srv.Close()
	ctx := context.Background()

	_, err := p.Authenticate(ctx, "ada@example.com", "correct")
	assert.True(t, apperr.IsKind(err, apperr.KindProviderUnavailable), "authenticate: %v", err)

	_, err = p.RefreshToken(ctx, "refresh-1")
	assert.True(t, apperr.IsKind(err, apperr.KindProviderUnavailable), "refresh: %v", err)

	_, err = p.ValidateToken(ctx, "opaque-access")
	assert.True(t, apperr.IsKind(err, apperr.KindProviderUnavailable), "validate: %v", err)

	ok, err := p.Logout(ctx, "subject-1", "opaque-access")
	assert.False(t, ok)
	assert.True(t, apperr.IsKind(err, apperr.KindProviderUnavailable), "logout: %v", err)
}

func TestValidateToken(t *testing.T) {
	p, iss := newTestProvider(t)
	ctx := context.Background()

	t.Run("signed token", func(t *testing.T) {
		claims, err := p.ValidateToken(ctx, iss.idToken(t, time.Now().Add(time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, "subject-1", claims.Subject())
	})

	t.Run("expired signed token", func(t *testing.T) {
		_, err := p.ValidateToken(ctx, iss.idToken(t, time.Now().Add(-time.Hour)))
		assert.True(t, apperr.IsKind(err, apperr.KindTokenExpired))
	})

	t.Run("opaque token via userinfo", func(t *testing.T) {
		claims, err := p.ValidateToken(ctx, "opaque-access")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", claims.Email())
	})

	t.Run("rejected opaque token", func(t *testing.T) {
		_, err := p.ValidateToken(ctx, "revoked-access")
		assert.True(t, apperr.IsKind(err, apperr.KindTokenInvalid))
	})
}

func TestRefreshToken(t *testing.T) {
	p, _ := newTestProvider(t)

	tokens, err := p.RefreshToken(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "opaque-access-2", tokens.AccessToken)
	assert.Equal(t, "refresh-2", tokens.RefreshToken)

	_, err = p.RefreshToken(context.Background(), "stale")
	assert.True(t, apperr.IsKind(err, apperr.KindTokenInvalid))
}

func TestLogout_RevokesToken(t *testing.T) {
	p, iss := newTestProvider(t)

	ok, err := p.Logout(context.Background(), "subject-1", "opaque-access")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"opaque-access"}, iss.revoked)
}

func TestUnsupportedOperations(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	_, err := p.CreateUser(ctx, "a@example.com", "pw", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindUnsupportedProvider))

	_, err = p.GetUserByEmail(ctx, "a@example.com")
	assert.True(t, apperr.IsKind(err, apperr.KindUnsupportedProvider))

	assert.True(t, apperr.IsKind(p.DeleteUser(ctx, "x"), apperr.KindUnsupportedProvider))

	ok, err := p.SendPasswordReset(ctx, "a@example.com")
	assert.False(t, ok)
	assert.True(t, apperr.IsKind(err, apperr.KindUnsupportedProvider))
}
