package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/cache"
	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/identity/identitytest"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/store"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

const testPassword = "Correct-Horse-Battery-9"

func strPtr(s string) *string { return &s }

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{HealthPort: "0"},
		Database: config.DatabaseConfig{Kind: config.StoreKindMemory},
		Provider: identity.ProviderConfig{Name: "fake", Timeout: time.Second},
		Session: config.SessionConfig{
			DefaultTTL:     time.Hour,
			PurgeSchedule:  "@every 1m",
			PurgeRetention: time.Hour,
		},
		Cache:         config.CacheConfig{Kind: config.CacheKindMemory, Size: 100, TTL: time.Minute},
		Observability: config.ObservabilityConfig{MetricsEnabled: true},
	}
}

func fakeRegistry(fake *identitytest.Fake) *identity.Registry {
	r := NewProviderRegistry(observability.Discard())
	r.Register("fake", func(ctx context.Context, cfg identity.ProviderConfig) (identity.Provider, error) {
		return fake, nil
	})
	return r
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *identitytest.Fake) {
	t.Helper()
	fake := identitytest.NewFake()
	a, err := New(context.Background(), cfg, observability.Discard(), Options{
		Providers: fakeRegistry(fake),
		Version:   "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a, fake
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestNewProviderRegistry(t *testing.T) {
	r := NewProviderRegistry(observability.Discard())
	assert.Equal(t, []string{"oidc", "supabase"}, r.Names())
}

func TestNew_EndToEnd(t *testing.T) {
	ctx := context.Background()
	a, fake := newTestApp(t, testConfig())

	instrumented, ok := a.Provider.(*identity.Instrumented)
	require.True(t, ok)
	assert.Same(t, fake, instrumented.Unwrap())
	assert.IsType(t, &cache.LRUSessionCache{}, a.Cache)

	signup, err := a.Auth.CreateUserWithOrganization(ctx, auth.SignupRequest{
		Email:     "owner@example.com",
		Password:  testPassword,
		FirstName: "Olive",
		LastName:  "Owner",
	})
	require.NoError(t, err)

	orgID := signup.OrganizationID()
	_, session, err := a.Auth.AuthenticateUser(ctx, "owner@example.com", testPassword, &orgID)
	require.NoError(t, err)

	validated, err := a.Auth.ValidateSession(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.ID, validated.ID)

	members, err := a.Memberships.ListMemberships(ctx, orgID, signup.UserID(), store.MembershipFilter{})
	require.NoError(t, err)
	assert.Len(t, members, 1)

	renamed, err := a.Users.UpdateUser(ctx, signup.UserID(), users.UserUpdate{FirstName: strPtr("Olivia")}, signup.UserID())
	require.NoError(t, err)
	assert.Equal(t, "Olivia Owner", renamed.DisplayName())

	require.NoError(t, a.Auth.Logout(ctx, validated))
	_, err = a.Auth.ValidateSession(ctx, session.AccessToken)
	assert.True(t, apperr.IsKind(err, apperr.KindSessionNotFound))

	err = a.Users.DeleteUser(ctx, signup.UserID(), signup.UserID())
	assert.True(t, apperr.IsKind(err, apperr.KindLastOwnerRemoval), "the only owner keeps the account")

	code, body := get(t, a.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "gatekeeper_auth_attempts_total")
	assert.Contains(t, body, "gatekeeper_provider_call_duration_seconds")
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_UnknownProviderFailsClosed(t *testing.T) {
	cfg := testConfig()
	cfg.Provider.Name = "ldap"
	a, _ := newTestApp(t, cfg)

	instrumented, ok := a.Provider.(*identity.Instrumented)
	require.True(t, ok)
	assert.IsType(t, &identity.Unconfigured{}, instrumented.Unwrap())

	_, _, err := a.Auth.AuthenticateUser(context.Background(), "a@example.com", testPassword, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindUnsupportedProvider), "unexpected error: %v", err)
}

func TestNew_ProviderFactoryError(t *testing.T) {
	cfg := testConfig()
	cfg.Provider = identity.ProviderConfig{Name: "supabase", Timeout: time.Second}

	a, err := New(context.Background(), cfg, observability.Discard(), Options{})
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "failed to create provider supabase")
}

func TestNew_Caches(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		cfg := testConfig()
		cfg.Cache = config.CacheConfig{Kind: config.CacheKindNone}
		a, _ := newTestApp(t, cfg)
		assert.Nil(t, a.Cache)
		assert.Equal(t, []string{"store"}, a.Health.Names())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.Cache = config.CacheConfig{Kind: config.CacheKindRedis, RedisURL: "redis://" + mr.Addr(), TTL: time.Minute}
		a, fake := newTestApp(t, cfg)
		assert.IsType(t, &cache.RedisSessionCache{}, a.Cache)

		fake.AddUser("alice@example.com", testPassword)
		_, session, err := a.Auth.AuthenticateUser(context.Background(), "alice@example.com", testPassword, nil)
		require.NoError(t, err)
		_, err = a.Auth.ValidateSession(context.Background(), session.AccessToken)
		require.NoError(t, err)
		assert.NotEmpty(t, mr.Keys())
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := testConfig()
		cfg.Cache = config.CacheConfig{Kind: config.CacheKindRedis, RedisURL: "redis://127.0.0.1:1", TTL: time.Minute}
		_, err := New(context.Background(), cfg, observability.Discard(), Options{Providers: fakeRegistry(identitytest.NewFake())})
		assert.ErrorContains(t, err, "failed to open session cache")
	})
}

func TestNew_UnsupportedStore(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Kind = "sqlite"
	_, err := New(context.Background(), cfg, observability.Discard(), Options{Providers: fakeRegistry(identitytest.NewFake())})
	assert.ErrorContains(t, err, "unsupported store")
}

func TestHandler_Health(t *testing.T) {
	a, _ := newTestApp(t, testConfig())
	h := a.Handler()

	code, _ := get(t, h, "/health/live")
	assert.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.NotEmpty(t, rec.Header().Get(httputil.RequestIDHeader))

	code, body := get(t, h, "/health/ready")
	assert.Equal(t, http.StatusOK, code)

	var status observability.HealthStatus
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "test", status.Version)
	assert.Contains(t, status.Dependencies, "store")
	assert.Contains(t, status.Dependencies, "session_cache")
}

func TestHandler_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.MetricsEnabled = false
	a, _ := newTestApp(t, cfg)

	code, _ := get(t, a.Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPurgeSessions(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Session.PurgeRetention = 0
	a, fake := newTestApp(t, cfg)

	fake.AddUser("alice@example.com", testPassword)
	_, session, err := a.Auth.AuthenticateUser(ctx, "alice@example.com", testPassword, nil)
	require.NoError(t, err)
	require.NoError(t, a.Auth.Logout(ctx, session))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.PurgeSessions(ctx))

	_, err = a.Store.GetSession(ctx, session.ID)
	assert.Error(t, err)
}

func TestScheduler(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	s, err := a.NewScheduler()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, s.Entries())

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))

	t.Run("disabled", func(t *testing.T) {
		a.Config.Session.PurgeSchedule = ""
		s, err := a.NewScheduler()
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Zero(t, s.Entries())
		s.Start()
		assert.NoError(t, s.Stop(context.Background()))
	})

	t.Run("invalid schedule", func(t *testing.T) {
		a.Config.Session.PurgeSchedule = "every tuesday"
		_, err := a.NewScheduler()
		assert.ErrorContains(t, err, "failed to schedule session purge")
	})
}
