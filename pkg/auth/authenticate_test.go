package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/orgs"
)

func TestAuthenticateUser_FirstLoginCreatesUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	providerID := f.provider.AddUser("alice@example.com", testPassword)

	result, session, err := f.svc.AuthenticateUser(ctx, "alice@example.com", testPassword, nil)
	require.NoError(t, err)
	assert.Equal(t, providerID, result.User.ID)
	assert.True(t, session.IsActive)
	assert.Equal(t, result.Tokens.AccessToken, session.AccessToken)
	assert.Equal(t, result.Tokens.RefreshToken, session.RefreshToken)
	assert.Equal(t, "bearer", session.TokenType)
	assert.Nil(t, session.OrganizationID)
	assert.WithinDuration(t, f.clock.Now().Add(time.Hour), session.ExpiresAt, time.Second)
	assert.Equal(t, "fake", session.Metadata["provider"])

	user, err := f.store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	require.NotNil(t, user.LastLoginAt)

	link, err := f.store.GetIdentityLink(ctx, models.ProviderCustom, providerID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, link.UserID)
	assert.Equal(t, link.ID, session.IdentityLinkID)

	logins := f.audit.EventsOfType(audit.EventTypeAuthLogin)
	require.Len(t, logins, 1)
	assert.Equal(t, session.ID, *logins[0].SessionID)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AuthAttemptsTotal.WithLabelValues(observability.ResultSuccess)))
}

func TestAuthenticateUser_RepeatLoginReusesUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.login(t, "alice@example.com")

	f.clock.Advance(time.Minute)
	_, second, err := f.svc.AuthenticateUser(ctx, "alice@example.com", testPassword, nil)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, first.IdentityLinkID, second.IdentityLinkID)
	assert.NotEqual(t, first.ID, second.ID)

	user, err := f.store.GetUser(ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), *user.LastLoginAt)
}

func TestAuthenticateUser_LinksExistingLocalUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	existing := &models.User{ID: uuid.New(), Email: "Alice@Example.com", IsActive: true}
	require.NoError(t, f.store.CreateUser(ctx, existing))

	session := f.login(t, "alice@example.com")
	assert.Equal(t, existing.ID, session.UserID)
}

func TestAuthenticateUser_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong password", func(t *testing.T) {
		f := newFixture(t)
		f.provider.AddUser("alice@example.com", testPassword)

		_, _, err := f.svc.AuthenticateUser(ctx, "alice@example.com", "nope", nil)
		requireKind(t, err, apperr.KindCredentialsInvalid)

		_, err = f.store.GetUserByEmail(ctx, "alice@example.com")
		assert.Error(t, err, "no local user without a successful login")

		failed := f.audit.EventsOfType(audit.EventTypeAuthLoginFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, "alice@example.com", failed[0].Email)
		assert.Equal(t, audit.EventStatusFailure, failed[0].Status)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AuthAttemptsTotal.WithLabelValues(observability.ResultFailure)))
	})

	t.Run("empty credentials skip the provider", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.AuthenticateUser(ctx, "", "", nil)
		requireKind(t, err, apperr.KindCredentialsInvalid)
		assert.Zero(t, f.provider.Calls("authenticate"))
	})

	t.Run("provider outage surfaces as invalid credentials", func(t *testing.T) {
		f := newFixture(t)
		f.provider.AddUser("alice@example.com", testPassword)
		outage := errors.New("connection refused")
		f.provider.Fail("authenticate", outage)

		_, _, err := f.svc.AuthenticateUser(ctx, "alice@example.com", testPassword, nil)
		requireKind(t, err, apperr.KindCredentialsInvalid)
		assert.ErrorIs(t, err, outage)
	})

	t.Run("provider kind is kept", func(t *testing.T) {
		f := newFixture(t)
		f.provider.Fail("authenticate", apperr.TokenExpired())

		_, _, err := f.svc.AuthenticateUser(ctx, "alice@example.com", testPassword, nil)
		requireKind(t, err, apperr.KindTokenExpired)
	})

	t.Run("disabled local user", func(t *testing.T) {
		f := newFixture(t)
		session := f.login(t, "alice@example.com")

		user, err := f.store.GetUser(ctx, session.UserID)
		require.NoError(t, err)
		user.IsActive = false
		require.NoError(t, f.store.UpdateUser(ctx, user))

		_, _, err = f.svc.AuthenticateUser(ctx, "alice@example.com", testPassword, nil)
		requireKind(t, err, apperr.KindCredentialsInvalid)
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFixture(t)
		f.provider.AddUser("alice@example.com", testPassword)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err := f.svc.AuthenticateUser(cctx, "alice@example.com", testPassword, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAuthenticateUser_OrganizationContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	owner := f.login(t, "owner@example.com")
	org, _, err := f.orgs.CreateOrganization(ctx, orgs.OrganizationCreate{Name: "Acme"}, owner.UserID)
	require.NoError(t, err)

	t.Run("member", func(t *testing.T) {
		_, session, err := f.svc.AuthenticateUser(ctx, "owner@example.com", testPassword, &org.ID)
		require.NoError(t, err)
		require.NotNil(t, session.OrganizationID)
		assert.Equal(t, org.ID, *session.OrganizationID)
	})

	t.Run("non member gets no session", func(t *testing.T) {
		outsider := f.login(t, "outsider@example.com")
		before := f.audit.EventsOfType(audit.EventTypeAuthLogin)

		_, session, err := f.svc.AuthenticateUser(ctx, "outsider@example.com", testPassword, &org.ID)
		requireKind(t, err, apperr.KindOrganizationAccessDenied)
		assert.Nil(t, session)
		assert.Len(t, f.audit.EventsOfType(audit.EventTypeAuthLogin), len(before))

		denied := f.audit.EventsOfType(audit.EventTypeAuthzAccessDenied)
		require.Len(t, denied, 1)
		assert.Equal(t, outsider.UserID, *denied[0].UserID)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AuthAttemptsTotal.WithLabelValues(observability.ResultDenied)))
	})

	t.Run("pending invitation", func(t *testing.T) {
		invitee := f.login(t, "invitee@example.com")
		_, err := f.members.CreateMembership(ctx, orgs.MembershipCreate{OrganizationID: org.ID, UserID: invitee.UserID}, owner.UserID)
		require.NoError(t, err)

		_, _, err = f.svc.AuthenticateUser(ctx, "invitee@example.com", testPassword, &org.ID)
		requireKind(t, err, apperr.KindOrganizationAccessDenied)

		_, err = f.members.AcceptInvitation(ctx, org.ID, invitee.UserID)
		require.NoError(t, err)
		_, _, err = f.svc.AuthenticateUser(ctx, "invitee@example.com", testPassword, &org.ID)
		require.NoError(t, err)
	})

	t.Run("superuser", func(t *testing.T) {
		admin := f.login(t, "admin@example.com")
		user, err := f.store.GetUser(ctx, admin.UserID)
		require.NoError(t, err)
		user.IsSuperuser = true
		require.NoError(t, f.store.UpdateUser(ctx, user))

		_, session, err := f.svc.AuthenticateUser(ctx, "admin@example.com", testPassword, &org.ID)
		require.NoError(t, err)
		assert.Equal(t, org.ID, *session.OrganizationID)
	})
}

func TestAuthenticateUser_ConcurrentFirstLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	providerID := f.provider.AddUser("alice@example.com", testPassword)

	// A second orchestrator over the same store has its own in-process
	// deduplication, so the store's unique keys have to settle the race.
	services := []*Service{f.svc, f.newService(f.store)}

	const logins = 16
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		sessions = make([]*models.Session, logins)
		errs     = make([]error, logins)
	)
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, sessions[i], errs[i] = services[i%len(services)].AuthenticateUser(ctx, "alice@example.com", testPassword, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "login %d", i)
	}

	user, err := f.store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	link, err := f.store.GetIdentityLink(ctx, models.ProviderCustom, providerID)
	require.NoError(t, err)

	seen := make(map[uuid.UUID]bool)
	for _, s := range sessions {
		assert.Equal(t, user.ID, s.UserID)
		assert.Equal(t, link.ID, s.IdentityLinkID)
		seen[s.ID] = true
	}
	assert.Len(t, seen, logins, "every login gets its own session")
}

func TestProviderFailure(t *testing.T) {
	ctx := context.Background()
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		err      error
		fallback apperr.Kind
		want     apperr.Kind
	}{
		{"authentication kind kept", ctx, apperr.TokenExpired(), apperr.KindCredentialsInvalid, apperr.KindTokenExpired},
		{"general kind mapped", ctx, apperr.Conflict("x", "y"), apperr.KindCredentialsInvalid, apperr.KindCredentialsInvalid},
		{"plain error mapped", ctx, errors.New("boom"), apperr.KindTokenInvalid, apperr.KindTokenInvalid},
		{"wrapped authentication kind", ctx, fmt.Errorf("call: %w", apperr.CredentialsInvalid()), apperr.KindTokenInvalid, apperr.KindCredentialsInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(providerFailure(tt.ctx, tt.err, tt.fallback)))
		})
	}

	t.Run("caller cancellation", func(t *testing.T) {
		err := providerFailure(cancelled, fmt.Errorf("request: %w", context.Canceled), apperr.KindCredentialsInvalid)
		assert.Equal(t, context.Canceled, err)
	})
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, fingerprint(""))
	fp := fingerprint("at-secret")
	assert.Len(t, fp, fingerprintLength)
	assert.Equal(t, fp, fingerprint("at-secret"))
	assert.NotEqual(t, fp, fingerprint("at-other"))
	assert.NotContains(t, fp, "secret")
}
