package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/store/memory"
)

type fixture struct {
	store   *memory.Store
	guard   *AccessGuard
	members *MembershipService
	orgs    *OrganizationService
	audit   *audit.MemoryLogger
	metrics *observability.Metrics

	org   *models.Organization
	owner *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.NewStore()
	guard := NewAccessGuard(st)
	auditLog := audit.NewMemoryLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	opts := Options{Audit: auditLog, Logger: observability.Discard(), Metrics: metrics}

	f := &fixture{
		store:   st,
		guard:   guard,
		members: NewMembershipService(st, guard, opts),
		orgs:    NewOrganizationService(st, guard, opts),
		audit:   auditLog,
		metrics: metrics,
	}

	f.owner = f.newUser(t, "owner@example.com")
	org, _, err := f.orgs.CreateOrganization(context.Background(), OrganizationCreate{Name: "Acme"}, f.owner.ID)
	require.NoError(t, err)
	f.org = org
	return f
}

func (f *fixture) newUser(t *testing.T, email string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.New(), Email: email, IsActive: true}
	u.Stamp(nil, time.Now())
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

// addMember invites and, when active is set, accepts in one step
func (f *fixture) addMember(t *testing.T, email string, role models.Role, active bool) *models.User {
	t.Helper()
	ctx := context.Background()
	u := f.newUser(t, email)
	_, err := f.members.CreateMembership(ctx, MembershipCreate{OrganizationID: f.org.ID, UserID: u.ID, Role: role}, f.owner.ID)
	require.NoError(t, err)
	if active {
		_, err = f.members.AcceptInvitation(ctx, f.org.ID, u.ID)
		require.NoError(t, err)
	}
	return u
}

func (f *fixture) membership(t *testing.T, userID uuid.UUID) *models.Membership {
	t.Helper()
	m, err := f.store.GetMembershipByOrgAndUser(context.Background(), f.org.ID, userID)
	require.NoError(t, err)
	return m
}

func (f *fixture) activeOwners(t *testing.T) int {
	t.Helper()
	n, err := f.store.CountActiveOwners(context.Background(), f.org.ID)
	require.NoError(t, err)
	return n
}

// orgSession stores an active session scoped to orgID
func (f *fixture) orgSession(t *testing.T, userID, orgID uuid.UUID) *models.Session {
	t.Helper()
	now := time.Now()
	sess := &models.Session{
		ID: uuid.New(), UserID: userID, AccessToken: uuid.NewString(), ExpiresAt: now.Add(time.Hour),
		OrganizationID: models.UUIDPtr(orgID), IsActive: true,
	}
	sess.Stamp(nil, now)
	require.NoError(t, f.store.CreateSession(context.Background(), sess))
	return sess
}

func (f *fixture) session(t *testing.T, id uuid.UUID) *models.Session {
	t.Helper()
	sess, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}
