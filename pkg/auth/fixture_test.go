package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/cache"
	"github.com/platinummonkey/gatekeeper/pkg/identity/identitytest"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/orgs"
	"github.com/platinummonkey/gatekeeper/pkg/store/memory"
)

const testPassword = "Correct-Horse-Battery-9"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	provider *identitytest.Fake
	store    *memory.Store
	cache    *cache.LRUSessionCache
	audit    *audit.MemoryLogger
	metrics  *observability.Metrics
	clock    *clock
	orgs     *orgs.OrganizationService
	members  *orgs.MembershipService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.NewStore()
	guard := orgs.NewAccessGuard(st)
	f := &fixture{
		provider: identitytest.NewFake(),
		store:    st,
		cache:    cache.NewLRUSessionCache(100, time.Minute),
		audit:    audit.NewMemoryLogger(),
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		clock:    &clock{now: time.Now().UTC()},
	}
	orgOpts := orgs.Options{Logger: observability.Discard()}
	f.orgs = orgs.NewOrganizationService(st, guard, orgOpts)
	f.members = orgs.NewMembershipService(st, guard, orgOpts)
	f.svc = f.newService(st)
	return f
}

// newService builds another orchestrator over st, as a second process would
func (f *fixture) newService(st *memory.Store) *Service {
	return NewService(f.provider, st, orgs.NewAccessGuard(st), Options{
		Cache:   f.cache,
		Audit:   f.audit,
		Logger:  observability.Discard(),
		Metrics: f.metrics,
		Now:     f.clock.Now,
	})
}

// login seeds a provider account and authenticates it without organization context
func (f *fixture) login(t *testing.T, email string) *models.Session {
	t.Helper()
	f.provider.AddUser(email, testPassword)
	_, session, err := f.svc.AuthenticateUser(context.Background(), email, testPassword, nil)
	require.NoError(t, err)
	return session
}

func (f *fixture) storedSession(t *testing.T, id uuid.UUID) *models.Session {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	return s
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}
