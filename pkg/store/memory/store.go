package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// tables holds every row. Stored entities are private copies; callers always
// receive fresh copies so mutations only land through Create/Update.
type tables struct {
	users       map[uuid.UUID]*models.User
	links       map[uuid.UUID]*models.IdentityLink
	sessions    map[uuid.UUID]*models.Session
	orgs        map[uuid.UUID]*models.Organization
	memberships map[uuid.UUID]*models.Membership
}

func newTables() *tables {
	return &tables{
		users:       make(map[uuid.UUID]*models.User),
		links:       make(map[uuid.UUID]*models.IdentityLink),
		sessions:    make(map[uuid.UUID]*models.Session),
		orgs:        make(map[uuid.UUID]*models.Organization),
		memberships: make(map[uuid.UUID]*models.Membership),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = copyUser(v)
	}
	for k, v := range t.links {
		c.links[k] = copyLink(v)
	}
	for k, v := range t.sessions {
		c.sessions[k] = copySession(v)
	}
	for k, v := range t.orgs {
		c.orgs[k] = copyOrganization(v)
	}
	for k, v := range t.memberships {
		c.memberships[k] = copyMembership(v)
	}
	return c
}

// Store is an in-process authorization store. Transactions are serialized
// against each other and against plain calls; a transaction works on a
// snapshot that replaces the live tables only on success.
type Store struct {
	view
	mu   sync.Mutex
	data *tables
}

// NewStore returns an empty store
func NewStore() *Store {
	s := &Store{data: newTables()}
	s.view = view{store: s}
	return s
}

// InTx runs fn against a snapshot. fn must use tx rather than the Store
// itself, which would block until the transaction ends.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(ctx, &view{store: s, tx: snapshot}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// view implements store.Tx either directly on the live tables, taking the
// store mutex per call, or on a transaction snapshot whose lock is already held.
type view struct {
	store *Store
	tx    *tables
}

// acquire returns the tables to work on and the matching release func
func (v *view) acquire() (*tables, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.store.mu.Lock()
	return v.store.data, v.store.mu.Unlock
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ store.Store = (*Store)(nil)
