package memory

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// CreateMembership inserts a membership. A user has at most one live
// membership per organization.
func (v *view) CreateMembership(ctx context.Context, m *models.Membership) error {
	t, release := v.acquire()
	defer release()

	if _, ok := t.memberships[m.ID]; ok {
		return apperr.AlreadyExists(store.ResourceMembership, "id", m.ID.String())
	}
	if _, ok := t.orgs[m.OrganizationID]; !ok {
		return store.NotFound(store.ResourceOrganization, m.OrganizationID.String())
	}
	if _, ok := t.users[m.UserID]; !ok {
		return store.NotFound(store.ResourceUser, m.UserID.String())
	}
	if live := findLive(t, m.OrganizationID, m.UserID); live != nil {
		return apperr.AlreadyExists(store.ResourceMembership, "user_id", m.UserID.String()).
			WithDetail("constraint", "memberships_org_user_live_key")
	}
	t.memberships[m.ID] = copyMembership(m)
	return nil
}

func findLive(t *tables, orgID, userID uuid.UUID) *models.Membership {
	for _, m := range t.memberships {
		if m.OrganizationID == orgID && m.UserID == userID && !m.IsDeleted() {
			return m
		}
	}
	return nil
}

// GetMembership retrieves a membership by ID, including soft-deleted ones
func (v *view) GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	t, release := v.acquire()
	defer release()

	m, ok := t.memberships[id]
	if !ok {
		return nil, store.NotFound(store.ResourceMembership, id.String())
	}
	return copyMembership(m), nil
}

// GetMembershipByOrgAndUser retrieves the non-deleted membership of a user
func (v *view) GetMembershipByOrgAndUser(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	t, release := v.acquire()
	defer release()

	m := findLive(t, orgID, userID)
	if m == nil {
		return nil, store.NotFound(store.ResourceMembership, "")
	}
	return copyMembership(m), nil
}

// LockMembership is GetMembershipByOrgAndUser; the transaction already excludes other writers
func (v *view) LockMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	return v.GetMembershipByOrgAndUser(ctx, orgID, userID)
}

// LockActiveOwners returns every active owner membership of orgID in ID order
func (v *view) LockActiveOwners(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	t, release := v.acquire()
	defer release()

	var owners []*models.Membership
	for _, m := range t.memberships {
		if m.OrganizationID == orgID && !m.IsDeleted() && m.IsActiveOwner() {
			owners = append(owners, copyMembership(m))
		}
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i].ID[:], owners[j].ID[:]) < 0
	})
	return owners, nil
}

// UpdateMembership replaces a stored membership. Restoring a deleted row
// must not create a second live membership.
func (v *view) UpdateMembership(ctx context.Context, m *models.Membership) error {
	t, release := v.acquire()
	defer release()

	if _, ok := t.memberships[m.ID]; !ok {
		return store.NotFound(store.ResourceMembership, m.ID.String())
	}
	if !m.IsDeleted() {
		if live := findLive(t, m.OrganizationID, m.UserID); live != nil && live.ID != m.ID {
			return apperr.AlreadyExists(store.ResourceMembership, "user_id", m.UserID.String())
		}
	}
	t.memberships[m.ID] = copyMembership(m)
	return nil
}

func matches(m *models.Membership, filter store.MembershipFilter) bool {
	if m.IsDeleted() {
		return false
	}
	if filter.Status != nil && m.Status != *filter.Status {
		return false
	}
	if filter.Role != nil && m.Role != *filter.Role {
		return false
	}
	return true
}

// page orders by creation time then ID and applies offset and limit
func page(ms []*models.Membership, filter store.MembershipFilter) []*models.Membership {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return bytes.Compare(ms[i].ID[:], ms[j].ID[:]) < 0
	})
	return window(ms, filter.Offset, filter.EffectiveLimit())
}

// window applies offset and limit; a negative offset counts as zero
func window[T any](rows []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// ListMemberships lists non-deleted memberships of an organization
func (v *view) ListMemberships(ctx context.Context, orgID uuid.UUID, filter store.MembershipFilter) ([]*models.Membership, error) {
	t, release := v.acquire()
	defer release()

	var out []*models.Membership
	for _, m := range t.memberships {
		if m.OrganizationID == orgID && matches(m, filter) {
			out = append(out, copyMembership(m))
		}
	}
	return page(out, filter), nil
}

// ListUserMemberships lists non-deleted memberships held by a user
func (v *view) ListUserMemberships(ctx context.Context, userID uuid.UUID, filter store.MembershipFilter) ([]*models.Membership, error) {
	t, release := v.acquire()
	defer release()

	var out []*models.Membership
	for _, m := range t.memberships {
		if m.UserID == userID && matches(m, filter) {
			out = append(out, copyMembership(m))
		}
	}
	return page(out, filter), nil
}

// CountMemberships counts non-deleted memberships, optionally only active ones
func (v *view) CountMemberships(ctx context.Context, orgID uuid.UUID, activeOnly bool) (int, error) {
	t, release := v.acquire()
	defer release()

	count := 0
	for _, m := range t.memberships {
		if m.OrganizationID != orgID || m.IsDeleted() {
			continue
		}
		if activeOnly && m.Status != models.StatusActive {
			continue
		}
		count++
	}
	return count, nil
}

// CountActiveOwners counts active owner memberships
func (v *view) CountActiveOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	t, release := v.acquire()
	defer release()

	count := 0
	for _, m := range t.memberships {
		if m.OrganizationID == orgID && !m.IsDeleted() && m.IsActiveOwner() {
			count++
		}
	}
	return count, nil
}
