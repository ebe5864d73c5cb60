package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// CreateOrganization inserts an organization. Slugs are unique across
// deleted and live organizations.
func (v *view) CreateOrganization(ctx context.Context, o *models.Organization) error {
	t, release := v.acquire()
	defer release()

	if _, ok := t.orgs[o.ID]; ok {
		return apperr.AlreadyExists(store.ResourceOrganization, "id", o.ID.String())
	}
	for _, existing := range t.orgs {
		if existing.Slug == o.Slug {
			return apperr.AlreadyExists(store.ResourceOrganization, "slug", o.Slug)
		}
	}
	t.orgs[o.ID] = copyOrganization(o)
	return nil
}

// GetOrganization retrieves an organization by ID, including soft-deleted ones
func (v *view) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	t, release := v.acquire()
	defer release()

	o, ok := t.orgs[id]
	if !ok {
		return nil, store.NotFound(store.ResourceOrganization, id.String())
	}
	return copyOrganization(o), nil
}

// GetOrganizationBySlug retrieves a non-deleted organization by slug
func (v *view) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	t, release := v.acquire()
	defer release()

	for _, o := range t.orgs {
		if o.Slug == slug && !o.IsDeleted() {
			return copyOrganization(o), nil
		}
	}
	return nil, store.NotFound(store.ResourceOrganization, slug)
}

// SlugExists reports whether any organization holds slug
func (v *view) SlugExists(ctx context.Context, slug string) (bool, error) {
	t, release := v.acquire()
	defer release()

	for _, o := range t.orgs {
		if o.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// UpdateOrganization replaces a stored organization
func (v *view) UpdateOrganization(ctx context.Context, o *models.Organization) error {
	t, release := v.acquire()
	defer release()

	if _, ok := t.orgs[o.ID]; !ok {
		return store.NotFound(store.ResourceOrganization, o.ID.String())
	}
	for id, existing := range t.orgs {
		if id != o.ID && existing.Slug == o.Slug {
			return apperr.AlreadyExists(store.ResourceOrganization, "slug", o.Slug)
		}
	}
	t.orgs[o.ID] = copyOrganization(o)
	return nil
}

// ListUserOrganizations lists live organizations where the user is an active member, by name
func (v *view) ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	t, release := v.acquire()
	defer release()

	var orgs []*models.Organization
	for _, m := range t.memberships {
		if m.UserID != userID || m.IsDeleted() || m.Status != models.StatusActive {
			continue
		}
		o, ok := t.orgs[m.OrganizationID]
		if !ok || o.IsDeleted() {
			continue
		}
		orgs = append(orgs, copyOrganization(o))
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}
