package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// CreateIdentityLink inserts a link. A provider identity maps to at most one
// link, and a user has at most one link per provider type.
func (v *view) CreateIdentityLink(ctx context.Context, l *models.IdentityLink) error {
	t, release := v.acquire()
	defer release()

	if _, ok := t.links[l.ID]; ok {
		return apperr.AlreadyExists(store.ResourceIdentityLink, "id", l.ID.String())
	}
	if _, ok := t.users[l.UserID]; !ok {
		return store.NotFound(store.ResourceUser, l.UserID.String())
	}
	for _, existing := range t.links {
		if existing.ProviderType == l.ProviderType && existing.ProviderUserID == l.ProviderUserID {
			return apperr.AlreadyExists(store.ResourceIdentityLink, "provider_user_id", l.ProviderUserID).
				WithDetail("constraint", "identity_links_provider_identity_key")
		}
		if existing.ProviderType == l.ProviderType && existing.UserID == l.UserID {
			return apperr.AlreadyExists(store.ResourceIdentityLink, "user_id", l.UserID.String()).
				WithDetail("constraint", "identity_links_user_provider_key")
		}
	}
	t.links[l.ID] = copyLink(l)
	return nil
}

// GetIdentityLink finds the link for a provider identity
func (v *view) GetIdentityLink(ctx context.Context, providerType models.ProviderType, providerUserID string) (*models.IdentityLink, error) {
	t, release := v.acquire()
	defer release()

	for _, l := range t.links {
		if l.ProviderType == providerType && l.ProviderUserID == providerUserID {
			return copyLink(l), nil
		}
	}
	return nil, store.NotFound(store.ResourceIdentityLink, providerUserID)
}

// GetIdentityLinkByID retrieves a link by ID
func (v *view) GetIdentityLinkByID(ctx context.Context, id uuid.UUID) (*models.IdentityLink, error) {
	t, release := v.acquire()
	defer release()

	l, ok := t.links[id]
	if !ok {
		return nil, store.NotFound(store.ResourceIdentityLink, id.String())
	}
	return copyLink(l), nil
}

// UpdateIdentityLink refreshes the provider email and metadata
func (v *view) UpdateIdentityLink(ctx context.Context, l *models.IdentityLink) error {
	t, release := v.acquire()
	defer release()

	existing, ok := t.links[l.ID]
	if !ok {
		return store.NotFound(store.ResourceIdentityLink, l.ID.String())
	}
	updated := copyLink(existing)
	updated.ProviderEmail = l.ProviderEmail
	updated.Metadata = copyMetadata(l.Metadata)
	updated.UpdatedAt = l.UpdatedAt
	updated.UpdatedBy = l.UpdatedBy
	t.links[l.ID] = updated
	return nil
}
