package orgs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

func strPtr(s string) *string { return &s }

func TestCreateOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.Equal(t, "acme", f.org.Slug)
	assert.True(t, f.org.IsActive)
	owner := f.membership(t, f.owner.ID)
	assert.True(t, owner.IsActiveOwner())
	assert.NotNil(t, owner.AcceptedAt)
	assert.Len(t, f.audit.EventsOfType(audit.EventTypeOrgCreate), 1)

	t.Run("generated slugs are deduplicated", func(t *testing.T) {
		second, _, err := f.orgs.CreateOrganization(ctx, OrganizationCreate{Name: "ACME"}, f.owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "acme-1", second.Slug)

		third, _, err := f.orgs.CreateOrganization(ctx, OrganizationCreate{Name: "acme!"}, f.owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "acme-2", third.Slug)
	})

	t.Run("explicit slug", func(t *testing.T) {
		org, _, err := f.orgs.CreateOrganization(ctx, OrganizationCreate{Name: "Widgets", Slug: "widgets-inc"}, f.owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "widgets-inc", org.Slug)
	})

	t.Run("taken slug", func(t *testing.T) {
		_, _, err := f.orgs.CreateOrganization(ctx, OrganizationCreate{Name: "Other", Slug: "acme"}, f.owner.ID)
		requireKind(t, err, apperr.KindAlreadyExists)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, _, err := f.orgs.CreateOrganization(ctx, OrganizationCreate{Name: "Other", Slug: "Bad Slug"}, f.owner.ID)
		requireKind(t, err, apperr.KindValidation)

		_, _, err = f.orgs.CreateOrganization(ctx, OrganizationCreate{Name: "   "}, f.owner.ID)
		requireKind(t, err, apperr.KindValidation)
	})

	t.Run("listed for the owner", func(t *testing.T) {
		orgs, err := f.orgs.ListUserOrganizations(ctx, f.owner.ID)
		require.NoError(t, err)
		assert.Len(t, orgs, 4)
	})
}

func TestGetOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stranger := f.newUser(t, "stranger@example.com")

	org, err := f.orgs.GetOrganization(ctx, f.org.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)

	bySlug, err := f.orgs.GetOrganizationBySlug(ctx, "acme", f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, bySlug.ID)

	_, err = f.orgs.GetOrganization(ctx, f.org.ID, stranger.ID)
	requireKind(t, err, apperr.KindOrganizationAccessDenied)

	_, err = f.orgs.GetOrganizationBySlug(ctx, "acme", stranger.ID)
	requireKind(t, err, apperr.KindOrganizationAccessDenied)

	_, err = f.orgs.GetOrganizationBySlug(ctx, "missing", f.owner.ID)
	assert.True(t, store.IsNotFound(err))
}

func TestUpdateOrganization(t *testing.T) {
	ctx := context.Background()

	t.Run("owner updates", func(t *testing.T) {
		f := newFixture(t)
		org, err := f.orgs.UpdateOrganization(ctx, f.org.ID, OrganizationUpdate{
			Name:        strPtr("Acme Corp"),
			Slug:        strPtr("acme-corp"),
			Description: strPtr("Rockets"),
		}, f.owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", org.Name)
		assert.Equal(t, "acme-corp", org.Slug)

		events := f.audit.EventsOfType(audit.EventTypeOrgUpdate)
		require.Len(t, events, 1)
		assert.Equal(t, "acme", events[0].Changes.Before["slug"])
		assert.Equal(t, "acme-corp", events[0].Changes.After["slug"])
	})

	t.Run("unchanged fields write nothing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orgs.UpdateOrganization(ctx, f.org.ID, OrganizationUpdate{Name: strPtr("Acme")}, f.owner.ID)
		require.NoError(t, err)
		assert.Empty(t, f.audit.EventsOfType(audit.EventTypeOrgUpdate))
	})

	t.Run("editor refused", func(t *testing.T) {
		f := newFixture(t)
		editor := f.addMember(t, "editor@example.com", models.RoleEditor, true)

		_, err := f.orgs.UpdateOrganization(ctx, f.org.ID, OrganizationUpdate{Name: strPtr("Hijacked")}, editor.ID)
		requireKind(t, err, apperr.KindInsufficientPermissions)

		org, err := f.store.GetOrganization(ctx, f.org.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme", org.Name)
	})

	t.Run("slug collision", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.orgs.CreateOrganization(ctx, OrganizationCreate{Name: "Other"}, f.owner.ID)
		require.NoError(t, err)

		_, err = f.orgs.UpdateOrganization(ctx, f.org.ID, OrganizationUpdate{Slug: strPtr("other")}, f.owner.ID)
		requireKind(t, err, apperr.KindAlreadyExists)
	})
}

func TestDeleteOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	editor := f.addMember(t, "editor@example.com", models.RoleEditor, true)

	err := f.orgs.DeleteOrganization(ctx, f.org.ID, editor.ID)
	requireKind(t, err, apperr.KindInsufficientPermissions)

	require.NoError(t, f.orgs.DeleteOrganization(ctx, f.org.ID, f.owner.ID))

	org, err := f.store.GetOrganization(ctx, f.org.ID)
	require.NoError(t, err)
	assert.True(t, org.IsDeleted())
	assert.False(t, org.IsActive)
	assert.Len(t, f.audit.EventsOfType(audit.EventTypeOrgDelete), 1)

	_, err = f.orgs.GetOrganization(ctx, f.org.ID, f.owner.ID)
	requireKind(t, err, apperr.KindOrganizationAccessDenied)

	err = f.orgs.DeleteOrganization(ctx, f.org.ID, f.owner.ID)
	assert.True(t, store.IsNotFound(err))
}

func TestDeleteOrganization_EndsScopedSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	editor := f.addMember(t, "editor@example.com", models.RoleEditor, true)
	other, _, err := f.orgs.CreateOrganization(ctx, OrganizationCreate{Name: "Other"}, editor.ID)
	require.NoError(t, err)

	ownerScoped := f.orgSession(t, f.owner.ID, f.org.ID)
	editorScoped := f.orgSession(t, editor.ID, f.org.ID)
	elsewhere := f.orgSession(t, editor.ID, other.ID)

	require.NoError(t, f.orgs.DeleteOrganization(ctx, f.org.ID, f.owner.ID))

	for _, id := range []uuid.UUID{ownerScoped.ID, editorScoped.ID} {
		sess := f.session(t, id)
		assert.False(t, sess.IsActive)
		assert.Equal(t, models.EndReasonRevoked, sess.EndReason)
	}
	assert.True(t, f.session(t, elsewhere.ID).IsActive)
}
