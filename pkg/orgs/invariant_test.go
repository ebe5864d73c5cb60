package orgs

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// TestOwnerInvariant_RandomOperations drives random membership operations and
// checks after each one that an organization with active members keeps an
// active owner.
func TestOwnerInvariant_RandomOperations(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	roles := []models.Role{models.RoleOwner, models.RoleEditor, models.RoleViewer}

	f := newFixture(t)
	users := []uuid.UUID{f.owner.ID}
	for i := 0; i < 6; i++ {
		users = append(users, f.newUser(t, fmt.Sprintf("user%d@example.com", i)).ID)
	}
	pick := func() uuid.UUID { return users[rng.Intn(len(users))] }

	for i := 0; i < 500; i++ {
		target, actor := pick(), pick()
		switch rng.Intn(4) {
		case 0:
			_, _ = f.members.CreateMembership(ctx, MembershipCreate{OrganizationID: f.org.ID, UserID: target, Role: roles[rng.Intn(len(roles))]}, actor)
		case 1:
			_, _ = f.members.AcceptInvitation(ctx, f.org.ID, target)
		case 2:
			_, _ = f.members.UpdateUserRole(ctx, f.org.ID, target, roles[rng.Intn(len(roles))], actor)
		case 3:
			_ = f.members.RemoveUserFromOrganization(ctx, f.org.ID, target, actor)
		}

		active, err := f.store.CountMemberships(ctx, f.org.ID, true)
		require.NoError(t, err)
		if active > 0 {
			require.GreaterOrEqual(t, f.activeOwners(t), 1, "step %d left active members without an owner", i)
		}
	}

	status := models.StatusActive
	members, err := f.store.ListMemberships(ctx, f.org.ID, store.MembershipFilter{Status: &status})
	require.NoError(t, err)
	require.NotEmpty(t, members)
}
