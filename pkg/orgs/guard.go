package orgs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// AccessGuard decides whether a user may act within an organization
type AccessGuard struct {
	store store.Store
}

// NewAccessGuard creates a guard over st
func NewAccessGuard(st store.Store) *AccessGuard {
	return &AccessGuard{store: st}
}

// Check allows superusers and active members of a live organization.
// Everything else fails with OrganizationAccessDenied.
func (g *AccessGuard) Check(ctx context.Context, userID, orgID uuid.UUID) error {
	return g.CheckTx(ctx, g.store, userID, orgID)
}

// CheckTx is Check within an open transaction
func (g *AccessGuard) CheckTx(ctx context.Context, tx store.Tx, userID, orgID uuid.UUID) error {
	denied := apperr.OrganizationAccessDenied(orgID.String())

	user, err := tx.GetUser(ctx, userID)
	if store.IsNotFound(err) {
		return denied
	} else if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if !user.CanAuthenticate() {
		return denied
	}
	if user.IsSuperuser {
		return nil
	}

	org, err := tx.GetOrganization(ctx, orgID)
	if store.IsNotFound(err) {
		return denied
	} else if err != nil {
		return fmt.Errorf("failed to load organization: %w", err)
	}
	if org.IsDeleted() || !org.IsActive {
		return denied
	}

	m, err := tx.GetMembershipByOrgAndUser(ctx, orgID, userID)
	if store.IsNotFound(err) {
		return denied
	} else if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if !m.IsActive() {
		return denied
	}
	return nil
}

// checkMember runs the guard for read operations, reporting denial as NotOrganizationMember
func (g *AccessGuard) checkMember(ctx context.Context, tx store.Tx, userID, orgID uuid.UUID) error {
	err := g.CheckTx(ctx, tx, userID, orgID)
	if apperr.IsKind(err, apperr.KindOrganizationAccessDenied) {
		return apperr.NotOrganizationMember()
	}
	return err
}
