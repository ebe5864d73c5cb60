package orgs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// MembershipService manages invitations, roles and removal while keeping at
// least one active owner in every organization that has active members.
type MembershipService struct {
	store store.Store
	guard *AccessGuard
	opts  Options
}

// NewMembershipService creates a membership service
func NewMembershipService(st store.Store, guard *AccessGuard, opts Options) *MembershipService {
	return &MembershipService{store: st, guard: guard, opts: opts.withDefaults()}
}

// CreateMembership invites a user. The inviter must be an active owner.
func (s *MembershipService) CreateMembership(ctx context.Context, in MembershipCreate, invitedBy uuid.UUID) (*models.Membership, error) {
	role := in.Role
	if role == "" {
		role = models.RoleViewer
	}
	if !role.Valid() {
		return nil, apperr.Validation("role", fmt.Sprintf("unknown role %q", in.Role))
	}

	var created *models.Membership
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.LockMembership(ctx, in.OrganizationID, in.UserID)
		switch {
		case err == nil && existing.IsActive():
			return apperr.UserAlreadyMember()
		case err == nil:
			return apperr.UserAlreadyInvited()
		case !store.IsNotFound(err):
			return fmt.Errorf("failed to load membership: %w", err)
		}

		if err := requireOwner(ctx, tx, in.OrganizationID, invitedBy, "invite users to"); err != nil {
			return err
		}

		if _, err := tx.GetUser(ctx, in.UserID); store.IsNotFound(err) {
			return apperr.UserNotFound(in.UserID.String())
		} else if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}

		now := s.opts.Now()
		m := &models.Membership{
			ID:             uuid.New(),
			OrganizationID: in.OrganizationID,
			UserID:         in.UserID,
			Role:           role,
			Status:         models.StatusInvited,
			InvitedBy:      models.UUIDPtr(invitedBy),
			InvitedAt:      &now,
		}
		m.Stamp(models.UUIDPtr(invitedBy), now)

		if err := tx.CreateMembership(ctx, m); err != nil {
			if store.IsAlreadyExists(err) {
				return apperr.UserAlreadyInvited()
			}
			return fmt.Errorf("failed to create membership: %w", err)
		}
		created = m
		return nil
	})
	s.record(ctx, OpInvite, err)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, audit.NewMembershipEvent(ctx, audit.EventTypeMembershipInvite, invitedBy, created, nil, "User invited"))
	return created, nil
}

// AcceptInvitation moves an invited membership to active
func (s *MembershipService) AcceptInvitation(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	var accepted *models.Membership
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.LockMembership(ctx, orgID, userID)
		if store.IsNotFound(err) {
			return apperr.InvitationNotFound()
		} else if err != nil {
			return fmt.Errorf("failed to load membership: %w", err)
		}
		if m.IsActive() {
			return apperr.InvitationAlreadyAccepted()
		}

		now := s.opts.Now()
		m.Status = models.StatusActive
		m.AcceptedAt = &now
		m.Touch(models.UUIDPtr(userID), now)
		if err := tx.UpdateMembership(ctx, m); err != nil {
			return fmt.Errorf("failed to accept invitation: %w", err)
		}
		accepted = m
		return nil
	})
	s.record(ctx, OpAccept, err)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, audit.NewMembershipEvent(ctx, audit.EventTypeMembershipAccept, userID, accepted, nil, "Invitation accepted"))
	return accepted, nil
}

// UpdateUserRole changes a member's role. Demoting the last active owner fails
// with LastOwnerRemoval; the owner rows stay locked until the write commits.
func (s *MembershipService) UpdateUserRole(ctx context.Context, orgID, userID uuid.UUID, newRole models.Role, updatedBy uuid.UUID) (*models.Membership, error) {
	if !newRole.Valid() {
		return nil, apperr.Validation("role", fmt.Sprintf("unknown role %q", newRole))
	}

	var (
		updated *models.Membership
		oldRole models.Role
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		owners, err := tx.LockActiveOwners(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to lock owners: %w", err)
		}

		target, err := tx.LockMembership(ctx, orgID, userID)
		if store.IsNotFound(err) {
			return apperr.MembershipNotFound()
		} else if err != nil {
			return fmt.Errorf("failed to load membership: %w", err)
		}

		if !containsUser(owners, updatedBy) {
			return apperr.InsufficientPermissions("update user roles")
		}

		if target.IsActiveOwner() && newRole != models.RoleOwner && len(owners) <= 1 {
			return apperr.LastOwnerRemoval()
		}

		oldRole = target.Role
		if oldRole == newRole {
			updated = target
			return nil
		}

		target.Role = newRole
		target.Touch(models.UUIDPtr(updatedBy), s.opts.Now())
		if err := tx.UpdateMembership(ctx, target); err != nil {
			return fmt.Errorf("failed to update membership: %w", err)
		}
		updated = target
		return nil
	})
	s.record(ctx, OpUpdateRole, err)
	if err != nil {
		return nil, err
	}

	if oldRole != newRole {
		changes := &audit.ChangeDetails{
			Before: map[string]interface{}{"role": string(oldRole)},
			After:  map[string]interface{}{"role": string(newRole)},
		}
		s.audit(ctx, audit.NewMembershipEvent(ctx, audit.EventTypeMembershipRoleChange, updatedBy, updated, changes, "Role changed"))
	}
	return updated, nil
}

// RemoveUserFromOrganization soft deletes a membership. Members may always
// remove themselves; removing others needs an active owner. The last active
// owner can never be removed. Sessions scoped to the organization end with it.
func (s *MembershipService) RemoveUserFromOrganization(ctx context.Context, orgID, userID, removedBy uuid.UUID) error {
	var removed *models.Membership
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		owners, err := tx.LockActiveOwners(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to lock owners: %w", err)
		}

		target, err := tx.LockMembership(ctx, orgID, userID)
		if store.IsNotFound(err) {
			return apperr.MembershipNotFound()
		} else if err != nil {
			return fmt.Errorf("failed to load membership: %w", err)
		}

		if userID != removedBy && !containsUser(owners, removedBy) {
			return apperr.InsufficientPermissions("remove users from")
		}

		if target.IsActiveOwner() && len(owners) <= 1 {
			return apperr.LastOwnerRemoval()
		}

		now := s.opts.Now()
		target.MarkDeleted(models.UUIDPtr(removedBy), now)
		target.Touch(models.UUIDPtr(removedBy), now)
		if err := tx.UpdateMembership(ctx, target); err != nil {
			return fmt.Errorf("failed to remove membership: %w", err)
		}
		if _, err := tx.DeactivateOrganizationSessions(ctx, orgID, &userID, models.EndReasonRevoked, now); err != nil {
			return fmt.Errorf("failed to end organization sessions: %w", err)
		}
		removed = target
		return nil
	})
	s.record(ctx, OpRemove, err)
	if err != nil {
		return err
	}

	s.audit(ctx, audit.NewMembershipEvent(ctx, audit.EventTypeMembershipRemove, removedBy, removed, nil, "User removed"))
	return nil
}

// CheckUserPermission reports whether userID holds an active membership
// meeting check. A missing membership is not an error.
func (s *MembershipService) CheckUserPermission(ctx context.Context, orgID, userID uuid.UUID, check PermissionCheck) (bool, error) {
	m, err := s.store.GetMembershipByOrgAndUser(ctx, orgID, userID)
	if store.IsNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to load membership: %w", err)
	}
	if !m.IsActive() {
		return false, nil
	}

	switch {
	case check.RequireOwner:
		return m.IsOwner(), nil
	case check.RequireWrite:
		return m.CanWrite(), nil
	default:
		return true, nil
	}
}

// ListMemberships lists an organization's memberships. The caller must pass
// the access guard, else NotOrganizationMember.
func (s *MembershipService) ListMemberships(ctx context.Context, orgID, currentUser uuid.UUID, filter store.MembershipFilter) ([]*models.Membership, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := s.guard.checkMember(ctx, s.store, currentUser, orgID); err != nil {
		return nil, err
	}
	memberships, err := s.store.ListMemberships(ctx, orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return memberships, nil
}

// CountMemberships counts an organization's memberships under the same guard as ListMemberships
func (s *MembershipService) CountMemberships(ctx context.Context, orgID, currentUser uuid.UUID, activeOnly bool) (int, error) {
	if err := s.guard.checkMember(ctx, s.store, currentUser, orgID); err != nil {
		return 0, err
	}
	n, err := s.store.CountMemberships(ctx, orgID, activeOnly)
	if err != nil {
		return 0, fmt.Errorf("failed to count memberships: %w", err)
	}
	return n, nil
}

// GetMembership returns a live membership visible to currentUser. The member
// may always read their own row, including a pending invitation.
func (s *MembershipService) GetMembership(ctx context.Context, membershipID, currentUser uuid.UUID) (*models.Membership, error) {
	m, err := s.store.GetMembership(ctx, membershipID)
	if store.IsNotFound(err) {
		return nil, apperr.MembershipNotFound()
	} else if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if m.IsDeleted() {
		return nil, apperr.MembershipNotFound()
	}
	if m.UserID == currentUser {
		return m, nil
	}
	if err := s.guard.checkMember(ctx, s.store, currentUser, m.OrganizationID); err != nil {
		return nil, err
	}
	return m, nil
}

// ListUserMemberships lists the caller's own memberships across organizations
func (s *MembershipService) ListUserMemberships(ctx context.Context, userID uuid.UUID, filter store.MembershipFilter) ([]*models.Membership, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	memberships, err := s.store.ListUserMemberships(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list user memberships: %w", err)
	}
	return memberships, nil
}

// ListPendingInvitations lists the user's invited memberships
func (s *MembershipService) ListPendingInvitations(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error) {
	invited := models.StatusInvited
	return s.ListUserMemberships(ctx, userID, store.MembershipFilter{Status: &invited})
}

// requireOwner fails with InsufficientPermissions unless userID is an active owner of orgID
func requireOwner(ctx context.Context, tx store.Tx, orgID, userID uuid.UUID, action string) error {
	m, err := tx.GetMembershipByOrgAndUser(ctx, orgID, userID)
	if store.IsNotFound(err) {
		return apperr.InsufficientPermissions(action)
	} else if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if !m.IsActive() || !m.CanManageUsers() {
		return apperr.InsufficientPermissions(action)
	}
	return nil
}

func containsUser(memberships []*models.Membership, userID uuid.UUID) bool {
	for _, m := range memberships {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (s *MembershipService) record(ctx context.Context, op string, err error) {
	s.opts.Metrics.RecordMembershipOperation(op, err)
	if err != nil && apperr.Family(apperr.KindOf(err)) != apperr.FamilyMembership {
		s.opts.Logger.WithContext(ctx).WithError(err).WithField("operation", op).Warn("Membership operation failed")
	}
}

func (s *MembershipService) audit(ctx context.Context, event *audit.AuditEvent) {
	if err := s.opts.Audit.Log(ctx, event); err != nil {
		s.opts.Logger.WithContext(ctx).WithError(err).WithField("event_type", string(event.EventType)).Warn("Failed to write audit event")
	}
}
