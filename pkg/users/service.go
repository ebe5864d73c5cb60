package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// Service manages local user accounts
type Service struct {
	store  store.Store
	opts   Options
	logger *observability.Logger
}

// NewService creates a user service over st
func NewService(st store.Store, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		store:  st,
		opts:   opts,
		logger: opts.Logger.WithField("component", "users"),
	}
}

// GetUser returns a live user visible to actorID
func (s *Service) GetUser(ctx context.Context, userID, actorID uuid.UUID) (*models.User, error) {
	if _, err := authorize(ctx, s.store, actorID, userID); err != nil {
		return nil, err
	}
	return liveUser(ctx, s.store, userID)
}

// UpdateUser applies in to userID. Changing the email checks format and
// uniqueness; deactivating an account ends all of its sessions.
func (s *Service) UpdateUser(ctx context.Context, userID uuid.UUID, in UserUpdate, actorID uuid.UUID) (*models.User, error) {
	var (
		updated *models.User
		changes *audit.ChangeDetails
		ended   int64
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		actor, err := authorize(ctx, tx, actorID, userID)
		if err != nil {
			return err
		}
		user, err := liveUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		before := map[string]interface{}{}
		after := map[string]interface{}{}
		if in.Email != nil {
			email := strings.TrimSpace(*in.Email)
			if err := ValidateEmail(email); err != nil {
				return err
			}
			if !strings.EqualFold(email, user.Email) {
				if existing, err := tx.GetUserByEmail(ctx, email); err == nil && existing.ID != user.ID {
					return apperr.AlreadyExists(store.ResourceUser, "email", email)
				} else if err != nil && !store.IsNotFound(err) {
					return fmt.Errorf("failed to check email: %w", err)
				}
			}
			if email != user.Email {
				before["email"], after["email"] = user.Email, email
				user.Email = email
			}
		}
		if in.FirstName != nil {
			if name := strings.TrimSpace(*in.FirstName); name != user.FirstName {
				before["first_name"], after["first_name"] = user.FirstName, name
				user.FirstName = name
			}
		}
		if in.LastName != nil {
			if name := strings.TrimSpace(*in.LastName); name != user.LastName {
				before["last_name"], after["last_name"] = user.LastName, name
				user.LastName = name
			}
		}
		if in.IsActive != nil && *in.IsActive != user.IsActive {
			if !actor.IsSuperuser {
				return apperr.PermissionDenied("change activation of", "user")
			}
			before["is_active"], after["is_active"] = user.IsActive, *in.IsActive
			user.IsActive = *in.IsActive
		}

		updated = user
		if len(after) == 0 {
			return nil
		}
		now := s.opts.Now()
		user.Touch(models.UUIDPtr(actorID), now)
		if err := tx.UpdateUser(ctx, user); err != nil {
			if store.IsAlreadyExists(err) {
				return apperr.AlreadyExists(store.ResourceUser, "email", user.Email)
			}
			return fmt.Errorf("failed to update user: %w", err)
		}
		if !user.IsActive {
			if ended, err = tx.DeactivateUserSessions(ctx, user.ID, models.EndReasonRevoked, now); err != nil {
				return fmt.Errorf("failed to end sessions: %w", err)
			}
		}
		changes = &audit.ChangeDetails{Before: before, After: after}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changes != nil {
		event := audit.NewUserEvent(ctx, audit.EventTypeUserUpdate, actorID, updated, changes, "User updated")
		if ended > 0 {
			event = event.WithMetadata("sessions_ended", ended)
		}
		s.audit(ctx, event)
	}
	return updated, nil
}

// DeleteUser soft deletes userID. Its memberships are removed and its
// sessions ended in the same transaction. It fails with LastOwnerRemoval
// while the user is the only active owner of any organization.
func (s *Service) DeleteUser(ctx context.Context, userID, actorID uuid.UUID) error {
	var (
		deleted *models.User
		removed int
		ended   int64
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := authorize(ctx, tx, actorID, userID); err != nil {
			return err
		}
		user, err := liveUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		memberships, err := allMemberships(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := s.opts.Now()
		by := models.UUIDPtr(actorID)
		for _, m := range memberships {
			if m.IsActiveOwner() {
				owners, err := tx.LockActiveOwners(ctx, m.OrganizationID)
				if err != nil {
					return fmt.Errorf("failed to lock owners: %w", err)
				}
				if len(owners) <= 1 {
					return apperr.LastOwnerRemoval().WithDetail("organization_id", m.OrganizationID.String())
				}
			}
			m.MarkDeleted(by, now)
			m.Touch(by, now)
			if err := tx.UpdateMembership(ctx, m); err != nil {
				return fmt.Errorf("failed to remove membership: %w", err)
			}
		}

		if ended, err = tx.DeactivateUserSessions(ctx, userID, models.EndReasonRevoked, now); err != nil {
			return fmt.Errorf("failed to end sessions: %w", err)
		}

		user.IsActive = false
		user.MarkDeleted(by, now)
		user.Touch(by, now)
		if err := tx.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		deleted, removed = user, len(memberships)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id":             userID.String(),
		"memberships_removed": removed,
		"sessions_ended":      ended,
	}).Info("User deleted")
	s.audit(ctx, audit.NewUserEvent(ctx, audit.EventTypeUserDelete, actorID, deleted, nil, "User deleted").
		WithMetadata("memberships_removed", removed).
		WithMetadata("sessions_ended", ended))
	return nil
}

// ListUsers pages through live users. Superusers only.
func (s *Service) ListUsers(ctx context.Context, filter store.UserFilter, actorID uuid.UUID) ([]*models.User, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := requireSuperuser(ctx, s.store, actorID, "list"); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SearchUsers matches term against email and full name, case-insensitively.
// A non-positive limit means DefaultSearchLimit. Superusers only.
func (s *Service) SearchUsers(ctx context.Context, term string, limit int, actorID uuid.UUID) ([]*models.User, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, apperr.Validation("search", "search term is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return s.ListUsers(ctx, store.UserFilter{Search: term, Limit: limit}, actorID)
}

// CountUsers counts live users, optionally only active ones. Superusers only.
func (s *Service) CountUsers(ctx context.Context, activeOnly bool, actorID uuid.UUID) (int, error) {
	if err := requireSuperuser(ctx, s.store, actorID, "count"); err != nil {
		return 0, err
	}
	n, err := s.store.CountUsers(ctx, activeOnly)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *Service) audit(ctx context.Context, event *audit.AuditEvent) {
	if err := s.opts.Audit.Log(ctx, event); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("event_type", string(event.EventType)).Warn("Failed to write audit event")
	}
}

// authorize loads the actor and admits it for targetID when acting on itself
// or as a superuser
func authorize(ctx context.Context, tx store.Tx, actorID, targetID uuid.UUID) (*models.User, error) {
	actor, err := tx.GetUser(ctx, actorID)
	if store.IsNotFound(err) {
		return nil, apperr.PermissionDenied("manage", "user")
	} else if err != nil {
		return nil, fmt.Errorf("failed to load actor: %w", err)
	}
	if !actor.CanAuthenticate() {
		return nil, apperr.PermissionDenied("manage", "user")
	}
	if actor.ID != targetID && !actor.IsSuperuser {
		return nil, apperr.PermissionDenied("manage", "user")
	}
	return actor, nil
}

func requireSuperuser(ctx context.Context, tx store.Tx, actorID uuid.UUID, action string) error {
	actor, err := tx.GetUser(ctx, actorID)
	if store.IsNotFound(err) {
		return apperr.PermissionDenied(action, "users")
	} else if err != nil {
		return fmt.Errorf("failed to load actor: %w", err)
	}
	if !actor.CanAuthenticate() || !actor.IsSuperuser {
		return apperr.PermissionDenied(action, "users")
	}
	return nil
}

func liveUser(ctx context.Context, tx store.Tx, userID uuid.UUID) (*models.User, error) {
	user, err := tx.GetUser(ctx, userID)
	if store.IsNotFound(err) {
		return nil, apperr.UserNotFound(userID.String())
	} else if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.IsDeleted() {
		return nil, apperr.UserNotFound(userID.String())
	}
	return user, nil
}

// allMemberships reads every live membership of userID, one page at a time
func allMemberships(ctx context.Context, tx store.Tx, userID uuid.UUID) ([]*models.Membership, error) {
	var all []*models.Membership
	for offset := 0; ; offset += store.DefaultListLimit {
		page, err := tx.ListUserMemberships(ctx, userID, store.MembershipFilter{Offset: offset, Limit: store.DefaultListLimit})
		if err != nil {
			return nil, fmt.Errorf("failed to list memberships: %w", err)
		}
		all = append(all, page...)
		if len(page) < store.DefaultListLimit {
			return all, nil
		}
	}
}
