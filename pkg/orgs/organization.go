package orgs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// OrganizationService manages organizations. Reads pass the access guard;
// updates and deletion need an active owner.
type OrganizationService struct {
	store store.Store
	guard *AccessGuard
	opts  Options
}

// NewOrganizationService creates an organization service
func NewOrganizationService(st store.Store, guard *AccessGuard, opts Options) *OrganizationService {
	return &OrganizationService{store: st, guard: guard, opts: opts.withDefaults()}
}

// CreateOrganization creates an organization with creatorID as its active owner
func (s *OrganizationService) CreateOrganization(ctx context.Context, in OrganizationCreate, creatorID uuid.UUID) (*models.Organization, *models.Membership, error) {
	var (
		org   *models.Organization
		owner *models.Membership
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		org, owner, err = CreateWithOwner(ctx, tx, in, creatorID, s.opts.Now())
		return err
	})
	s.opts.Metrics.RecordMembershipOperation(OpCreateOrg, err)
	if err != nil {
		return nil, nil, err
	}

	s.audit(ctx, audit.NewOrganizationEvent(ctx, audit.EventTypeOrgCreate, creatorID, org, nil, "Organization created"))
	return org, owner, nil
}

// CreateWithOwner inserts an organization and its owner membership using tx.
// An explicit slug must be valid and free; an empty one is generated from the name.
func CreateWithOwner(ctx context.Context, tx store.Tx, in OrganizationCreate, ownerID uuid.UUID, now time.Time) (*models.Organization, *models.Membership, error) {
	name := strings.TrimSpace(in.Name)
	if err := ValidateName(name); err != nil {
		return nil, nil, err
	}

	slug := in.Slug
	if slug == "" {
		generated, err := GenerateSlug(ctx, tx, name)
		if err != nil {
			return nil, nil, err
		}
		slug = generated
	} else {
		if err := ValidateSlug(slug); err != nil {
			return nil, nil, err
		}
		exists, err := tx.SlugExists(ctx, slug)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check slug: %w", err)
		}
		if exists {
			return nil, nil, apperr.AlreadyExists(store.ResourceOrganization, "slug", slug)
		}
	}

	by := models.UUIDPtr(ownerID)
	org := &models.Organization{
		ID:          uuid.New(),
		Name:        name,
		Slug:        slug,
		Description: in.Description,
		IsActive:    true,
	}
	org.Stamp(by, now)
	if err := tx.CreateOrganization(ctx, org); err != nil {
		if store.IsAlreadyExists(err) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to create organization: %w", err)
	}

	owner := &models.Membership{
		ID:             uuid.New(),
		OrganizationID: org.ID,
		UserID:         ownerID,
		Role:           models.RoleOwner,
		Status:         models.StatusActive,
		AcceptedAt:     &now,
	}
	owner.Stamp(by, now)
	if err := tx.CreateMembership(ctx, owner); err != nil {
		return nil, nil, fmt.Errorf("failed to create owner membership: %w", err)
	}
	return org, owner, nil
}

// GetOrganization returns a live organization visible to currentUser
func (s *OrganizationService) GetOrganization(ctx context.Context, orgID, currentUser uuid.UUID) (*models.Organization, error) {
	if err := s.guard.Check(ctx, currentUser, orgID); err != nil {
		return nil, err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.IsDeleted() {
		return nil, store.NotFound(store.ResourceOrganization, orgID.String())
	}
	return org, nil
}

// GetOrganizationBySlug resolves a slug then applies the same guard as GetOrganization
func (s *OrganizationService) GetOrganizationBySlug(ctx context.Context, slug string, currentUser uuid.UUID) (*models.Organization, error) {
	org, err := s.store.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(ctx, currentUser, org.ID); err != nil {
		return nil, err
	}
	return org, nil
}

// ListUserOrganizations lists organizations where userID is an active member
func (s *OrganizationService) ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	orgs, err := s.store.ListUserOrganizations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

// UpdateOrganization applies in. Only active owners may update.
func (s *OrganizationService) UpdateOrganization(ctx context.Context, orgID uuid.UUID, in OrganizationUpdate, updatedBy uuid.UUID) (*models.Organization, error) {
	var (
		updated *models.Organization
		changes *audit.ChangeDetails
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := requireOwner(ctx, tx, orgID, updatedBy, "update"); err != nil {
			return err
		}
		org, err := liveOrganization(ctx, tx, orgID)
		if err != nil {
			return err
		}

		before := map[string]interface{}{}
		after := map[string]interface{}{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if err := ValidateName(name); err != nil {
				return err
			}
			if name != org.Name {
				before["name"], after["name"] = org.Name, name
				org.Name = name
			}
		}
		if in.Slug != nil && *in.Slug != org.Slug {
			if err := ValidateSlug(*in.Slug); err != nil {
				return err
			}
			exists, err := tx.SlugExists(ctx, *in.Slug)
			if err != nil {
				return fmt.Errorf("failed to check slug: %w", err)
			}
			if exists {
				return apperr.AlreadyExists(store.ResourceOrganization, "slug", *in.Slug)
			}
			before["slug"], after["slug"] = org.Slug, *in.Slug
			org.Slug = *in.Slug
		}
		if in.Description != nil && *in.Description != org.Description {
			before["description"], after["description"] = org.Description, *in.Description
			org.Description = *in.Description
		}

		updated = org
		if len(after) == 0 {
			return nil
		}
		org.Touch(models.UUIDPtr(updatedBy), s.opts.Now())
		if err := tx.UpdateOrganization(ctx, org); err != nil {
			return fmt.Errorf("failed to update organization: %w", err)
		}
		changes = &audit.ChangeDetails{Before: before, After: after}
		return nil
	})
	s.opts.Metrics.RecordMembershipOperation(OpUpdateOrg, err)
	if err != nil {
		return nil, err
	}

	if changes != nil {
		s.audit(ctx, audit.NewOrganizationEvent(ctx, audit.EventTypeOrgUpdate, updatedBy, updated, changes, "Organization updated"))
	}
	return updated, nil
}

// DeleteOrganization soft deletes an organization and ends every session
// scoped to it. Only active owners may delete.
func (s *OrganizationService) DeleteOrganization(ctx context.Context, orgID, deletedBy uuid.UUID) error {
	var deleted *models.Organization
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := requireOwner(ctx, tx, orgID, deletedBy, "delete"); err != nil {
			return err
		}
		org, err := liveOrganization(ctx, tx, orgID)
		if err != nil {
			return err
		}

		now := s.opts.Now()
		by := models.UUIDPtr(deletedBy)
		org.MarkDeleted(by, now)
		org.Touch(by, now)
		org.IsActive = false
		if err := tx.UpdateOrganization(ctx, org); err != nil {
			return fmt.Errorf("failed to delete organization: %w", err)
		}
		if _, err := tx.DeactivateOrganizationSessions(ctx, orgID, nil, models.EndReasonRevoked, now); err != nil {
			return fmt.Errorf("failed to end organization sessions: %w", err)
		}
		deleted = org
		return nil
	})
	s.opts.Metrics.RecordMembershipOperation(OpDeleteOrg, err)
	if err != nil {
		return err
	}

	s.audit(ctx, audit.NewOrganizationEvent(ctx, audit.EventTypeOrgDelete, deletedBy, deleted, nil, "Organization deleted"))
	return nil
}

func liveOrganization(ctx context.Context, tx store.Tx, orgID uuid.UUID) (*models.Organization, error) {
	org, err := tx.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.IsDeleted() {
		return nil, store.NotFound(store.ResourceOrganization, orgID.String())
	}
	return org, nil
}

func (s *OrganizationService) audit(ctx context.Context, event *audit.AuditEvent) {
	if err := s.opts.Audit.Log(ctx, event); err != nil {
		s.opts.Logger.WithContext(ctx).WithError(err).WithField("event_type", string(event.EventType)).Warn("Failed to write audit event")
	}
}
