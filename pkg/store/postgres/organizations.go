package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

const organizationColumns = `o.id, o.name, o.slug, o.description, o.is_active,
		       o.created_at, o.updated_at, o.created_by, o.updated_by, o.deleted_at, o.deleted_by`

func scanOrganization(row scanner) (*models.Organization, error) {
	o := &models.Organization{}
	err := row.Scan(
		&o.ID, &o.Name, &o.Slug, &o.Description, &o.IsActive,
		&o.CreatedAt, &o.UpdatedAt, &o.CreatedBy, &o.UpdatedBy, &o.DeletedAt, &o.DeletedBy,
	)
	return o, err
}

// CreateOrganization inserts an organization. A taken slug yields KindAlreadyExists.
func (q *queries) CreateOrganization(ctx context.Context, o *models.Organization) error {
	query := `
		INSERT INTO organizations (id, name, slug, description, is_active, created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.q.ExecContext(ctx, query,
		o.ID, o.Name, o.Slug, o.Description, o.IsActive, o.CreatedAt, o.UpdatedAt, o.CreatedBy, o.UpdatedBy,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to create organization: %w", err), store.ResourceOrganization)
	}
	return nil
}

// GetOrganization retrieves an organization by ID, including soft-deleted ones
func (q *queries) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations o WHERE o.id = $1`
	o, err := scanOrganization(q.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, store.NotFound(store.ResourceOrganization, id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return o, nil
}

// GetOrganizationBySlug retrieves a non-deleted organization by slug
func (q *queries) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations o WHERE o.slug = $1 AND o.deleted_at IS NULL`
	o, err := scanOrganization(q.q.QueryRowContext(ctx, query, slug))
	if err == sql.ErrNoRows {
		return nil, store.NotFound(store.ResourceOrganization, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization by slug: %w", err)
	}
	return o, nil
}

// SlugExists reports whether any organization, deleted or not, holds slug
func (q *queries) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// UpdateOrganization writes the mutable organization columns
func (q *queries) UpdateOrganization(ctx context.Context, o *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $1, slug = $2, description = $3, is_active = $4, updated_at = $5, updated_by = $6,
		    deleted_at = $7, deleted_by = $8
		WHERE id = $9
	`
	result, err := q.q.ExecContext(ctx, query,
		o.Name, o.Slug, o.Description, o.IsActive, o.UpdatedAt, o.UpdatedBy, o.DeletedAt, o.DeletedBy, o.ID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update organization: %w", err), store.ResourceOrganization)
	}
	return checkAffected(result, store.ResourceOrganization, o.ID.String())
}

// ListUserOrganizations lists organizations where the user is an active member
func (q *queries) ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	query := `
		SELECT ` + organizationColumns + `
		FROM organizations o
		JOIN memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.status = $2 AND m.deleted_at IS NULL AND o.deleted_at IS NULL
		ORDER BY o.name ASC
	`
	rows, err := q.q.QueryContext(ctx, query, userID, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list user organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}
	return orgs, nil
}
