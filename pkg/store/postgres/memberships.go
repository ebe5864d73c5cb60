package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

const membershipColumns = `id, organization_id, user_id, role, status, invited_by, invited_at, accepted_at,
		       created_at, updated_at, created_by, updated_by, deleted_at, deleted_by`

func scanMembership(row scanner) (*models.Membership, error) {
	m := &models.Membership{}
	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Status, &m.InvitedBy, &m.InvitedAt, &m.AcceptedAt,
		&m.CreatedAt, &m.UpdatedAt, &m.CreatedBy, &m.UpdatedBy, &m.DeletedAt, &m.DeletedBy,
	)
	return m, err
}

func scanMemberships(rows *sql.Rows) ([]*models.Membership, error) {
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return memberships, nil
}

// CreateMembership inserts a membership. A live duplicate yields KindAlreadyExists.
func (q *queries) CreateMembership(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO memberships (id, organization_id, user_id, role, status, invited_by, invited_at, accepted_at,
		                         created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := q.q.ExecContext(ctx, query,
		m.ID, m.OrganizationID, m.UserID, m.Role, m.Status, m.InvitedBy, m.InvitedAt, m.AcceptedAt,
		m.CreatedAt, m.UpdatedAt, m.CreatedBy, m.UpdatedBy,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to create membership: %w", err), store.ResourceMembership)
	}
	return nil
}

// GetMembership retrieves a membership by ID, including soft-deleted ones
func (q *queries) GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1`
	m, err := scanMembership(q.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, store.NotFound(store.ResourceMembership, id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

func (q *queries) getLiveMembership(ctx context.Context, orgID, userID uuid.UUID, lock bool) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM memberships
		WHERE organization_id = $1 AND user_id = $2 AND deleted_at IS NULL`
	if lock {
		query += ` FOR UPDATE`
	}
	m, err := scanMembership(q.q.QueryRowContext(ctx, query, orgID, userID))
	if err == sql.ErrNoRows {
		return nil, store.NotFound(store.ResourceMembership, "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// GetMembershipByOrgAndUser retrieves the non-deleted membership of a user
func (q *queries) GetMembershipByOrgAndUser(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	return q.getLiveMembership(ctx, orgID, userID, false)
}

// LockMembership is GetMembershipByOrgAndUser with a row lock
func (q *queries) LockMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	return q.getLiveMembership(ctx, orgID, userID, true)
}

// LockActiveOwners locks every active owner row of an organization, in ID
// order so concurrent lockers cannot deadlock
func (q *queries) LockActiveOwners(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM memberships
		WHERE organization_id = $1 AND role = $2 AND status = $3 AND deleted_at IS NULL
		ORDER BY id
		FOR UPDATE`
	rows, err := q.q.QueryContext(ctx, query, orgID, models.RoleOwner, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to lock owners: %w", err)
	}
	return scanMemberships(rows)
}

// UpdateMembership writes role, status and lifecycle columns
func (q *queries) UpdateMembership(ctx context.Context, m *models.Membership) error {
	query := `
		UPDATE memberships
		SET role = $1, status = $2, accepted_at = $3, updated_at = $4, updated_by = $5,
		    deleted_at = $6, deleted_by = $7
		WHERE id = $8
	`
	result, err := q.q.ExecContext(ctx, query,
		m.Role, m.Status, m.AcceptedAt, m.UpdatedAt, m.UpdatedBy, m.DeletedAt, m.DeletedBy, m.ID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update membership: %w", err), store.ResourceMembership)
	}
	return checkAffected(result, store.ResourceMembership, m.ID.String())
}

// filterClause appends status and role conditions and pagination to a query
// whose first placeholder is already bound
func filterClause(filter store.MembershipFilter, args []interface{}) (string, []interface{}) {
	var sb strings.Builder
	if filter.Status != nil {
		args = append(args, *filter.Status)
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if filter.Role != nil {
		args = append(args, *filter.Role)
		fmt.Fprintf(&sb, " AND role = $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at ASC, id ASC")
	args = append(args, filter.EffectiveLimit())
	fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	return sb.String(), args
}

// ListMemberships lists non-deleted memberships of an organization
func (q *queries) ListMemberships(ctx context.Context, orgID uuid.UUID, filter store.MembershipFilter) ([]*models.Membership, error) {
	clause, args := filterClause(filter, []interface{}{orgID})
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE organization_id = $1 AND deleted_at IS NULL` + clause
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return scanMemberships(rows)
}

// ListUserMemberships lists non-deleted memberships held by a user
func (q *queries) ListUserMemberships(ctx context.Context, userID uuid.UUID, filter store.MembershipFilter) ([]*models.Membership, error) {
	clause, args := filterClause(filter, []interface{}{userID})
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE user_id = $1 AND deleted_at IS NULL` + clause
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list user memberships: %w", err)
	}
	return scanMemberships(rows)
}

// CountMemberships counts non-deleted memberships, optionally only active ones
func (q *queries) CountMemberships(ctx context.Context, orgID uuid.UUID, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM memberships WHERE organization_id = $1 AND deleted_at IS NULL`
	args := []interface{}{orgID}
	if activeOnly {
		query += ` AND status = $2`
		args = append(args, models.StatusActive)
	}
	var count int
	if err := q.q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count memberships: %w", err)
	}
	return count, nil
}

// CountActiveOwners counts active owner memberships without locking
func (q *queries) CountActiveOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM memberships
		WHERE organization_id = $1 AND role = $2 AND status = $3 AND deleted_at IS NULL`
	var count int
	if err := q.q.QueryRowContext(ctx, query, orgID, models.RoleOwner, models.StatusActive).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}
