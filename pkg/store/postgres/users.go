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

const userColumns = `id, email, first_name, last_name, is_active, is_superuser, last_login_at,
		       created_at, updated_at, created_by, updated_by, deleted_at, deleted_by`

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.IsActive, &u.IsSuperuser, &u.LastLoginAt,
		&u.CreatedAt, &u.UpdatedAt, &u.CreatedBy, &u.UpdatedBy, &u.DeletedAt, &u.DeletedBy,
	)
	return u, err
}

// CreateUser inserts a user
func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, email, first_name, last_name, is_active, is_superuser, last_login_at,
		                   created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := q.q.ExecContext(ctx, query,
		u.ID, u.Email, u.FirstName, u.LastName, u.IsActive, u.IsSuperuser, u.LastLoginAt,
		u.CreatedAt, u.UpdatedAt, u.CreatedBy, u.UpdatedBy,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to create user: %w", err), store.ResourceUser)
	}
	return nil
}

// GetUser retrieves a user by ID, including soft-deleted users
func (q *queries) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(q.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, store.NotFound(store.ResourceUser, id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a non-deleted user by email
func (q *queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND deleted_at IS NULL`
	u, err := scanUser(q.q.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, store.NotFound(store.ResourceUser, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// UpdateUser writes every mutable user column
func (q *queries) UpdateUser(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users
		SET email = $1, first_name = $2, last_name = $3, is_active = $4, is_superuser = $5,
		    last_login_at = $6, updated_at = $7, updated_by = $8, deleted_at = $9, deleted_by = $10
		WHERE id = $11
	`
	result, err := q.q.ExecContext(ctx, query,
		u.Email, u.FirstName, u.LastName, u.IsActive, u.IsSuperuser,
		u.LastLoginAt, u.UpdatedAt, u.UpdatedBy, u.DeletedAt, u.DeletedBy, u.ID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update user: %w", err), store.ResourceUser)
	}
	return checkAffected(result, store.ResourceUser, u.ID.String())
}

// likePattern builds a substring pattern with LIKE wildcards in term escaped
func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return "%" + escaped + "%"
}

func userFilterClause(filter store.UserFilter) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}
	sb.WriteString(` WHERE deleted_at IS NULL`)
	if filter.ActiveOnly {
		sb.WriteString(` AND is_active`)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, likePattern(term))
		fmt.Fprintf(&sb, ` AND (email ILIKE $%[1]d OR (first_name || ' ' || last_name) ILIKE $%[1]d)`, len(args))
	}
	return sb.String(), args
}

// ListUsers lists non-deleted users ordered by creation time
func (q *queries) ListUsers(ctx context.Context, filter store.UserFilter) ([]*models.User, error) {
	clause, args := userFilterClause(filter)
	args = append(args, filter.EffectiveLimit(), filter.Offset)
	query := `SELECT ` + userColumns + ` FROM users` + clause +
		fmt.Sprintf(` ORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// CountUsers counts non-deleted users, optionally only active ones
func (q *queries) CountUsers(ctx context.Context, activeOnly bool) (int, error) {
	clause, args := userFilterClause(store.UserFilter{ActiveOnly: activeOnly})
	var count int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
