package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

const sessionColumns = `id, user_id, identity_link_id, access_token, refresh_token, token_type, expires_at,
		       organization_id, metadata, is_active, end_reason, created_at, updated_at, created_by, updated_by`

func scanSession(row scanner) (*models.Session, error) {
	s := &models.Session{}
	var metadata []byte
	if err := row.Scan(
		&s.ID, &s.UserID, &s.IdentityLinkID, &s.AccessToken, &s.RefreshToken, &s.TokenType, &s.ExpiresAt,
		&s.OrganizationID, &metadata, &s.IsActive, &s.EndReason, &s.CreatedAt, &s.UpdatedAt, &s.CreatedBy, &s.UpdatedBy,
	); err != nil {
		return nil, err
	}
	m, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	s.Metadata = m
	return s, nil
}

// CreateSession inserts a session
func (q *queries) CreateSession(ctx context.Context, s *models.Session) error {
	metadata, err := marshalMetadata(s.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO sessions (id, user_id, identity_link_id, access_token, refresh_token, token_type, expires_at,
		                      organization_id, metadata, is_active, end_reason, created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = q.q.ExecContext(ctx, query,
		s.ID, s.UserID, s.IdentityLinkID, s.AccessToken, s.RefreshToken, s.TokenType, s.ExpiresAt,
		s.OrganizationID, metadata, s.IsActive, s.EndReason, s.CreatedAt, s.UpdatedAt, s.CreatedBy, s.UpdatedBy,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to create session: %w", err), store.ResourceSession)
	}
	return nil
}

func (q *queries) getSession(ctx context.Context, where string, arg interface{}, label string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` + where
	s, err := scanSession(q.q.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, store.NotFound(store.ResourceSession, "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by %s: %w", label, err)
	}
	return s, nil
}

// GetSession retrieves a session by ID
func (q *queries) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return q.getSession(ctx, `id = $1`, id, "id")
}

// GetSessionByAccessToken retrieves a session by access token regardless of state
func (q *queries) GetSessionByAccessToken(ctx context.Context, accessToken string) (*models.Session, error) {
	return q.getSession(ctx, `access_token = $1`, accessToken, "access token")
}

// GetActiveSessionByRefreshToken retrieves the active session holding a refresh token
func (q *queries) GetActiveSessionByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	if refreshToken == "" {
		return nil, store.NotFound(store.ResourceSession, "")
	}
	return q.getSession(ctx, `refresh_token = $1 AND is_active`, refreshToken, "refresh token")
}

// LockSession locks a session row for the rest of the transaction
func (q *queries) LockSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return q.getSession(ctx, `id = $1 FOR UPDATE`, id, "id")
}

// UpdateSession writes token, expiry and state columns
func (q *queries) UpdateSession(ctx context.Context, s *models.Session) error {
	metadata, err := marshalMetadata(s.Metadata)
	if err != nil {
		return err
	}
	query := `
		UPDATE sessions
		SET access_token = $1, refresh_token = $2, token_type = $3, expires_at = $4, organization_id = $5,
		    metadata = $6, is_active = $7, end_reason = $8, updated_at = $9, updated_by = $10
		WHERE id = $11
	`
	result, err := q.q.ExecContext(ctx, query,
		s.AccessToken, s.RefreshToken, s.TokenType, s.ExpiresAt, s.OrganizationID,
		metadata, s.IsActive, s.EndReason, s.UpdatedAt, s.UpdatedBy, s.ID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update session: %w", err), store.ResourceSession)
	}
	return checkAffected(result, store.ResourceSession, s.ID.String())
}

// DeactivateUserSessions ends every active session of a user
func (q *queries) DeactivateUserSessions(ctx context.Context, userID uuid.UUID, reason string, now time.Time) (int64, error) {
	query := `UPDATE sessions SET is_active = FALSE, end_reason = $1, updated_at = $2 WHERE user_id = $3 AND is_active`
	result, err := q.q.ExecContext(ctx, query, reason, now, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeactivateOrganizationSessions ends active sessions carrying orgID as their context
func (q *queries) DeactivateOrganizationSessions(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, reason string, now time.Time) (int64, error) {
	query := `UPDATE sessions SET is_active = FALSE, end_reason = $1, updated_at = $2
		WHERE organization_id = $3 AND is_active`
	args := []interface{}{reason, now, orgID}
	if userID != nil {
		query += ` AND user_id = $4`
		args = append(args, *userID)
	}
	result, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate organization sessions: %w", err)
	}
	return result.RowsAffected()
}

// ExpireSessions marks active sessions past expiry as expired
func (q *queries) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE sessions SET is_active = FALSE, end_reason = $1, updated_at = $2 WHERE is_active AND expires_at <= $2`
	result, err := q.q.ExecContext(ctx, query, models.EndReasonExpired, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	return result.RowsAffected()
}

// PurgeSessions deletes inactive sessions last touched before cutoff
func (q *queries) PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE NOT is_active AND updated_at < $1`
	result, err := q.q.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return result.RowsAffected()
}
