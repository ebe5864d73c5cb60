package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

const identityLinkColumns = `id, user_id, provider_type, provider_user_id, provider_email, metadata,
		       created_at, updated_at, created_by, updated_by`

func scanIdentityLink(row scanner) (*models.IdentityLink, error) {
	l := &models.IdentityLink{}
	var metadata []byte
	if err := row.Scan(
		&l.ID, &l.UserID, &l.ProviderType, &l.ProviderUserID, &l.ProviderEmail, &metadata,
		&l.CreatedAt, &l.UpdatedAt, &l.CreatedBy, &l.UpdatedBy,
	); err != nil {
		return nil, err
	}
	m, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	l.Metadata = m
	return l, nil
}

// CreateIdentityLink inserts a link. A duplicate provider identity yields KindAlreadyExists.
func (q *queries) CreateIdentityLink(ctx context.Context, l *models.IdentityLink) error {
	metadata, err := marshalMetadata(l.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO identity_links (id, user_id, provider_type, provider_user_id, provider_email, metadata,
		                            created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = q.q.ExecContext(ctx, query,
		l.ID, l.UserID, l.ProviderType, l.ProviderUserID, l.ProviderEmail, metadata,
		l.CreatedAt, l.UpdatedAt, l.CreatedBy, l.UpdatedBy,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to create identity link: %w", err), store.ResourceIdentityLink)
	}
	return nil
}

// GetIdentityLink finds the link for a provider identity
func (q *queries) GetIdentityLink(ctx context.Context, providerType models.ProviderType, providerUserID string) (*models.IdentityLink, error) {
	query := `SELECT ` + identityLinkColumns + ` FROM identity_links WHERE provider_type = $1 AND provider_user_id = $2`
	l, err := scanIdentityLink(q.q.QueryRowContext(ctx, query, providerType, providerUserID))
	if err == sql.ErrNoRows {
		return nil, store.NotFound(store.ResourceIdentityLink, providerUserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity link: %w", err)
	}
	return l, nil
}

// GetIdentityLinkByID retrieves a link by primary key
func (q *queries) GetIdentityLinkByID(ctx context.Context, id uuid.UUID) (*models.IdentityLink, error) {
	query := `SELECT ` + identityLinkColumns + ` FROM identity_links WHERE id = $1`
	l, err := scanIdentityLink(q.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, store.NotFound(store.ResourceIdentityLink, id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity link: %w", err)
	}
	return l, nil
}

// UpdateIdentityLink refreshes the provider email and metadata
func (q *queries) UpdateIdentityLink(ctx context.Context, l *models.IdentityLink) error {
	metadata, err := marshalMetadata(l.Metadata)
	if err != nil {
		return err
	}
	query := `
		UPDATE identity_links
		SET provider_email = $1, metadata = $2, updated_at = $3, updated_by = $4
		WHERE id = $5
	`
	result, err := q.q.ExecContext(ctx, query, l.ProviderEmail, metadata, l.UpdatedAt, l.UpdatedBy, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update identity link: %w", err)
	}
	return checkAffected(result, store.ResourceIdentityLink, l.ID.String())
}
