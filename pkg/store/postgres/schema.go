package postgres

import (
	"context"
	"fmt"
)

// schema is applied by EnsureSchema. Production deployments manage migrations
// separately; this exists for first boot and integration tests.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email VARCHAR(320) NOT NULL,
	first_name VARCHAR(100) NOT NULL DEFAULT '',
	last_name VARCHAR(100) NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
	last_login_at TIMESTAMP WITH TIME ZONE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
	created_by UUID,
	updated_by UUID,
	deleted_at TIMESTAMP WITH TIME ZONE,
	deleted_by UUID
);

CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_key ON users (lower(email));

CREATE TABLE IF NOT EXISTS identity_links (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	provider_type VARCHAR(50) NOT NULL,
	provider_user_id VARCHAR(255) NOT NULL,
	provider_email VARCHAR(320) NOT NULL DEFAULT '',
	metadata JSONB,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
	created_by UUID,
	updated_by UUID,
	CONSTRAINT identity_links_provider_identity_key UNIQUE (provider_type, provider_user_id),
	CONSTRAINT identity_links_user_provider_key UNIQUE (user_id, provider_type)
);

CREATE TABLE IF NOT EXISTS organizations (
	id UUID PRIMARY KEY,
	name VARCHAR(100) NOT NULL,
	slug VARCHAR(50) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
	created_by UUID,
	updated_by UUID,
	deleted_at TIMESTAMP WITH TIME ZONE,
	deleted_by UUID
);

CREATE UNIQUE INDEX IF NOT EXISTS organizations_slug_key ON organizations (slug);

CREATE TABLE IF NOT EXISTS memberships (
	id UUID PRIMARY KEY,
	organization_id UUID NOT NULL REFERENCES organizations(id),
	user_id UUID NOT NULL REFERENCES users(id),
	role VARCHAR(20) NOT NULL,
	status VARCHAR(20) NOT NULL,
	invited_by UUID,
	invited_at TIMESTAMP WITH TIME ZONE,
	accepted_at TIMESTAMP WITH TIME ZONE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
	created_by UUID,
	updated_by UUID,
	deleted_at TIMESTAMP WITH TIME ZONE,
	deleted_by UUID
);

CREATE UNIQUE INDEX IF NOT EXISTS memberships_org_user_live_key
	ON memberships(organization_id, user_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);
CREATE INDEX IF NOT EXISTS idx_memberships_org_role_status ON memberships(organization_id, role, status);

CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	identity_link_id UUID NOT NULL REFERENCES identity_links(id),
	access_token TEXT NOT NULL UNIQUE,
	refresh_token TEXT NOT NULL DEFAULT '',
	token_type VARCHAR(20) NOT NULL DEFAULT 'bearer',
	expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
	organization_id UUID REFERENCES organizations(id),
	metadata JSONB,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	end_reason VARCHAR(20) NOT NULL DEFAULT '',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
	created_by UUID,
	updated_by UUID
);

CREATE INDEX IF NOT EXISTS idx_sessions_refresh_token ON sessions(refresh_token) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_organization_id ON sessions(organization_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at) WHERE is_active;
`

// EnsureSchema creates the tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
