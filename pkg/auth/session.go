package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// ValidateSession returns the active session holding accessToken. The store
// is authoritative: a cached entry only locates the row, which is re-read on
// every call. A session scoped to an organization must still pass the access
// guard, else it is ended as revoked. The token is revalidated with the
// provider on every call; if the provider rejects it the session is
// deactivated as invalid. Any failure is SessionNotFound.
func (s *Service) ValidateSession(ctx context.Context, accessToken string) (*models.Session, error) {
	session, err := s.validateSession(ctx, accessToken)
	s.opts.Metrics.RecordSessionValidation(err)
	return session, err
}

func (s *Service) validateSession(ctx context.Context, accessToken string) (*models.Session, error) {
	if accessToken == "" {
		return nil, apperr.SessionNotFound()
	}
	now := s.opts.Now()

	cached := s.cached(ctx, accessToken, now)
	session, err := s.loadSession(ctx, accessToken, cached)
	if store.IsNotFound(err) {
		s.forget(ctx, accessToken)
		return nil, apperr.SessionNotFound()
	} else if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	switch session.State(now) {
	case models.SessionActive:
	case models.SessionExpired:
		s.forget(ctx, accessToken)
		if session.IsActive {
			if _, err := s.endSession(ctx, session.ID, models.EndReasonExpired); err != nil {
				s.logger.WithContext(ctx).WithError(err).WithField("session_id", session.ID.String()).Warn("Failed to mark session expired")
			}
		}
		return nil, apperr.SessionNotFound()
	default:
		s.forget(ctx, accessToken)
		return nil, apperr.SessionNotFound()
	}

	if session.OrganizationID != nil {
		err := s.guard.Check(ctx, session.UserID, *session.OrganizationID)
		if apperr.IsKind(err, apperr.KindOrganizationAccessDenied) {
			s.revokeScope(ctx, session, err)
			return nil, apperr.SessionNotFound()
		} else if err != nil {
			return nil, fmt.Errorf("failed to check organization access: %w", err)
		}
	}

	pctx, cancel := s.providerContext(ctx)
	_, err = s.provider.ValidateToken(pctx, accessToken)
	cancel()
	if err != nil {
		if !rejectedByProvider(err) {
			s.logger.WithContext(ctx).WithError(err).WithField("session_id", session.ID.String()).Warn("Provider token validation unavailable")
			return nil, apperr.Wrap(apperr.KindSessionNotFound, err, apperr.SessionNotFound().Message)
		}
		s.invalidate(ctx, session, err)
		return nil, apperr.SessionNotFound()
	}

	if cached == nil || !cached.UpdatedAt.Equal(session.UpdatedAt) {
		s.remember(ctx, session)
	}
	return session, nil
}

// loadSession reads the stored row for accessToken. A cached entry is looked
// up by ID and discarded when the row no longer holds accessToken.
func (s *Service) loadSession(ctx context.Context, accessToken string, cached *models.Session) (*models.Session, error) {
	if cached == nil {
		return s.store.GetSessionByAccessToken(ctx, accessToken)
	}
	session, err := s.store.GetSession(ctx, cached.ID)
	if err != nil {
		return nil, err
	}
	if session.AccessToken != accessToken {
		return nil, store.NotFound(store.ResourceSession, cached.ID.String())
	}
	return session, nil
}

// revokeScope ends a session whose organization context no longer passes the guard
func (s *Service) revokeScope(ctx context.Context, session *models.Session, cause error) {
	s.forget(ctx, session.AccessToken)

	ended, err := s.endSession(ctx, session.ID, models.EndReasonRevoked)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("session_id", session.ID.String()).Error("Failed to revoke session")
		return
	}
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"session_id":      session.ID.String(),
		"user_id":         session.UserID.String(),
		"organization_id": session.OrganizationID.String(),
	}).Info("Session revoked after organization access was lost")
	s.audit(ctx, audit.NewSessionEvent(ctx, audit.EventTypeAuthSessionsRevoked, ended, audit.EventStatusSuccess, "Organization access lost").WithError(cause))
}

// invalidate ends a session the provider no longer accepts
func (s *Service) invalidate(ctx context.Context, session *models.Session, cause error) {
	s.forget(ctx, session.AccessToken)

	ended, err := s.endSession(ctx, session.ID, models.EndReasonInvalid)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("session_id", session.ID.String()).Error("Failed to invalidate session")
		return
	}
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"session_id": session.ID.String(),
		"user_id":    session.UserID.String(),
		"token":      fingerprint(session.AccessToken),
		"kind":       string(apperr.KindOf(cause)),
	}).Info("Session invalidated by provider")
	s.audit(ctx, audit.NewSessionEvent(ctx, audit.EventTypeAuthSessionInvalidated, ended, audit.EventStatusSuccess, "Provider rejected session token").WithError(cause))
}

// RefreshSession exchanges refreshToken with the provider and rotates the
// tokens of the active session that holds it. The session keeps its user,
// identity link and organization context.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (*identity.AuthResult, *models.Session, error) {
	result, session, err := s.refreshSession(ctx, refreshToken)
	s.opts.Metrics.RecordSessionRefresh(err)
	if err != nil {
		return nil, nil, err
	}
	s.audit(ctx, audit.NewSessionEvent(ctx, audit.EventTypeAuthTokenRefresh, session, audit.EventStatusSuccess, "Session refreshed"))
	return result, session, nil
}

func (s *Service) refreshSession(ctx context.Context, refreshToken string) (*identity.AuthResult, *models.Session, error) {
	if refreshToken == "" {
		return nil, nil, apperr.TokenInvalid()
	}

	pctx, cancel := s.providerContext(ctx)
	tokens, err := s.provider.RefreshToken(pctx, refreshToken)
	cancel()
	if err != nil {
		return nil, nil, providerFailure(ctx, err, apperr.KindTokenInvalid)
	}
	if tokens == nil || tokens.AccessToken == "" {
		return nil, nil, apperr.TokenInvalid()
	}

	var (
		session   *models.Session
		link      *models.IdentityLink
		oldAccess string
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.GetActiveSessionByRefreshToken(ctx, refreshToken)
		if store.IsNotFound(err) {
			return apperr.SessionNotFound()
		} else if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		session, err = tx.LockSession(ctx, found.ID)
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}
		if !session.IsActive || session.RefreshToken != refreshToken {
			return apperr.SessionNotFound()
		}

		now := s.opts.Now()
		oldAccess = session.AccessToken
		session.AccessToken = tokens.AccessToken
		if tokens.RefreshToken != "" {
			session.RefreshToken = tokens.RefreshToken
		}
		if tokens.TokenType != "" {
			session.TokenType = tokens.TokenType
		}
		session.ExpiresAt = tokens.Expiry(now, s.opts.DefaultSessionTTL)
		session.Touch(models.UUIDPtr(session.UserID), now)
		if err := tx.UpdateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		link, err = tx.GetIdentityLinkByID(ctx, session.IdentityLinkID)
		if err != nil {
			return fmt.Errorf("failed to load identity link: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.forget(ctx, oldAccess)
	s.remember(ctx, session)

	return &identity.AuthResult{
		User:            providerUserFromLink(link),
		Tokens:          *tokens,
		SessionMetadata: session.Metadata,
	}, session, nil
}

// Logout ends the session with the provider and locally. The local session is
// revoked even when the provider call fails; that failure is still returned.
func (s *Service) Logout(ctx context.Context, session *models.Session) error {
	if session == nil {
		return apperr.SessionNotFound()
	}

	var providerErr error
	link, err := s.store.GetIdentityLinkByID(ctx, session.IdentityLinkID)
	if err != nil {
		providerErr = fmt.Errorf("failed to load identity link: %w", err)
	} else {
		pctx, cancel := s.providerContext(ctx)
		_, providerErr = s.provider.Logout(pctx, link.ProviderUserID, session.AccessToken)
		cancel()
	}

	s.forget(ctx, session.AccessToken)
	ended, err := s.endSession(ctx, session.ID, models.EndReasonRevoked)
	if store.IsNotFound(err) {
		return apperr.SessionNotFound()
	} else if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	*session = *ended

	s.audit(ctx, audit.NewSessionEvent(ctx, audit.EventTypeAuthLogout, session, audit.EventStatusSuccess, "User logged out"))

	if providerErr != nil {
		s.logger.WithContext(ctx).WithError(providerErr).WithField("session_id", session.ID.String()).Warn("Provider logout failed")
		return fmt.Errorf("failed to logout from provider: %w", providerErr)
	}
	return nil
}

// CurrentUser returns the local user behind a session
func (s *Service) CurrentUser(ctx context.Context, session *models.Session) (*models.User, error) {
	user, err := s.store.GetUser(ctx, session.UserID)
	if store.IsNotFound(err) {
		return nil, apperr.UserNotFound(session.UserID.String())
	} else if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.IsDeleted() {
		return nil, apperr.UserNotFound(session.UserID.String())
	}
	return user, nil
}

// RevokeUserSessions ends every active session of a user. Cached copies stop
// validating at once because ValidateSession re-reads the stored row.
func (s *Service) RevokeUserSessions(ctx context.Context, userID, revokedBy uuid.UUID) (int64, error) {
	n, err := s.store.DeactivateUserSessions(ctx, userID, models.EndReasonRevoked, s.opts.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	event := audit.NewAuthenticationEvent(ctx, audit.EventTypeAuthSessionsRevoked, models.UUIDPtr(userID), "", audit.EventStatusSuccess, "User sessions revoked").
		WithMetadata("revoked_by", revokedBy.String()).
		WithMetadata("count", n)
	s.audit(ctx, event)
	return n, nil
}

// PurgeExpiredSessions marks sessions past expiry as expired, then deletes
// inactive sessions last updated before cutoff.
func (s *Service) PurgeExpiredSessions(ctx context.Context, cutoff time.Time) (expired, purged int64, err error) {
	expired, err = s.store.ExpireSessions(ctx, s.opts.Now())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	purged, err = s.store.PurgeSessions(ctx, cutoff)
	if err != nil {
		return expired, 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	s.opts.Metrics.RecordSessionsPurged(purged)
	return expired, purged, nil
}

func providerUserFromLink(link *models.IdentityLink) *identity.ProviderUser {
	created, updated := link.CreatedAt, link.UpdatedAt
	return &identity.ProviderUser{
		ID:           link.ProviderUserID,
		Email:        link.ProviderEmail,
		ProviderType: link.ProviderType,
		Metadata:     link.Metadata,
		CreatedAt:    &created,
		UpdatedAt:    &updated,
	}
}
