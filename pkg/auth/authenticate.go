package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// AuthenticateUser checks credentials with the provider, syncs the provider
// identity to a local user and opens a session. When orgID is set the user
// must pass the organization access guard, and the session carries that
// organization as its context.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string, orgID *uuid.UUID) (*identity.AuthResult, *models.Session, error) {
	result, session, err := s.authenticate(ctx, email, password, orgID)
	s.opts.Metrics.RecordAuthAttempt(err)
	if err != nil {
		status := audit.EventStatusFailure
		if apperr.IsKind(err, apperr.KindOrganizationAccessDenied) {
			status = audit.EventStatusDenied
		}
		s.audit(ctx, audit.NewAuthenticationEvent(ctx, audit.EventTypeAuthLoginFailed, nil, email, status, "Login failed").WithError(err))
		s.logger.WithContext(ctx).WithError(err).WithField("kind", string(apperr.KindOf(err))).Info("Authentication failed")
		return nil, nil, err
	}

	event := audit.NewSessionEvent(ctx, audit.EventTypeAuthLogin, session, audit.EventStatusSuccess, "User logged in")
	event.Email = email
	s.audit(ctx, event)
	return result, session, nil
}

func (s *Service) authenticate(ctx context.Context, email, password string, orgID *uuid.UUID) (*identity.AuthResult, *models.Session, error) {
	if email == "" || password == "" {
		return nil, nil, apperr.CredentialsInvalid()
	}

	pctx, cancel := s.providerContext(ctx)
	result, err := s.provider.Authenticate(pctx, email, password)
	cancel()
	if err != nil {
		return nil, nil, providerFailure(ctx, err, apperr.KindCredentialsInvalid)
	}
	if result == nil || result.User == nil || result.User.ID == "" {
		return nil, nil, apperr.CredentialsInvalid()
	}
	if result.Tokens.AccessToken == "" {
		return nil, nil, apperr.TokenInvalid()
	}

	user, link, err := s.syncIdentity(ctx, result.User)
	if err != nil {
		return nil, nil, err
	}

	var session *models.Session
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if orgID != nil {
			if err := s.guard.CheckTx(ctx, tx, user.ID, *orgID); err != nil {
				return err
			}
		}

		now := s.opts.Now()
		session = &models.Session{
			ID:             uuid.New(),
			UserID:         user.ID,
			IdentityLinkID: link.ID,
			AccessToken:    result.Tokens.AccessToken,
			RefreshToken:   result.Tokens.RefreshToken,
			TokenType:      result.Tokens.Type(),
			ExpiresAt:      result.Tokens.Expiry(now, s.opts.DefaultSessionTTL),
			Metadata:       result.SessionMetadata,
			IsActive:       true,
		}
		if orgID != nil {
			session.OrganizationID = models.UUIDPtr(*orgID)
		}
		session.Stamp(models.UUIDPtr(user.ID), now)

		if err := tx.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		return nil
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindOrganizationAccessDenied) {
			s.audit(ctx, audit.NewAuthorizationEvent(ctx, audit.EventTypeAuthzAccessDenied, user.ID, *orgID, audit.EventStatusDenied, "Organization access denied at login"))
		}
		return nil, nil, err
	}

	s.remember(ctx, session)
	return result, session, nil
}

// providerFailure keeps authentication kinds reported by the provider and
// maps anything else onto fallback. Caller cancellation is returned as is.
func providerFailure(ctx context.Context, err error, fallback apperr.Kind) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	if apperr.Family(apperr.KindOf(err)) == apperr.FamilyAuthentication {
		return err
	}
	switch fallback {
	case apperr.KindCredentialsInvalid:
		return apperr.Wrap(fallback, err, apperr.CredentialsInvalid().Message)
	default:
		return apperr.Wrap(fallback, err, apperr.TokenInvalid().Message)
	}
}

// rejectedByProvider reports whether err means the provider refused the token,
// as opposed to being unreachable
func rejectedByProvider(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindTokenInvalid, apperr.KindTokenExpired, apperr.KindCredentialsInvalid, apperr.KindUserNotFound:
		return true
	default:
		return false
	}
}
