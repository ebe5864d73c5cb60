package auth

import (
	"context"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

// SendPasswordReset asks the provider to send a reset email when an active
// local user has this address. It always returns true so callers cannot tell
// which addresses are registered.
func (s *Service) SendPasswordReset(ctx context.Context, email string) bool {
	user, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil && user.CanAuthenticate():
		pctx, cancel := s.providerContext(ctx)
		_, err := s.provider.SendPasswordReset(pctx, email)
		cancel()

		status := audit.EventStatusSuccess
		if err != nil {
			status = audit.EventStatusFailure
			s.logger.WithContext(ctx).WithError(err).WithField("user_id", user.ID.String()).Warn("Provider password reset request failed")
		}
		s.audit(ctx, audit.NewAuthenticationEvent(ctx, audit.EventTypeAuthPasswordResetRequest, models.UUIDPtr(user.ID), email, status, "Password reset requested"))
	case err != nil && !store.IsNotFound(err):
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to look up user for password reset")
	}
	return true
}

// ResetPassword completes a reset with the token from the reset email. A new
// password failing ValidatePasswordStrength is refused before the provider is
// asked. Any failure, including a provider error, yields false.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) bool {
	if token == "" || newPassword == "" {
		return false
	}
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("token", fingerprint(token)).Info("Password reset refused")
		return false
	}

	pctx, cancel := s.providerContext(ctx)
	ok, err := s.provider.ResetPassword(pctx, token, newPassword)
	cancel()
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("token", fingerprint(token)).Info("Password reset rejected")
		ok = false
	}

	status := audit.EventStatusSuccess
	if !ok {
		status = audit.EventStatusFailure
	}
	s.audit(ctx, audit.NewAuthenticationEvent(ctx, audit.EventTypeAuthPasswordReset, nil, "", status, "Password reset"))
	return ok
}
