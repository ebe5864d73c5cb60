package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/orgs"
	"github.com/platinummonkey/gatekeeper/pkg/store"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

// maxSignupAttempts bounds retries of the signup transaction when a concurrent
// signup takes the generated slug or the transaction loses a serialization race
const maxSignupAttempts = 3

// CreateUserWithOrganization registers a user with the provider, then creates
// the local user, identity link, an organization and the user's owner
// membership in one transaction. The transaction is retried when another
// signup takes the generated slug first. If it still fails the provider user
// is deleted again.
func (s *Service) CreateUserWithOrganization(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	email := strings.TrimSpace(req.Email)
	if err := users.ValidateEmail(email); err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, apperr.Validation("password", "password is required")
	}
	if err := users.ValidatePasswordStrength(req.Password); err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName))
	owner := fullName
	if owner == "" {
		owner = email
	}
	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		orgName = owner + "'s Organization"
	}
	if err := orgs.ValidateName(orgName); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, apperr.AlreadyExists(store.ResourceUser, "email", email)
	} else if !store.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	pctx, cancel := s.providerContext(ctx)
	pu, err := s.provider.CreateUser(pctx, email, req.Password, map[string]interface{}{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to create provider user: %w", err)
	}

	result := &SignupResult{ProviderUser: pu}
	for attempt := 1; ; attempt++ {
		err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			now := s.opts.Now()

			user, err := createUser(ctx, tx, email, req.FirstName, req.LastName, now)
			if err != nil {
				return err
			}
			if _, err := createLink(ctx, tx, user, s.providerType(pu), pu, now); err != nil {
				return err
			}

			org, membership, err := orgs.CreateWithOwner(ctx, tx, orgs.OrganizationCreate{
				Name:        orgName,
				Description: "Organization for " + owner,
			}, user.ID, now)
			if err != nil {
				return err
			}

			result.User, result.Organization, result.Membership = user, org, membership
			return nil
		})
		if err == nil || attempt >= maxSignupAttempts || !retryableSignup(err) || ctx.Err() != nil {
			break
		}
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"organization_name": orgName,
			"attempt":           attempt,
		}).Debug("Signup raced another writer, retrying")
	}
	s.opts.Metrics.RecordMembershipOperation(orgs.OpCreateOrg, err)
	if err != nil {
		s.compensate(ctx, pu.ID, err)
		return nil, err
	}

	userID := result.User.ID
	s.audit(ctx, audit.NewAuthenticationEvent(ctx, audit.EventTypeAuthSignup, &userID, email, audit.EventStatusSuccess, "User signed up"))
	s.audit(ctx, audit.NewOrganizationEvent(ctx, audit.EventTypeOrgCreate, userID, result.Organization, nil, "Organization created at signup"))
	return result, nil
}

// retryableSignup reports whether a failed signup transaction may succeed when run again
func retryableSignup(err error) bool {
	return store.IsDuplicate(err, "slug") || store.IsConflict(err)
}

// compensate removes a provider user whose local records could not be created
func (s *Service) compensate(ctx context.Context, providerUserID string, cause error) {
	pctx, cancel := s.providerContext(context.WithoutCancel(ctx))
	defer cancel()

	logger := s.logger.WithContext(ctx).WithError(cause).WithField("provider_user_id", providerUserID)
	if err := s.provider.DeleteUser(pctx, providerUserID); err != nil {
		logger.WithField("delete_error", err.Error()).Error("Failed to delete provider user after signup rollback")
		return
	}
	logger.Warn("Signup rolled back, provider user deleted")
}
