package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// maxSyncAttempts covers one lost race against another instance creating the same link
const maxSyncAttempts = 2

// maxSyncJoins bounds how often a caller rejoins after a shared call died with its leader's context
const maxSyncJoins = 3

type syncedIdentity struct {
	user *models.User
	link *models.IdentityLink
}

// syncIdentity maps a provider identity onto a local user, creating the user
// and link on first sight. Concurrent calls for the same identity in this
// process share one result; across processes the link's unique key decides
// and the loser re-reads the winner's rows. A shared call runs under its
// leader's context, so a caller whose own context is still live rejoins when
// the leader was cancelled.
func (s *Service) syncIdentity(ctx context.Context, pu *identity.ProviderUser) (*models.User, *models.IdentityLink, error) {
	providerType := s.providerType(pu)
	key := string(providerType) + ":" + pu.ID

	var (
		v   interface{}
		err error
	)
	for join := 0; join < maxSyncJoins; join++ {
		var shared bool
		v, err, shared = s.sync.Do(key, func() (interface{}, error) {
			return s.syncIdentityRetrying(ctx, providerType, pu)
		})
		if err == nil || !shared || ctx.Err() != nil || !isContextError(err) {
			break
		}
		s.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"provider":         string(providerType),
			"provider_user_id": pu.ID,
		}).Debug("Shared identity sync cancelled by its leader, rejoining")
	}
	if err != nil {
		return nil, nil, err
	}
	synced := v.(*syncedIdentity)
	return synced.user, synced.link, nil
}

func (s *Service) syncIdentityRetrying(ctx context.Context, providerType models.ProviderType, pu *identity.ProviderUser) (*syncedIdentity, error) {
	var lastErr error
	for attempt := 0; attempt < maxSyncAttempts; attempt++ {
		synced, err := s.syncIdentityOnce(ctx, providerType, pu)
		if err == nil {
			return synced, nil
		}
		if !store.IsAlreadyExists(err) {
			return nil, err
		}
		lastErr = err
		s.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"provider":         string(providerType),
			"provider_user_id": pu.ID,
			"attempt":          attempt + 1,
		}).Debug("Identity link created concurrently, re-reading")
	}
	return nil, lastErr
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) syncIdentityOnce(ctx context.Context, providerType models.ProviderType, pu *identity.ProviderUser) (*syncedIdentity, error) {
	var synced syncedIdentity
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.opts.Now()

		link, err := tx.GetIdentityLink(ctx, providerType, pu.ID)
		if store.IsNotFound(err) {
			user, link, err := linkIdentity(ctx, tx, providerType, pu, now)
			if err != nil {
				return err
			}
			user.LastLoginAt = &now
			if err := tx.UpdateUser(ctx, user); err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
			synced = syncedIdentity{user: user, link: link}
			return nil
		} else if err != nil {
			return fmt.Errorf("failed to load identity link: %w", err)
		}

		user, err := tx.GetUser(ctx, link.UserID)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if !user.CanAuthenticate() {
			return apperr.CredentialsInvalid()
		}

		user.LastLoginAt = &now
		user.Touch(models.UUIDPtr(user.ID), now)
		if err := tx.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}

		if pu.Email != "" {
			link.ProviderEmail = pu.Email
		}
		if pu.Metadata != nil {
			link.Metadata = pu.Metadata
		}
		link.Touch(models.UUIDPtr(user.ID), now)
		if err := tx.UpdateIdentityLink(ctx, link); err != nil {
			return fmt.Errorf("failed to update identity link: %w", err)
		}

		synced = syncedIdentity{user: user, link: link}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &synced, nil
}

// linkIdentity attaches a provider identity to the local user with the same
// email, creating that user when there is none.
func linkIdentity(ctx context.Context, tx store.Tx, providerType models.ProviderType, pu *identity.ProviderUser, now time.Time) (*models.User, *models.IdentityLink, error) {
	email := strings.TrimSpace(pu.Email)
	if email == "" {
		return nil, nil, apperr.CredentialsInvalid().WithDetail("reason", "provider identity has no email")
	}

	user, err := tx.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.CanAuthenticate() {
			return nil, nil, apperr.CredentialsInvalid()
		}
	case store.IsNotFound(err):
		user, err = createUser(ctx, tx, email, "", "", now)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	link, err := createLink(ctx, tx, user, providerType, pu, now)
	if err != nil {
		return nil, nil, err
	}
	return user, link, nil
}

func createUser(ctx context.Context, tx store.Tx, email, firstName, lastName string, now time.Time) (*models.User, error) {
	user := &models.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		IsActive:  true,
	}
	user.Stamp(nil, now)
	if err := tx.CreateUser(ctx, user); err != nil {
		if store.IsAlreadyExists(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func createLink(ctx context.Context, tx store.Tx, user *models.User, providerType models.ProviderType, pu *identity.ProviderUser, now time.Time) (*models.IdentityLink, error) {
	link := &models.IdentityLink{
		ID:             uuid.New(),
		UserID:         user.ID,
		ProviderType:   providerType,
		ProviderUserID: pu.ID,
		ProviderEmail:  pu.Email,
		Metadata:       pu.Metadata,
	}
	link.Stamp(models.UUIDPtr(user.ID), now)
	if err := tx.CreateIdentityLink(ctx, link); err != nil {
		if store.IsAlreadyExists(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create identity link: %w", err)
	}
	return link, nil
}
