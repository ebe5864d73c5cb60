package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/orgs"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// Service coordinates the identity provider with local users, identity links
// and sessions. The provider decides who someone is; everything about what
// they may do lives in the store.
type Service struct {
	provider identity.Provider
	store    store.Store
	guard    *orgs.AccessGuard
	opts     Options
	logger   *observability.Logger

	// sync collapses concurrent first logins of the same provider identity
	sync singleflight.Group
}

// NewService creates an auth service
func NewService(provider identity.Provider, st store.Store, guard *orgs.AccessGuard, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		provider: provider,
		store:    st,
		guard:    guard,
		opts:     opts,
		logger:   opts.Logger.WithField("component", "auth"),
	}
}

// Provider returns the identity provider in use
func (s *Service) Provider() identity.Provider {
	return s.provider
}

func (s *Service) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.ProviderTimeout)
}

func (s *Service) providerType(u *identity.ProviderUser) models.ProviderType {
	if u != nil && u.ProviderType != "" {
		return u.ProviderType
	}
	return s.provider.Type()
}

// endSession deactivates a session with reason unless it already ended
func (s *Service) endSession(ctx context.Context, sessionID uuid.UUID, reason string) (*models.Session, error) {
	var ended *models.Session
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		session, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.IsActive {
			session.End(reason, s.opts.Now())
			if err := tx.UpdateSession(ctx, session); err != nil {
				return err
			}
		}
		ended = session
		return nil
	})
	return ended, err
}

// cached returns a usable session from the cache, or nil
func (s *Service) cached(ctx context.Context, accessToken string, now time.Time) *models.Session {
	if s.opts.Cache == nil {
		return nil
	}
	session, err := s.opts.Cache.Get(ctx, accessToken)
	switch {
	case err != nil:
		s.opts.Metrics.RecordCacheResult(observability.ResultError)
		s.logger.WithContext(ctx).WithError(err).Warn("Session cache read failed")
		return nil
	case session == nil || !session.Usable(now):
		s.opts.Metrics.RecordCacheResult(observability.ResultMiss)
		return nil
	default:
		s.opts.Metrics.RecordCacheResult(observability.ResultHit)
		return session
	}
}

func (s *Service) remember(ctx context.Context, session *models.Session) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.Set(ctx, session); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Session cache write failed")
	}
}

func (s *Service) forget(ctx context.Context, accessToken string) {
	if s.opts.Cache == nil || accessToken == "" {
		return
	}
	if err := s.opts.Cache.Delete(ctx, accessToken); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("token", fingerprint(accessToken)).Warn("Session cache eviction failed")
	}
}

func (s *Service) audit(ctx context.Context, event *audit.AuditEvent) {
	if err := s.opts.Audit.Log(ctx, event); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("event_type", string(event.EventType)).Warn("Failed to write audit event")
	}
}
