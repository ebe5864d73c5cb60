package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// CreateSession inserts a session. Access tokens are unique.
func (v *view) CreateSession(ctx context.Context, s *models.Session) error {
	t, release := v.acquire()
	defer release()

	if _, ok := t.sessions[s.ID]; ok {
		return apperr.AlreadyExists(store.ResourceSession, "id", s.ID.String())
	}
	for _, existing := range t.sessions {
		if existing.AccessToken == s.AccessToken {
			return apperr.AlreadyExists(store.ResourceSession, "access_token", "")
		}
	}
	t.sessions[s.ID] = copySession(s)
	return nil
}

// GetSession retrieves a session by ID
func (v *view) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	t, release := v.acquire()
	defer release()

	s, ok := t.sessions[id]
	if !ok {
		return nil, store.NotFound(store.ResourceSession, "")
	}
	return copySession(s), nil
}

// GetSessionByAccessToken retrieves a session by access token regardless of state
func (v *view) GetSessionByAccessToken(ctx context.Context, accessToken string) (*models.Session, error) {
	t, release := v.acquire()
	defer release()

	for _, s := range t.sessions {
		if s.AccessToken == accessToken {
			return copySession(s), nil
		}
	}
	return nil, store.NotFound(store.ResourceSession, "")
}

// GetActiveSessionByRefreshToken retrieves the active session holding a refresh token
func (v *view) GetActiveSessionByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	if refreshToken == "" {
		return nil, store.NotFound(store.ResourceSession, "")
	}

	t, release := v.acquire()
	defer release()

	for _, s := range t.sessions {
		if s.IsActive && s.RefreshToken == refreshToken {
			return copySession(s), nil
		}
	}
	return nil, store.NotFound(store.ResourceSession, "")
}

// LockSession is GetSession; the transaction already excludes other writers
func (v *view) LockSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return v.GetSession(ctx, id)
}

// UpdateSession replaces a stored session
func (v *view) UpdateSession(ctx context.Context, s *models.Session) error {
	t, release := v.acquire()
	defer release()

	if _, ok := t.sessions[s.ID]; !ok {
		return store.NotFound(store.ResourceSession, s.ID.String())
	}
	for id, existing := range t.sessions {
		if id != s.ID && existing.AccessToken == s.AccessToken {
			return apperr.AlreadyExists(store.ResourceSession, "access_token", "")
		}
	}
	t.sessions[s.ID] = copySession(s)
	return nil
}

// DeactivateUserSessions ends every active session of a user
func (v *view) DeactivateUserSessions(ctx context.Context, userID uuid.UUID, reason string, now time.Time) (int64, error) {
	t, release := v.acquire()
	defer release()

	var n int64
	for _, s := range t.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			s.EndReason = reason
			s.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// DeactivateOrganizationSessions ends active sessions carrying orgID as their context
func (v *view) DeactivateOrganizationSessions(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, reason string, now time.Time) (int64, error) {
	t, release := v.acquire()
	defer release()

	var n int64
	for _, s := range t.sessions {
		if !s.IsActive || s.OrganizationID == nil || *s.OrganizationID != orgID {
			continue
		}
		if userID != nil && s.UserID != *userID {
			continue
		}
		s.End(reason, now)
		n++
	}
	return n, nil
}

// ExpireSessions marks active sessions past expiry as expired
func (v *view) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	t, release := v.acquire()
	defer release()

	var n int64
	for _, s := range t.sessions {
		if s.IsActive && !s.ExpiresAt.After(now) {
			s.IsActive = false
			s.EndReason = models.EndReasonExpired
			s.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// PurgeSessions deletes inactive sessions last touched before cutoff
func (v *view) PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	t, release := v.acquire()
	defer release()

	var n int64
	for id, s := range t.sessions {
		if !s.IsActive && s.UpdatedAt.Before(cutoff) {
			delete(t.sessions, id)
			n++
		}
	}
	return n, nil
}
