package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/models"
)

// DefaultTTL bounds how long a validated session may be served from cache
const DefaultTTL = 5 * time.Minute

// SessionCache caches active sessions by access token. Entries are advisory:
// callers still revalidate the token with the identity provider.
type SessionCache interface {
	// Get returns nil, nil on a miss
	Get(ctx context.Context, accessToken string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, accessToken string) error
	Ping(ctx context.Context) error
	Close() error
}

// tokenKey hashes an access token so raw tokens never become cache keys
func tokenKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}

// entryTTL caps ttl at the session's remaining lifetime; <= 0 means do not cache
func entryTTL(session *models.Session, ttl time.Duration, now time.Time) time.Duration {
	if !session.Usable(now) {
		return 0
	}
	if remaining := session.ExpiresAt.Sub(now); remaining < ttl {
		return remaining
	}
	return ttl
}

func cloneSession(s *models.Session) *models.Session {
	c := *s
	if s.OrganizationID != nil {
		orgID := *s.OrganizationID
		c.OrganizationID = &orgID
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
