package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/gatekeeper/pkg/models"
)

const defaultLRUSize = 10000

type lruEntry struct {
	session *models.Session
	until   time.Time
}

// LRUSessionCache is an in-process SessionCache bounded by size and TTL
type LRUSessionCache struct {
	lru *expirable.LRU[string, lruEntry]
	ttl time.Duration
	now func() time.Time
}

// NewLRUSessionCache creates an LRU cache holding at most size sessions for ttl each
func NewLRUSessionCache(size int, ttl time.Duration) *LRUSessionCache {
	if size <= 0 {
		size = defaultLRUSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRUSessionCache{
		lru: expirable.NewLRU[string, lruEntry](size, nil, ttl),
		ttl: ttl,
		now: time.Now,
	}
}

func (c *LRUSessionCache) Get(ctx context.Context, accessToken string) (*models.Session, error) {
	key := tokenKey(accessToken)
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	if !c.now().Before(entry.until) {
		c.lru.Remove(key)
		return nil, nil
	}
	return cloneSession(entry.session), nil
}

func (c *LRUSessionCache) Set(ctx context.Context, session *models.Session) error {
	now := c.now()
	ttl := entryTTL(session, c.ttl, now)
	if ttl <= 0 {
		c.lru.Remove(tokenKey(session.AccessToken))
		return nil
	}
	c.lru.Add(tokenKey(session.AccessToken), lruEntry{session: cloneSession(session), until: now.Add(ttl)})
	return nil
}

func (c *LRUSessionCache) Delete(ctx context.Context, accessToken string) error {
	c.lru.Remove(tokenKey(accessToken))
	return nil
}

// Len returns the number of cached sessions, including not yet evicted expired ones
func (c *LRUSessionCache) Len() int {
	return c.lru.Len()
}

func (c *LRUSessionCache) Ping(ctx context.Context) error { return nil }

func (c *LRUSessionCache) Close() error {
	c.lru.Purge()
	return nil
}
