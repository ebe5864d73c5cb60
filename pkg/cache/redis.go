package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatekeeper/pkg/models"
)

const redisKeyPrefix = "gatekeeper:session:"

// RedisSessionCache is a SessionCache shared between instances through Redis
type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// redisEntry carries the token fields the session's JSON form omits
type redisEntry struct {
	Session      *models.Session `json:"session"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
}

// NewRedisSessionCache connects to redisURL and verifies the connection
func NewRedisSessionCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisSessionCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisSessionCacheFromClient(client, ttl), nil
}

// NewRedisSessionCacheFromClient wraps an existing client
func NewRedisSessionCacheFromClient(client *redis.Client, ttl time.Duration) *RedisSessionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisSessionCache{client: client, ttl: ttl, now: time.Now}
}

func (c *RedisSessionCache) Get(ctx context.Context, accessToken string) (*models.Session, error) {
	key := redisKeyPrefix + tokenKey(accessToken)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Session == nil {
		c.client.Del(ctx, key)
		if err == nil {
			err = fmt.Errorf("empty entry")
		}
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	session := entry.Session
	session.AccessToken = entry.AccessToken
	session.RefreshToken = entry.RefreshToken
	return session, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, session *models.Session) error {
	key := redisKeyPrefix + tokenKey(session.AccessToken)

	ttl := entryTTL(session, c.ttl, c.now())
	if ttl <= 0 {
		return c.client.Del(ctx, key).Err()
	}

	data, err := json.Marshal(redisEntry{
		Session:      session,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *RedisSessionCache) Delete(ctx context.Context, accessToken string) error {
	return c.client.Del(ctx, redisKeyPrefix+tokenKey(accessToken)).Err()
}

func (c *RedisSessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}
