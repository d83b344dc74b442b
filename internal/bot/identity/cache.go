package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = 5 * time.Minute
	recentPhoneTTL  = 10 * time.Minute
)

// LinkCache keeps recent sender resolutions in Redis so every turn does not
// round-trip Postgres. Cache misses and Redis failures both fall through to
// the store; the cache is never authoritative.
type LinkCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewLinkCache(client *redis.Client) *LinkCache {
	if client == nil {
		return nil
	}
	return &LinkCache{redis: client, ttl: defaultCacheTTL}
}

func cacheKey(channel, senderID string) string {
	return fmt.Sprintf("gasdesk:link:%s:%s", channel, senderID)
}

// Get returns the cached link for the sender. A nil receiver, a miss, a
// decode failure, and a Redis error all report false.
func (c *LinkCache) Get(ctx context.Context, channel, senderID string) (Link, bool) {
	if c == nil {
		return Link{}, false
	}
	data, err := c.redis.Get(ctx, cacheKey(channel, senderID)).Bytes()
	if err != nil {
		return Link{}, false
	}
	var link Link
	if err := json.Unmarshal(data, &link); err != nil {
		return Link{}, false
	}
	return link, true
}

// Put caches a resolution. Failures are dropped; the next turn just misses.
func (c *LinkCache) Put(ctx context.Context, channel, senderID string, link Link) {
	if c == nil {
		return
	}
	data, err := json.Marshal(link)
	if err != nil {
		return
	}
	c.redis.Set(ctx, cacheKey(channel, senderID), data, c.ttl)
}

func phoneKey(channel, senderID string) string {
	return fmt.Sprintf("gasdesk:phone:%s:%s", channel, senderID)
}

// RememberPhone keeps the phone a sender last offered, so a later turn can
// still match on it after the message that carried it has passed.
func (c *LinkCache) RememberPhone(ctx context.Context, channel, senderID, phone string) {
	if c == nil || phone == "" {
		return
	}
	c.redis.Set(ctx, phoneKey(channel, senderID), phone, recentPhoneTTL)
}

// RecentPhone returns the phone remembered for the sender, if any.
func (c *LinkCache) RecentPhone(ctx context.Context, channel, senderID string) (string, bool) {
	if c == nil {
		return "", false
	}
	phone, err := c.redis.Get(ctx, phoneKey(channel, senderID)).Result()
	if err != nil || phone == "" {
		return "", false
	}
	return phone, true
}

// Invalidate drops a cached resolution after a bind or unbind.
func (c *LinkCache) Invalidate(ctx context.Context, channel, senderID string) {
	if c == nil {
		return
	}
	c.redis.Del(ctx, cacheKey(channel, senderID))
}
