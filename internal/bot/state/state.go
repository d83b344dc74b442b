// Package state persists per-conversation dialog state between turns.
// Conversations are keyed by the canonical conversation key and guarded by a
// monotonic turn counter so concurrent turns for the same key cannot silently
// overwrite each other.
package state

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long an idle conversation survives before a later load
// sees a fresh one. Expiry is lazy; nothing has to sweep.
const DefaultTTL = 30 * time.Minute

// ErrConflict is returned by Save when another writer advanced the turn
// counter first. The caller reloads and reapplies.
var ErrConflict = errors.New("state: conversation modified concurrently")

// Conversation is the whole dialog state for one conversation key. Flow is
// empty when idle. Slots hold collected answers keyed by slot name.
type Conversation struct {
	Key          string            `dynamodbav:"conversationKey" json:"conversationKey"`
	Flow         string            `dynamodbav:"flow,omitempty" json:"flow,omitempty"`
	Step         string            `dynamodbav:"step,omitempty" json:"step,omitempty"`
	Slots        map[string]string `dynamodbav:"slots,omitempty" json:"slots,omitempty"`
	Reprompts    int               `dynamodbav:"reprompts,omitempty" json:"reprompts,omitempty"`
	Tier         string            `dynamodbav:"tier,omitempty" json:"tier,omitempty"`
	Turn         int64             `dynamodbav:"turn" json:"turn"`
	LastActivity time.Time         `dynamodbav:"lastActivity,unixtime" json:"lastActivity"`
	ExpiresAt    int64             `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// Idle reports whether no flow is active.
func (c *Conversation) Idle() bool {
	return c.Flow == ""
}

// Reset drops all flow progress but keeps the key and turn counter, so the
// save that follows still goes through the same conflict check.
func (c *Conversation) Reset() {
	c.Flow = ""
	c.Step = ""
	c.Slots = nil
	c.Reprompts = 0
}

// SetSlot records a collected answer, allocating the map on first use.
func (c *Conversation) SetSlot(name, value string) {
	if c.Slots == nil {
		c.Slots = make(map[string]string)
	}
	c.Slots[name] = value
}

// Slot returns the collected value for name, or "".
func (c *Conversation) Slot(name string) string {
	return c.Slots[name]
}

// Clone returns a deep copy. The dialog engine snapshots state before
// mutating it so a failed turn can roll back.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.Slots != nil {
		out.Slots = make(map[string]string, len(c.Slots))
		for k, v := range c.Slots {
			out.Slots[k] = v
		}
	}
	return &out
}

// expired reports whether the conversation idled past ttl as of now.
func (c *Conversation) expired(now time.Time, ttl time.Duration) bool {
	return !c.LastActivity.IsZero() && now.Sub(c.LastActivity) > ttl
}

// fresh returns an idle conversation for key with the turn counter carried
// over, so expiry never resets the conflict guard.
func fresh(key string, turn int64) *Conversation {
	return &Conversation{Key: key, Turn: turn}
}

// Store loads and saves conversations.
//
// Load never fails on an unseen or expired key; it returns a fresh idle
// conversation instead. Save performs a compare-and-set on the turn counter:
// it persists the conversation with Turn incremented and returns ErrConflict
// when the stored turn no longer matches the one that was loaded.
//
// Expire removes conversations whose last activity is before olderThan and
// reports how many it dropped. Loads already treat stale conversations as
// fresh, so Expire only reclaims storage; running it is optional.
type Store interface {
	Load(ctx context.Context, key string) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
	Expire(ctx context.Context, olderThan time.Time) (int, error)
}
