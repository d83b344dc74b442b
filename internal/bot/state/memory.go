package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps conversations in process memory. It backs local
// development and tests; production uses the DynamoDB store.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]*Conversation
	ttl     time.Duration
	nowFunc func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock overrides the clock, for expiry tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.nowFunc = now
		}
	}
}

// WithTTL overrides the idle expiry window.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		items:   make(map[string]*Conversation),
		ttl:     DefaultTTL,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns a copy so callers never mutate the stored conversation in
// place. Unseen or expired keys yield a fresh idle conversation.
func (s *MemoryStore) Load(_ context.Context, key string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[key]
	if !ok {
		return fresh(key, 0), nil
	}
	if stored.expired(s.nowFunc(), s.ttl) {
		return fresh(key, stored.Turn), nil
	}
	return stored.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.items[conv.Key]; ok && stored.Turn != conv.Turn {
		return ErrConflict
	}

	saved := conv.Clone()
	saved.Turn = conv.Turn + 1
	saved.LastActivity = s.nowFunc()
	s.items[conv.Key] = saved

	conv.Turn = saved.Turn
	conv.LastActivity = saved.LastActivity
	return nil
}

// Expire drops every conversation idle since before olderThan.
func (s *MemoryStore) Expire(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, stored := range s.items {
		if stored.LastActivity.Before(olderThan) {
			delete(s.items, key)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
