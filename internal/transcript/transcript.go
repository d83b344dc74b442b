// Package transcript keeps a short-lived record of each conversation's
// turns in Redis, for back-office review and for archival when a
// conversation goes quiet.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/luckygas/gasdesk/internal/bot/reply"
)

// DefaultTTL keeps transcripts long enough for a complaint to surface.
const DefaultTTL = 72 * time.Hour

// Entry is one message of a transcript, either direction.
type Entry struct {
	Role string    `json:"role"` // "user" or "bot"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Store appends and reads transcripts.
type Store struct {
	redis   *redis.Client
	ttl     time.Duration
	tracer  trace.Tracer
	nowFunc func() time.Time
}

type Option func(*Store)

// WithTTL overrides the retention window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFunc = now
		}
	}
}

func NewStore(client *redis.Client, opts ...Option) *Store {
	if client == nil {
		panic("transcript: redis client cannot be nil")
	}
	s := &Store{
		redis:   client,
		ttl:     DefaultTTL,
		tracer:  otel.Tracer("gasdesk.internal.transcript"),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func transcriptKey(conversationKey string) string {
	return "gasdesk:transcript:" + conversationKey
}

// AppendTurn records the inbound text and every outbound message of one
// turn, refreshing the retention window.
func (s *Store) AppendTurn(ctx context.Context, key, inbound string, outbound []reply.Message) error {
	ctx, span := s.tracer.Start(ctx, "transcript.append_turn")
	defer span.End()

	now := s.nowFunc().UTC()
	entries := make([]Entry, 0, 1+len(outbound))
	entries = append(entries, Entry{Role: "user", Text: inbound, At: now})
	for _, m := range outbound {
		entries = append(entries, Entry{Role: "bot", Text: m.Text, At: now})
	}

	values := make([]any, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("transcript: marshal entry: %w", err)
		}
		values = append(values, data)
	}

	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, transcriptKey(key), values...)
	pipe.Expire(ctx, transcriptKey(key), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: append turn: %w", err)
	}
	return nil
}

// List returns a conversation's transcript in order. A missing key is an
// empty transcript, not an error.
func (s *Store) List(ctx context.Context, key string) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "transcript.list")
	defer span.End()

	raw, err := s.redis.LRange(ctx, transcriptKey(key), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("transcript: list: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("transcript: decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Delete drops a conversation's transcript, typically after archival.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, transcriptKey(key)).Err(); err != nil {
		return fmt.Errorf("transcript: delete: %w", err)
	}
	return nil
}

// Keys lists conversation keys with a live transcript.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	raw, err := s.redis.Keys(ctx, transcriptKey("*")).Result()
	if err != nil {
		return nil, fmt.Errorf("transcript: keys: %w", err)
	}
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		out = append(out, k[len(transcriptKey("")):])
	}
	return out, nil
}
