package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckygas/gasdesk/internal/bot/reply"
)

func testStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return NewStore(client, WithClock(func() time.Time { return now })), mr
}

func TestAppendTurn_RecordsBothDirections(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	err := s.AppendTurn(ctx, "line:U1", "訂 20kg 瓦斯兩桶", []reply.Message{
		{Type: reply.MessageText, Text: "請問要送到哪個地址呢?"},
	})
	require.NoError(t, err)

	entries, err := s.List(ctx, "line:U1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "user", entries[0].Role)
	assert.Equal(t, "訂 20kg 瓦斯兩桶", entries[0].Text)
	assert.Equal(t, "bot", entries[1].Role)
	assert.Equal(t, "請問要送到哪個地址呢?", entries[1].Text)
}

func TestAppendTurn_SetsTTL(t *testing.T) {
	s, mr := testStore(t)
	require.NoError(t, s.AppendTurn(context.Background(), "line:U1", "hi", nil))

	ttl := mr.TTL("gasdesk:transcript:line:U1")
	assert.Equal(t, DefaultTTL, ttl)
}

func TestAppendTurn_RefreshesTTLOnEachTurn(t *testing.T) {
	s, mr := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendTurn(ctx, "line:U1", "one", nil))
	mr.FastForward(24 * time.Hour)
	require.NoError(t, s.AppendTurn(ctx, "line:U1", "two", nil))

	assert.Equal(t, DefaultTTL, mr.TTL("gasdesk:transcript:line:U1"))
}

func TestList_MissingKeyIsEmpty(t *testing.T) {
	s, _ := testStore(t)
	entries, err := s.List(context.Background(), "line:nobody")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDelete_RemovesTranscript(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendTurn(ctx, "line:U1", "hi", nil))
	require.NoError(t, s.Delete(ctx, "line:U1"))

	entries, err := s.List(ctx, "line:U1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestKeys_ListsConversationKeys(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendTurn(ctx, "line:U1", "hi", nil))
	require.NoError(t, s.AppendTurn(ctx, "webchat:s9", "hello", nil))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"line:U1", "webchat:s9"}, keys)
}
