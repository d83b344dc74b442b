package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_SendReceive(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, `{"eventId":"ev-1"}`))
	require.NoError(t, q.Send(ctx, `{"eventId":"ev-2"}`))

	msgs, err := q.Receive(ctx, 5, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"eventId":"ev-1"}`, msgs[0].Body)
	assert.Equal(t, `{"eventId":"ev-2"}`, msgs[1].Body)
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotEmpty(t, msgs[0].ReceiptHandle)
}

func TestMemoryQueue_ReceiveRespectsBatchSize(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Send(ctx, "payload"))
	}

	msgs, err := q.Receive(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	msgs, err = q.Receive(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMemoryQueue_ReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)

	start := time.Now()
	msgs, err := q.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestMemoryQueue_ReceiveHonorsContextCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := q.Receive(ctx, 1, 0)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("receive did not return after cancel")
	}
}

func TestMemoryQueue_DeleteIsNoOp(t *testing.T) {
	q := NewMemoryQueue(1)
	assert.NoError(t, q.Delete(context.Background(), "anything"))
}
