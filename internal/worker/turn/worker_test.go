package turn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/internal/queue"
	"github.com/luckygas/gasdesk/pkg/logging"
)

type recordingProcessor struct {
	mu        sync.Mutex
	processed []events.InboundEvent
	failFirst bool
	failed    bool
	done      chan struct{}
}

func (p *recordingProcessor) Process(_ context.Context, ev events.InboundEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFirst && !p.failed {
		p.failed = true
		return errors.New("transient failure")
	}
	p.processed = append(p.processed, ev)
	if p.done != nil {
		select {
		case p.done <- struct{}{}:
		default:
		}
	}
	return nil
}

func (p *recordingProcessor) events() []events.InboundEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.InboundEvent(nil), p.processed...)
}

func enqueueEvent(t *testing.T, q queue.Queue, ev events.InboundEvent) {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), string(body)))
}

func TestConsumer_ProcessesEnqueuedEvent(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	proc := &recordingProcessor{done: make(chan struct{}, 1)}
	c := NewConsumer(q, proc, logging.New("error"), WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()

	ev := events.InboundEvent{
		EventID:  "ev-1",
		Channel:  events.ChannelLine,
		SenderID: "U1",
		Text:     "訂 20kg 瓦斯兩桶",
	}
	enqueueEvent(t, q, ev)

	select {
	case <-proc.done:
	case <-time.After(3 * time.Second):
		t.Fatal("event was not processed")
	}
	cancel()

	processed := proc.events()
	require.Len(t, processed, 1)
	assert.Equal(t, "ev-1", processed[0].EventID)
	assert.Equal(t, "訂 20kg 瓦斯兩桶", processed[0].Text)
}

func TestConsumer_DropsUndecodableMessage(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	proc := &recordingProcessor{done: make(chan struct{}, 1)}
	c := NewConsumer(q, proc, logging.New("error"), WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.NoError(t, q.Send(context.Background(), "not json"))
	enqueueEvent(t, q, events.InboundEvent{
		EventID: "ev-2", Channel: events.ChannelLine, SenderID: "U1", Text: "hi",
	})

	select {
	case <-proc.done:
	case <-time.After(3 * time.Second):
		t.Fatal("valid event after poison message was not processed")
	}

	processed := proc.events()
	require.Len(t, processed, 1)
	assert.Equal(t, "ev-2", processed[0].EventID)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	c := NewConsumer(q, &recordingProcessor{}, logging.New("error"), WithWorkerCount(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

func TestEventPublisher_RoundTrip(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	pub := queue.NewEventPublisher(q)

	ev := events.InboundEvent{
		EventID: "ev-3", Channel: events.ChannelWebchat, SenderID: "sess1", Text: "你好",
	}
	require.NoError(t, pub.Enqueue(context.Background(), ev))

	msgs, err := q.Receive(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var decoded events.InboundEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Body), &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, ev.Text, decoded.Text)
}

func TestEventPublisher_RejectsInvalidEvent(t *testing.T) {
	pub := queue.NewEventPublisher(queue.NewMemoryQueue(1))
	err := pub.Enqueue(context.Background(), events.InboundEvent{Channel: events.ChannelLine})
	assert.Error(t, err)
}
