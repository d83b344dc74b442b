package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/luckygas/gasdesk/internal/events"
)

// EventPublisher marshals inbound events onto a queue. It is the bridge
// between the channel webhooks and the turn workers.
type EventPublisher struct {
	queue Queue
}

func NewEventPublisher(q Queue) *EventPublisher {
	if q == nil {
		panic("queue: queue cannot be nil")
	}
	return &EventPublisher{queue: q}
}

// Enqueue serializes one event and sends it.
func (p *EventPublisher) Enqueue(ctx context.Context, ev events.InboundEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: encode event: %w", err)
	}
	return p.queue.Send(ctx, string(body))
}
