// Package channels routes composed replies to the channel a conversation
// arrived on.
package channels

import (
	"context"
	"fmt"

	"github.com/luckygas/gasdesk/internal/bot/reply"
	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// Sender delivers composed messages on one concrete channel.
type Sender interface {
	Send(ctx context.Context, ev events.InboundEvent, msgs []reply.Message) error
}

// Dispatcher fans replies out to the sender registered for the event's
// channel. Registration happens at startup; the map is read-only after.
type Dispatcher struct {
	senders map[events.Channel]Sender
	logger  *logging.Logger
}

func NewDispatcher(logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		senders: make(map[events.Channel]Sender),
		logger:  logger,
	}
}

// Register binds a sender to a channel, replacing any previous binding.
func (d *Dispatcher) Register(ch events.Channel, s Sender) {
	if s == nil {
		return
	}
	d.senders[ch] = s
}

// Send routes to the sender for the event's channel. An unregistered
// channel is an error so queue redelivery can retry once the process
// that owns the channel picks the event up.
func (d *Dispatcher) Send(ctx context.Context, ev events.InboundEvent, msgs []reply.Message) error {
	sender, ok := d.senders[ev.Channel]
	if !ok {
		return fmt.Errorf("channels: no sender registered for %q", ev.Channel)
	}
	return sender.Send(ctx, ev, msgs)
}
