package webchat

import (
	"context"
	"strings"
	"time"

	"github.com/luckygas/gasdesk/internal/bot/reply"
	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// Sender pushes composed replies to the visitor's WebSocket connection.
type Sender struct {
	handler *Handler
	logger  *logging.Logger
}

func NewSender(handler *Handler, logger *logging.Logger) *Sender {
	if handler == nil {
		panic("webchat: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sender{handler: handler, logger: logger}
}

// Send delivers one turn's messages to the session that produced the
// event. A closed connection is not an error; the transcript carries the
// reply for the next connect.
func (s *Sender) Send(_ context.Context, ev events.InboundEvent, msgs []reply.Message) error {
	convKey := ev.ConversationKey()
	now := time.Now().UTC().Format(time.RFC3339)

	for _, m := range msgs {
		out := OutboundMessage{
			Type:      "message",
			Role:      "assistant",
			Text:      m.Text,
			Timestamp: now,
		}
		if m.Type == reply.MessageCard && m.Card != nil {
			lines := append([]string{m.Card.Title}, m.Card.Lines...)
			out.Text = strings.Join(lines, "\n")
		}
		if len(m.QuickReplies) > 0 {
			out.QuickReplies = m.QuickReplies
		}
		s.handler.SendToSession(convKey, out)
	}
	return nil
}
