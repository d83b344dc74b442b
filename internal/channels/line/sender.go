package line

import (
	"context"
	"strings"

	"github.com/luckygas/gasdesk/internal/bot/reply"
	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/internal/observability/metrics"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// Sender delivers composed replies over the LINE Messaging API. It
// prefers the event's reply token and falls back to push when the token
// is missing, so queued turns processed after the token window still
// reach the customer.
type Sender struct {
	client  *Client
	logger  *logging.Logger
	metrics *metrics.ChannelMetrics
}

func NewSender(client *Client, logger *logging.Logger) *Sender {
	if client == nil {
		panic("line: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sender{client: client, logger: logger}
}

// WithMetrics attaches outbound delivery counters.
func (s *Sender) WithMetrics(m *metrics.ChannelMetrics) *Sender {
	s.metrics = m
	return s
}

// Send renders and delivers the composed messages for one turn.
func (s *Sender) Send(ctx context.Context, ev events.InboundEvent, msgs []reply.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	err := s.deliver(ctx, ev, RenderMessages(msgs))
	if err != nil {
		s.metrics.ObserveOutbound(string(events.ChannelLine), "error")
		return err
	}
	s.metrics.ObserveOutbound(string(events.ChannelLine), "ok")
	return nil
}

func (s *Sender) deliver(ctx context.Context, ev events.InboundEvent, outbound []OutboundMessage) error {
	if ev.ReplyToken != "" {
		if err := s.client.Reply(ctx, ev.ReplyToken, outbound); err == nil {
			return nil
		} else {
			s.logger.Warn("line reply failed, falling back to push",
				"sender_id", ev.SenderID, "error", err)
		}
	}

	to := ev.SenderID
	if ev.Origin.GroupID != "" {
		to = ev.Origin.GroupID
	}
	return s.client.Push(ctx, to, outbound)
}

// RenderMessages maps channel-agnostic messages onto LINE message
// payloads. Cards render as a titled text block; quick replies become
// tap-to-send buttons.
func RenderMessages(msgs []reply.Message) []OutboundMessage {
	out := make([]OutboundMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, renderMessage(m))
	}
	return out
}

func renderMessage(m reply.Message) OutboundMessage {
	out := OutboundMessage{Type: "text", Text: m.Text}

	if m.Type == reply.MessageCard && m.Card != nil {
		lines := make([]string, 0, 1+len(m.Card.Lines))
		lines = append(lines, m.Card.Title)
		lines = append(lines, m.Card.Lines...)
		out.Text = strings.Join(lines, "\n")
	}

	if len(m.QuickReplies) > 0 {
		items := make([]QuickReplyItem, 0, len(m.QuickReplies))
		for _, qr := range m.QuickReplies {
			items = append(items, QuickReplyItem{
				Type: "action",
				Action: QuickAction{
					Type:  "message",
					Label: qr,
					Text:  qr,
				},
			})
		}
		out.QuickReply = &QuickReply{Items: items}
	}

	return out
}
