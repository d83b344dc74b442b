package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel identifies the transport an event arrived on.
type Channel string

const (
	ChannelLine    Channel = "line"
	ChannelWebchat Channel = "webchat"
)

// Origin is the tagged message source, resolved once at the boundary.
// Downstream logic never branches on raw transport types again.
type Origin struct {
	// GroupID is empty for a direct (one-on-one) message.
	GroupID string `json:"group_id,omitempty"`
}

// IsDirect reports whether the event came from a one-on-one chat.
func (o Origin) IsDirect() bool { return o.GroupID == "" }

// InboundEvent is the canonical representation of one inbound message,
// independent of which channel delivered it.
type InboundEvent struct {
	EventID    string    `json:"event_id"`
	Channel    Channel   `json:"channel"`
	SenderID   string    `json:"sender_id"`
	Origin     Origin    `json:"origin"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`

	// ReplyToken is the opaque transport handle used to route the reply.
	ReplyToken string `json:"reply_token,omitempty"`
}

// ConversationKey derives the stable key for the exchange this event belongs
// to: group chats share one conversation, direct chats get one per sender.
func (e InboundEvent) ConversationKey() string {
	if e.Origin.GroupID != "" {
		return fmt.Sprintf("%s:group:%s", e.Channel, e.Origin.GroupID)
	}
	return fmt.Sprintf("%s:user:%s", e.Channel, e.SenderID)
}

// Validate checks the fields every pipeline stage relies on.
func (e InboundEvent) Validate() error {
	if strings.TrimSpace(e.SenderID) == "" {
		return fmt.Errorf("events: inbound event missing sender id")
	}
	if e.Channel == "" {
		return fmt.Errorf("events: inbound event missing channel")
	}
	return nil
}

// NewEventID returns a fresh event identifier for channels that do not
// supply one of their own.
func NewEventID() string {
	return uuid.NewString()
}
