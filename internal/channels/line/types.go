package line

// WebhookBody is the top-level structure received from the LINE platform.
type WebhookBody struct {
	Destination string         `json:"destination"`
	Events      []WebhookEvent `json:"events"`
}

// WebhookEvent is a single event in the webhook payload.
type WebhookEvent struct {
	Type           string          `json:"type"`
	WebhookEventID string          `json:"webhookEventId"`
	Timestamp      int64           `json:"timestamp"`
	ReplyToken     string          `json:"replyToken"`
	Source         Source          `json:"source"`
	Message        *InboundMessage `json:"message,omitempty"`
}

// Source identifies where an event came from. For group and room events
// UserID still names the individual sender.
type Source struct {
	Type    string `json:"type"` // "user", "group", "room"
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// InboundMessage is the message content of a message event.
type InboundMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"` // only "text" is handled
	Text string `json:"text"`
}

// ReplyRequest is the payload for the reply API.
type ReplyRequest struct {
	ReplyToken string            `json:"replyToken"`
	Messages   []OutboundMessage `json:"messages"`
}

// PushRequest is the payload for the push API, used when no reply token
// is available or it has expired.
type PushRequest struct {
	To       string            `json:"to"`
	Messages []OutboundMessage `json:"messages"`
}

// OutboundMessage is one message in a reply or push payload.
type OutboundMessage struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	QuickReply *QuickReply `json:"quickReply,omitempty"`
}

// QuickReply attaches tap-to-send buttons to a message.
type QuickReply struct {
	Items []QuickReplyItem `json:"items"`
}

// QuickReplyItem is one quick reply button.
type QuickReplyItem struct {
	Type   string      `json:"type"` // always "action"
	Action QuickAction `json:"action"`
}

// QuickAction is the action a quick reply button performs.
type QuickAction struct {
	Type  string `json:"type"` // "message"
	Label string `json:"label"`
	Text  string `json:"text"`
}

// APIError is the error body returned by the LINE Messaging API.
type APIError struct {
	Message string `json:"message"`
	Details []struct {
		Message  string `json:"message"`
		Property string `json:"property"`
	} `json:"details,omitempty"`
}
