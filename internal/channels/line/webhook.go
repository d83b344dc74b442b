package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// WebhookHandler verifies and parses inbound LINE webhooks. Each parsed
// text message is handed to onEvent as a canonical inbound event.
type WebhookHandler struct {
	channelSecret string
	onEvent       func(ev events.InboundEvent)
	logger        *logging.Logger
}

// NewWebhookHandler creates a webhook handler. onEvent is called for
// each text message in the webhook body.
func NewWebhookHandler(channelSecret string, onEvent func(events.InboundEvent), logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		channelSecret: channelSecret,
		onEvent:       onEvent,
		logger:        logger,
	}
}

// HandleInbound handles POST /webhooks/line. LINE retries on non-2xx, so
// the handler acknowledges as soon as the payload is parsed; processing
// failures are retried through the queue, not the webhook.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Line-Signature")
	if !VerifySignature(h.channelSecret, body, signature) {
		h.logger.Warn("line webhook rejected: bad signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	payload, err := DecodeWebhookBody(body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	for _, ev := range ParseWebhookBody(payload) {
		if h.onEvent != nil {
			h.onEvent(ev)
		}
	}
}

// DecodeWebhookBody unmarshals a raw webhook payload.
func DecodeWebhookBody(body []byte) (WebhookBody, error) {
	var payload WebhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookBody{}, fmt.Errorf("line: decode webhook body: %w", err)
	}
	return payload, nil
}

// ParseWebhookBody extracts canonical inbound events from a webhook
// body. Non-message and non-text events are skipped.
func ParseWebhookBody(payload WebhookBody) []events.InboundEvent {
	var out []events.InboundEvent

	for _, ev := range payload.Events {
		if ev.Type != "message" || ev.Message == nil || ev.Message.Type != "text" {
			continue
		}

		eventID := ev.WebhookEventID
		if eventID == "" {
			eventID = ev.Message.ID
		}
		groupID := ev.Source.GroupID
		if groupID == "" {
			groupID = ev.Source.RoomID
		}

		out = append(out, events.InboundEvent{
			EventID:    eventID,
			Channel:    events.ChannelLine,
			SenderID:   ev.Source.UserID,
			Origin:     events.Origin{GroupID: groupID},
			Text:       ev.Message.Text,
			ReceivedAt: time.UnixMilli(ev.Timestamp),
			ReplyToken: ev.ReplyToken,
		})
	}

	return out
}

// VerifySignature checks the X-Line-Signature header, a base64-encoded
// HMAC-SHA256 of the raw body keyed with the channel secret.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
