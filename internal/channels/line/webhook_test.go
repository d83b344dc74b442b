package line

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luckygas/gasdesk/internal/events"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "test_channel_secret"
	body := []byte(`{"destination":"U0","events":[]}`)
	validSig := sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, sign("other_secret", body), false},
		{"tampered body", secret, []byte(`{"destination":"U0","events":[{}]}`), validSig, false},
		{"empty secret", "", body, validSig, false},
		{"empty signature", secret, body, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseWebhookBody(t *testing.T) {
	payload := WebhookBody{
		Destination: "U0",
		Events: []WebhookEvent{
			{
				Type:           "message",
				WebhookEventID: "ev-1",
				Timestamp:      1710054000000,
				ReplyToken:     "rt-1",
				Source:         Source{Type: "user", UserID: "U123"},
				Message:        &InboundMessage{ID: "m-1", Type: "text", Text: "訂 20kg 瓦斯兩桶"},
			},
			{
				Type:       "message",
				Timestamp:  1710054001000,
				ReplyToken: "rt-2",
				Source:     Source{Type: "group", UserID: "U456", GroupID: "C789"},
				Message:    &InboundMessage{ID: "m-2", Type: "text", Text: "庫存"},
			},
			{
				// Sticker messages carry no text and are skipped.
				Type:       "message",
				ReplyToken: "rt-3",
				Source:     Source{Type: "user", UserID: "U123"},
				Message:    &InboundMessage{ID: "m-3", Type: "sticker"},
			},
			{
				Type:   "follow",
				Source: Source{Type: "user", UserID: "U123"},
			},
		},
	}

	parsed := ParseWebhookBody(payload)
	if len(parsed) != 2 {
		t.Fatalf("expected 2 events, got %d", len(parsed))
	}

	first := parsed[0]
	if first.EventID != "ev-1" {
		t.Errorf("expected webhookEventId as event id, got %q", first.EventID)
	}
	if first.Channel != events.ChannelLine || first.SenderID != "U123" {
		t.Errorf("unexpected identity: %+v", first)
	}
	if first.Text != "訂 20kg 瓦斯兩桶" || first.ReplyToken != "rt-1" {
		t.Errorf("unexpected content: %+v", first)
	}
	if !first.Origin.IsDirect() {
		t.Error("user message should be direct")
	}

	second := parsed[1]
	if second.Origin.GroupID != "C789" {
		t.Errorf("expected group origin, got %+v", second.Origin)
	}
	if second.SenderID != "U456" {
		t.Errorf("group events should keep the individual sender, got %q", second.SenderID)
	}
	if second.EventID != "m-2" {
		t.Errorf("expected message id fallback for event id, got %q", second.EventID)
	}
}

func TestHandleInbound_ValidSignature(t *testing.T) {
	secret := "test_channel_secret"
	var received []events.InboundEvent
	handler := NewWebhookHandler(secret, func(ev events.InboundEvent) {
		received = append(received, ev)
	}, nil)

	body, _ := json.Marshal(WebhookBody{
		Events: []WebhookEvent{{
			Type:       "message",
			ReplyToken: "rt-1",
			Source:     Source{Type: "user", UserID: "U123"},
			Message:    &InboundMessage{ID: "m-1", Type: "text", Text: "你好"},
		}},
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", sign(secret, body))
	rec := httptest.NewRecorder()

	handler.HandleInbound(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if len(received) != 1 || received[0].Text != "你好" {
		t.Errorf("expected one parsed event, got %+v", received)
	}
}

func TestHandleInbound_RejectsBadSignature(t *testing.T) {
	var received []events.InboundEvent
	handler := NewWebhookHandler("test_channel_secret", func(ev events.InboundEvent) {
		received = append(received, ev)
	}, nil)

	body := []byte(`{"events":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", sign("wrong_secret", body))
	rec := httptest.NewRecorder()

	handler.HandleInbound(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if len(received) != 0 {
		t.Error("no events should be delivered on bad signature")
	}
}

func TestHandleInbound_RejectsMalformedBody(t *testing.T) {
	secret := "test_channel_secret"
	handler := NewWebhookHandler(secret, nil, nil)

	body := []byte(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", sign(secret, body))
	rec := httptest.NewRecorder()

	handler.HandleInbound(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
