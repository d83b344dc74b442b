package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/internal/queue"
	"github.com/luckygas/gasdesk/pkg/logging"
)

const testSecret = "test-channel-secret"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func testHandler() (*handler, *queue.MemoryQueue) {
	q := queue.NewMemoryQueue(16)
	return &handler{
		channelSecret: testSecret,
		publisher:     queue.NewEventPublisher(q),
		logger:        logging.New("error"),
		enqueueWait:   time.Second,
	}, q
}

func postRequest(path string, body []byte, headers map[string]string) lambdaevents.APIGatewayV2HTTPRequest {
	evt := lambdaevents.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    string(body),
		Headers: headers,
	}
	evt.RequestContext.HTTP.Method = http.MethodPost
	return evt
}

func webhookBody(t *testing.T) []byte {
	t.Helper()
	payload := map[string]any{
		"destination": "U0000",
		"events": []map[string]any{
			{
				"type":           "message",
				"webhookEventId": "evt-1",
				"timestamp":      1757400000000,
				"replyToken":     "rt-1",
				"source":         map[string]any{"type": "user", "userId": "U123"},
				"message":        map[string]any{"id": "m1", "type": "text", "text": "訂 20kg 瓦斯兩桶"},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	h, _ := testHandler()
	evt := lambdaevents.APIGatewayV2HTTPRequest{RawPath: "/health"}
	evt.RequestContext.HTTP.Method = http.MethodGet

	resp, err := h.handle(context.Background(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleRejectsNonPost(t *testing.T) {
	h, _ := testHandler()
	evt := lambdaevents.APIGatewayV2HTTPRequest{RawPath: "/webhooks/line"}
	evt.RequestContext.HTTP.Method = http.MethodGet

	resp, _ := h.handle(context.Background(), evt)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHandleRejectsUnknownPath(t *testing.T) {
	h, _ := testHandler()
	resp, _ := h.handle(context.Background(), postRequest("/webhooks/other", nil, nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleRejectsBadSignature(t *testing.T) {
	h, q := testHandler()
	body := webhookBody(t)

	resp, _ := h.handle(context.Background(), postRequest("/webhooks/line", body, map[string]string{
		"x-line-signature": sign("wrong-secret", body),
	}))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if msgs, _ := q.Receive(drainCtx, 10, 0); len(msgs) != 0 {
		t.Fatalf("expected nothing enqueued, got %d", len(msgs))
	}
}

func TestHandleEnqueuesValidEvents(t *testing.T) {
	h, q := testHandler()
	body := webhookBody(t)

	resp, err := h.handle(context.Background(), postRequest("/webhooks/line", body, map[string]string{
		"X-Line-Signature": sign(testSecret, body),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	msgs, err := q.Receive(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one enqueued event, got %d", len(msgs))
	}

	var ev events.InboundEvent
	if err := json.Unmarshal([]byte(msgs[0].Body), &ev); err != nil {
		t.Fatalf("decode enqueued event: %v", err)
	}
	if ev.EventID != "evt-1" || ev.SenderID != "U123" || ev.Text != "訂 20kg 瓦斯兩桶" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestHandleDecodesBase64Body(t *testing.T) {
	h, q := testHandler()
	body := webhookBody(t)

	evt := postRequest("/webhooks/line", []byte(base64.StdEncoding.EncodeToString(body)), map[string]string{
		"x-line-signature": sign(testSecret, body),
	})
	evt.IsBase64Encoded = true

	resp, err := h.handle(context.Background(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if msgs, _ := q.Receive(context.Background(), 10, 1); len(msgs) != 1 {
		t.Fatalf("expected one enqueued event, got %d", len(msgs))
	}
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	h, _ := testHandler()
	body := []byte("{not json")

	resp, _ := h.handle(context.Background(), postRequest("/webhooks/line", body, map[string]string{
		"x-line-signature": sign(testSecret, body),
	}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
