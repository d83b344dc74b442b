package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIBase     = "https://api.line.me"
	defaultHTTPTimeout = 10 * time.Second

	// The reply API caps one reply token at five messages.
	maxMessagesPerReply = 5
)

// Client sends messages via the LINE Messaging API.
type Client struct {
	channelToken string
	apiBase      string
	httpClient   *http.Client
}

// NewClient creates a Messaging API client authenticated with the
// channel access token.
func NewClient(channelToken string) *Client {
	return &Client{
		channelToken: channelToken,
		apiBase:      defaultAPIBase,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetAPIBase overrides the API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = base
}

// Reply sends messages against a reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, messages []OutboundMessage) error {
	if len(messages) > maxMessagesPerReply {
		messages = messages[:maxMessagesPerReply]
	}
	return c.post(ctx, "/v2/bot/message/reply", ReplyRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
}

// Push sends messages directly to a user or group, for replies after the
// reply token has expired and for operator-initiated messages.
func (c *Client) Push(ctx context.Context, to string, messages []OutboundMessage) error {
	if len(messages) > maxMessagesPerReply {
		messages = messages[:maxMessagesPerReply]
	}
	return c.post(ctx, "/v2/bot/message/push", PushRequest{
		To:       to,
		Messages: messages,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("line: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("line: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("line: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("line: status %d, read response: %w", resp.StatusCode, err)
	}
	var apiErr APIError
	if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("line: API error %d: %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("line: unexpected status %d: %s", resp.StatusCode, string(respBody))
}
