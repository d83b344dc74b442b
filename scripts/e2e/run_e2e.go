// Package main runs end-to-end tests of the LINE chat flows against a
// running API instance.
//
// Events are posted to the webhook with a real channel-secret signature,
// and outcomes are observed through the admin API: the conversation
// transcript records both sides of every turn, so each scenario polls the
// transcript until the expected bot reply shows up.
//
// Scenarios:
//   - order-happy-path: slot filling to a confirmed order
//   - order-cancel: bailing out of an active flow
//   - order-status: unlinked sender gets the bind prompt
//   - public-denied: a stranger tries an employee operation
//   - human-handoff: customer asks for a person
//
// Usage:
//
//	LINE_CHANNEL_SECRET=... ADMIN_JWT_SECRET=... go run scripts/e2e/run_e2e.go            # runs all
//	LINE_CHANNEL_SECRET=... ADMIN_JWT_SECRET=... go run scripts/e2e/run_e2e.go order-cancel
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type client struct {
	baseURL       string
	channelSecret string
	adminToken    string
	http          *http.Client
}

type scenario struct {
	name string
	run  func(c *client) error
}

func main() {
	channelSecret := os.Getenv("LINE_CHANNEL_SECRET")
	adminSecret := os.Getenv("ADMIN_JWT_SECRET")
	if channelSecret == "" || adminSecret == "" {
		fmt.Println("LINE_CHANNEL_SECRET and ADMIN_JWT_SECRET are required")
		os.Exit(1)
	}
	baseURL := os.Getenv("API_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	adminToken, err := signAdminToken(adminSecret)
	if err != nil {
		fmt.Printf("sign admin token: %v\n", err)
		os.Exit(1)
	}

	c := &client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		channelSecret: channelSecret,
		adminToken:    adminToken,
		http:          &http.Client{Timeout: 15 * time.Second},
	}

	scenarios := []scenario{
		{"order-happy-path", runOrderHappyPath},
		{"order-cancel", runOrderCancel},
		{"order-status", runOrderStatus},
		{"public-denied", runPublicDenied},
		{"human-handoff", runHumanHandoff},
	}

	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	failed := 0
	for _, s := range scenarios {
		if only != "" && s.name != only {
			continue
		}
		fmt.Printf("=== %s\n", s.name)
		if err := s.run(c); err != nil {
			fmt.Printf("    FAIL: %v\n", err)
			failed++
		} else {
			fmt.Println("    PASS")
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func signAdminToken(secret string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "e2e",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// uniqueSender gives every run fresh conversation state.
func uniqueSender(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
}

func runOrderHappyPath(c *client) error {
	sender := uniqueSender("Ue2e")
	convKey := "line:user:" + sender

	if err := c.sendText(sender, "", "訂 20kg 瓦斯兩桶"); err != nil {
		return err
	}
	if err := c.waitForReply(convKey, "地址"); err != nil {
		return fmt.Errorf("expected address prompt: %w", err)
	}

	if err := c.sendText(sender, "", "台北市中山區南京東路 100 號"); err != nil {
		return err
	}
	if err := c.waitForReply(convKey, "確認"); err != nil {
		return fmt.Errorf("expected confirmation summary: %w", err)
	}

	if err := c.sendText(sender, "", "確認"); err != nil {
		return err
	}
	if err := c.waitForReply(convKey, "已成立"); err != nil {
		return fmt.Errorf("expected order confirmation: %w", err)
	}

	orders, err := c.adminGet("/admin/orders?limit=5")
	if err != nil {
		return err
	}
	if !strings.Contains(orders, sender) {
		return fmt.Errorf("new order for %s not visible in /admin/orders", sender)
	}

	return c.purge(convKey)
}

func runOrderCancel(c *client) error {
	sender := uniqueSender("Ue2e")
	convKey := "line:user:" + sender

	if err := c.sendText(sender, "", "我要訂瓦斯"); err != nil {
		return err
	}
	if err := c.waitForReply(convKey, "哪一種"); err != nil {
		return fmt.Errorf("expected product prompt: %w", err)
	}

	if err := c.sendText(sender, "", "取消"); err != nil {
		return err
	}
	if err := c.waitForReply(convKey, "已取消"); err != nil {
		return fmt.Errorf("expected cancel acknowledgement: %w", err)
	}

	return c.purge(convKey)
}

func runOrderStatus(c *client) error {
	sender := uniqueSender("Ue2e")
	convKey := "line:user:" + sender

	// An unlinked sender asking for order status gets the bind prompt
	// rather than someone else's orders.
	if err := c.sendText(sender, "", "我的訂單到哪了"); err != nil {
		return err
	}
	if err := c.waitForReply(convKey, "綁定"); err != nil {
		return fmt.Errorf("expected bind prompt for unlinked sender: %w", err)
	}

	return c.purge(convKey)
}

func runPublicDenied(c *client) error {
	sender := uniqueSender("Upublic")
	convKey := "line:user:" + sender

	before, err := c.adminGet("/admin/inventory")
	if err != nil {
		return err
	}

	if err := c.sendText(sender, "", "庫存 20kg +5"); err != nil {
		return err
	}
	if err := c.waitForReply(convKey, "權限"); err != nil {
		return fmt.Errorf("expected permission denial: %w", err)
	}

	after, err := c.adminGet("/admin/inventory")
	if err != nil {
		return err
	}
	if before != after {
		return fmt.Errorf("inventory changed after denied request")
	}

	return c.purge(convKey)
}

func runHumanHandoff(c *client) error {
	sender := uniqueSender("Ue2e")
	convKey := "line:user:" + sender

	if err := c.sendText(sender, "", "我要找人工客服"); err != nil {
		return err
	}
	if err := c.waitForReply(convKey, "人員"); err != nil {
		return fmt.Errorf("expected handoff acknowledgement: %w", err)
	}

	return c.purge(convKey)
}

// sendText posts a signed LINE webhook with a single text message event.
func (c *client) sendText(senderID, groupID, text string) error {
	source := map[string]any{"type": "user", "userId": senderID}
	if groupID != "" {
		source = map[string]any{"type": "group", "userId": senderID, "groupId": groupID}
	}
	payload := map[string]any{
		"destination": "e2e",
		"events": []map[string]any{
			{
				"type":           "message",
				"webhookEventId": fmt.Sprintf("e2e-%d", time.Now().UnixNano()),
				"timestamp":      time.Now().UnixMilli(),
				"source":         source,
				"message":        map[string]any{"id": fmt.Sprintf("m%d", time.Now().UnixNano()), "type": "text", "text": text},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, []byte(c.channelSecret))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/webhooks/line", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, raw)
	}
	return nil
}

// waitForReply polls the transcript until a bot message containing want
// appears, or times out.
func (c *client) waitForReply(convKey, want string) error {
	deadline := time.Now().Add(20 * time.Second)
	path := "/admin/conversations/" + url.PathEscape(convKey)
	var last string
	for time.Now().Before(deadline) {
		body, err := c.adminGet(path)
		if err == nil {
			last = body
			var detail struct {
				Messages []struct {
					Role string `json:"role"`
					Text string `json:"text"`
				} `json:"messages"`
			}
			if json.Unmarshal([]byte(body), &detail) == nil {
				for _, m := range detail.Messages {
					if m.Role == "bot" && strings.Contains(m.Text, want) {
						return nil
					}
				}
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("no bot reply containing %q (last transcript: %s)", want, last)
}

func (c *client) adminGet(path string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.adminToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("not found")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, body)
	}
	return string(body), nil
}

func (c *client) purge(convKey string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/admin/conversations/"+url.PathEscape(convKey), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.adminToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
