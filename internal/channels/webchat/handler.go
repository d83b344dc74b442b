// Package webchat serves the browser chat channel used by back-office
// staff. Messages arrive over WebSocket (with an HTTP fallback), get
// enqueued as canonical inbound events, and replies are pushed back to
// the open connection.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/internal/transcript"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// Publisher enqueues inbound events for the turn workers.
type Publisher interface {
	Enqueue(ctx context.Context, ev events.InboundEvent) error
}

// TranscriptReader reads chat history for reconnecting sessions.
type TranscriptReader interface {
	List(ctx context.Context, key string) ([]transcript.Entry, error)
}

// Handler manages webchat connections and messages.
type Handler struct {
	publisher  Publisher
	transcript TranscriptReader
	logger     *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*wsConn // conversation key -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// InboundMessage is what the browser widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type         string           `json:"type"` // "message", "typing", "history", "session", "pong", "error"
	Text         string           `json:"text,omitempty"`
	Role         string           `json:"role,omitempty"` // "assistant" or "user"
	SessionID    string           `json:"session_id,omitempty"`
	Timestamp    string           `json:"timestamp,omitempty"`
	QuickReplies []string         `json:"quick_replies,omitempty"`
	Messages     []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a webchat handler.
func NewHandler(publisher Publisher, transcriptStore TranscriptReader, logger *logging.Logger) *Handler {
	if publisher == nil {
		panic("webchat: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		publisher:  publisher,
		transcript: transcriptStore,
		logger:     logger,
		sessions:   make(map[string]*wsConn),
	}
}

// conversationKey builds the canonical key for a webchat session.
func conversationKey(sessionID string) string {
	return events.InboundEvent{
		Channel:  events.ChannelWebchat,
		SenderID: sessionID,
	}.ConversationKey()
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	convKey := conversationKey(sessionID)

	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:      "session",
		SessionID: sessionID,
	})

	if h.transcript != nil {
		if entries, err := h.transcript.List(r.Context(), convKey); err == nil && len(entries) > 0 {
			history := make([]HistoryMessage, 0, len(entries))
			for _, e := range entries {
				role := "assistant"
				if e.Role == "user" {
					role = "user"
				}
				history = append(history, HistoryMessage{
					Role:      role,
					Text:      e.Text,
					Timestamp: e.At.Format(time.RFC3339),
				})
			}
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history})
		}
	}

	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.sessions[convKey] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[convKey] == wsc {
			delete(h.sessions, convKey)
		}
		h.mu.Unlock()
		close(wsc.done)
	}()

	h.logger.Info("webchat connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat connection closed", "session_id", sessionID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		h.processMessage(r.Context(), sessionID, msg.Text)
	}
}

func (h *Handler) processMessage(ctx context.Context, sessionID, text string) {
	convKey := conversationKey(sessionID)

	h.SendToSession(convKey, OutboundMessage{Type: "typing"})

	ev := events.InboundEvent{
		EventID:    events.NewEventID(),
		Channel:    events.ChannelWebchat,
		SenderID:   sessionID,
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}
	if err := h.publisher.Enqueue(ctx, ev); err != nil {
		h.logger.Error("webchat enqueue failed", "error", err, "session_id", sessionID)
		h.SendToSession(convKey, OutboundMessage{
			Type: "error",
			Text: "系統忙線中,請稍後再試。",
		})
	}
}

// SendToSession sends a message to an active WebSocket session. Messages
// for sessions without a live connection are dropped; the transcript
// still has them when the widget reconnects.
func (h *Handler) SendToSession(convKey string, msg OutboundMessage) {
	h.mu.RLock()
	wsc, ok := h.sessions[convKey]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = websocket.JSON.Send(wsc.conn, msg)
}

// HandleMessage is the HTTP fallback for sending messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	h.processMessage(r.Context(), req.SessionID, req.Text)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "queued",
		"session_id": req.SessionID,
	})
}
