package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/luckygas/gasdesk/internal/bot/state"
	"github.com/luckygas/gasdesk/internal/transcript"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// TranscriptStore is the subset of the transcript store the admin API
// reads.
type TranscriptStore interface {
	Keys(ctx context.Context) ([]string, error)
	List(ctx context.Context, key string) ([]transcript.Entry, error)
	Delete(ctx context.Context, key string) error
}

// AdminConversationsHandler serves the back-office conversation review
// endpoints over the Redis transcript store and the dialog state store.
type AdminConversationsHandler struct {
	transcripts TranscriptStore
	states      state.Store
	logger      *logging.Logger
}

func NewAdminConversationsHandler(transcripts TranscriptStore, states state.Store, logger *logging.Logger) *AdminConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{
		transcripts: transcripts,
		states:      states,
		logger:      logger,
	}
}

// ConversationListResponse lists conversations with a live transcript.
type ConversationListResponse struct {
	Conversations []string `json:"conversations"`
	Total         int      `json:"total"`
}

// ConversationDetailResponse is one conversation's transcript.
type ConversationDetailResponse struct {
	ConversationKey string            `json:"conversation_key"`
	Messages        []MessageResponse `json:"messages"`
}

// MessageResponse is one transcript entry.
type MessageResponse struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// List handles GET /admin/conversations.
func (h *AdminConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		writeError(w, http.StatusServiceUnavailable, "transcript store not configured")
		return
	}
	keys, err := h.transcripts.Keys(r.Context())
	if err != nil {
		h.logger.Error("admin: list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, ConversationListResponse{
		Conversations: keys,
		Total:         len(keys),
	})
}

// Get handles GET /admin/conversations/{key}. The key is URL-escaped
// because conversation keys contain colons.
func (h *AdminConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		writeError(w, http.StatusServiceUnavailable, "transcript store not configured")
		return
	}
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid conversation key")
		return
	}

	entries, err := h.transcripts.List(r.Context(), key)
	if err != nil {
		h.logger.Error("admin: load transcript failed", "error", err, "conversation_key", key)
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	messages := make([]MessageResponse, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, MessageResponse{
			Role:      e.Role,
			Text:      e.Text,
			Timestamp: e.At.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, ConversationDetailResponse{
		ConversationKey: key,
		Messages:        messages,
	})
}

// Expire handles POST /admin/conversations/expire. It sweeps dialog state
// idle for longer than older_than_minutes (default: the standard idle TTL)
// and reports how many conversations were dropped. Loads already treat
// stale state as fresh; the sweep reclaims storage on demand.
func (h *AdminConversationsHandler) Expire(w http.ResponseWriter, r *http.Request) {
	if h.states == nil {
		writeError(w, http.StatusServiceUnavailable, "state store not configured")
		return
	}

	window := state.DefaultTTL
	if raw := r.URL.Query().Get("older_than_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			writeError(w, http.StatusBadRequest, "older_than_minutes must be a positive integer")
			return
		}
		window = time.Duration(minutes) * time.Minute
	}

	removed, err := h.states.Expire(r.Context(), time.Now().Add(-window))
	if err != nil {
		h.logger.Error("admin: expire conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to expire conversations")
		return
	}
	h.logger.Info("admin: conversations expired", "removed", removed)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// Delete handles DELETE /admin/conversations/{key}. It forces the dialog
// state back to idle and purges the live transcript. Archived copies in S3
// are left alone.
func (h *AdminConversationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil && h.states == nil {
		writeError(w, http.StatusServiceUnavailable, "conversation stores not configured")
		return
	}
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid conversation key")
		return
	}

	if h.states != nil {
		conv, err := h.states.Load(r.Context(), key)
		if err != nil {
			h.logger.Error("admin: load conversation failed", "error", err, "conversation_key", key)
			writeError(w, http.StatusInternalServerError, "failed to reset conversation")
			return
		}
		if !conv.Idle() {
			conv.Reset()
			if err := h.states.Save(r.Context(), conv); err != nil {
				h.logger.Error("admin: reset conversation failed", "error", err, "conversation_key", key)
				writeError(w, http.StatusInternalServerError, "failed to reset conversation")
				return
			}
		}
	}

	if h.transcripts != nil {
		if err := h.transcripts.Delete(r.Context(), key); err != nil {
			h.logger.Error("admin: purge transcript failed", "error", err, "conversation_key", key)
			writeError(w, http.StatusInternalServerError, "failed to purge transcript")
			return
		}
	}
	h.logger.Info("admin: conversation reset", "conversation_key", key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
