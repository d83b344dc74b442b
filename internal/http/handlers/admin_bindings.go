package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luckygas/gasdesk/internal/bot/identity"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// AdminBindingsHandler manages sender-to-customer bindings from the back
// office, for walk-in registrations and support corrections.
type AdminBindingsHandler struct {
	linker *identity.Linker
	logger *logging.Logger
}

func NewAdminBindingsHandler(linker *identity.Linker, logger *logging.Logger) *AdminBindingsHandler {
	if linker == nil {
		panic("handlers: linker cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminBindingsHandler{linker: linker, logger: logger}
}

// Create handles POST /admin/bindings.
func (h *AdminBindingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel    string `json:"channel"`
		SenderID   string `json:"sender_id"`
		CustomerID int64  `json:"customer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Channel == "" || req.SenderID == "" || req.CustomerID == 0 {
		writeError(w, http.StatusBadRequest, "channel, sender_id and customer_id are required")
		return
	}

	if err := h.linker.BindSender(r.Context(), req.Channel, req.SenderID, req.CustomerID); err != nil {
		h.logger.Error("admin: bind failed", "error", err,
			"channel", req.Channel, "sender_id", req.SenderID)
		writeError(w, http.StatusInternalServerError, "failed to create binding")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "bound"})
}

// Delete handles DELETE /admin/bindings/{channel}/{senderID}.
func (h *AdminBindingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	senderID := chi.URLParam(r, "senderID")
	if channel == "" || senderID == "" {
		writeError(w, http.StatusBadRequest, "channel and senderID are required")
		return
	}

	removed, err := h.linker.Unbind(r.Context(), channel, senderID)
	if err != nil {
		h.logger.Error("admin: unbind failed", "error", err,
			"channel", channel, "sender_id", senderID)
		writeError(w, http.StatusInternalServerError, "failed to remove binding")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "binding not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unbound"})
}

// Resolve handles GET /admin/bindings/{channel}/{senderID}, showing what
// the bot currently knows about a sender.
func (h *AdminBindingsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	senderID := chi.URLParam(r, "senderID")
	if channel == "" || senderID == "" {
		writeError(w, http.StatusBadRequest, "channel and senderID are required")
		return
	}

	link, err := h.linker.Resolve(r.Context(), channel, senderID)
	if err != nil {
		h.logger.Error("admin: resolve failed", "error", err,
			"channel", channel, "sender_id", senderID)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, BindingResponse{
		Status:       string(link.Status),
		CustomerID:   link.CustomerID,
		CustomerName: link.CustomerName,
		Phone:        link.Phone,
	})
}

// BindingResponse is the admin view of a sender's link.
type BindingResponse struct {
	Status       string `json:"status"`
	CustomerID   int64  `json:"customer_id,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
}
