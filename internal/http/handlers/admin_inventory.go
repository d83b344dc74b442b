package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/luckygas/gasdesk/internal/bot/action"
	"github.com/luckygas/gasdesk/internal/store"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// InventoryReader is the subset of the store the inventory view needs.
type InventoryReader interface {
	Levels(ctx context.Context) ([]action.StockLevel, error)
}

// OrderReader lists orders for the back-office view.
type OrderReader interface {
	RecentOrders(ctx context.Context, limit int) ([]store.AdminOrder, error)
}

// StockLevelResponse is one product's on-hand count.
type StockLevelResponse struct {
	Product string `json:"product"`
	OnHand  int    `json:"on_hand"`
}

// AdminInventoryHandler serves the stock level view.
type AdminInventoryHandler struct {
	inventory InventoryReader
	logger    *logging.Logger
}

func NewAdminInventoryHandler(inventory InventoryReader, logger *logging.Logger) *AdminInventoryHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminInventoryHandler{inventory: inventory, logger: logger}
}

// List handles GET /admin/inventory.
func (h *AdminInventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.inventory == nil {
		writeError(w, http.StatusServiceUnavailable, "inventory store not configured")
		return
	}
	levels, err := h.inventory.Levels(r.Context())
	if err != nil {
		h.logger.Error("admin: list inventory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load inventory")
		return
	}
	out := make([]StockLevelResponse, 0, len(levels))
	for _, lv := range levels {
		out = append(out, StockLevelResponse{Product: lv.Product, OnHand: lv.OnHand})
	}
	writeJSON(w, http.StatusOK, map[string]any{"levels": out})
}

// AdminOrdersHandler serves the recent order listing.
type AdminOrdersHandler struct {
	orders OrderReader
	logger *logging.Logger
}

func NewAdminOrdersHandler(orders OrderReader, logger *logging.Logger) *AdminOrdersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminOrdersHandler{orders: orders, logger: logger}
}

// List handles GET /admin/orders.
func (h *AdminOrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeError(w, http.StatusServiceUnavailable, "order store not configured")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	orders, err := h.orders.RecentOrders(r.Context(), limit)
	if err != nil {
		h.logger.Error("admin: list orders failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  len(orders),
	})
}
