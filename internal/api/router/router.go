// Package router assembles the HTTP surface of the API process: channel
// webhooks, the webchat socket, health/metrics, and the JWT-protected
// back-office endpoints.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/luckygas/gasdesk/internal/channels/line"
	"github.com/luckygas/gasdesk/internal/channels/webchat"
	"github.com/luckygas/gasdesk/internal/http/handlers"
	httpmiddleware "github.com/luckygas/gasdesk/internal/http/middleware"
	"github.com/luckygas/gasdesk/internal/observability/metrics"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	LineWebhook    *line.WebhookHandler
	WebchatHandler *webchat.Handler

	Health             *handlers.HealthHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminBindings      *handlers.AdminBindingsHandler
	AdminInventory     *handlers.AdminInventoryHandler
	AdminOrders        *handlers.AdminOrdersHandler

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	ChannelMetrics     *metrics.ChannelMetrics
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: webhooks, webchat, health, metrics.
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Check)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.LineWebhook != nil {
			rate, burst := cfg.WebhookRateLimit, cfg.WebhookRateBurst
			if rate <= 0 {
				rate, burst = 20, 40
			}
			public.With(httpmiddleware.RateLimit(rate, burst)).
				Post("/webhooks/line", observeWebhook(cfg.ChannelMetrics, "line", cfg.LineWebhook.HandleInbound))
		}
		if cfg.WebchatHandler != nil {
			public.Route("/chat", func(r chi.Router) {
				r.Get("/ws", cfg.WebchatHandler.HandleWebSocket)
				r.Post("/message", cfg.WebchatHandler.HandleMessage)
			})
		}
	})

	// Back-office endpoints, JWT-protected.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.AdminConversations != nil {
				admin.Get("/conversations", cfg.AdminConversations.List)
				admin.Get("/conversations/{key}", cfg.AdminConversations.Get)
				admin.Delete("/conversations/{key}", cfg.AdminConversations.Delete)
				admin.Post("/conversations/expire", cfg.AdminConversations.Expire)
			}
			if cfg.AdminBindings != nil {
				admin.Post("/bindings", cfg.AdminBindings.Create)
				admin.Get("/bindings/{channel}/{senderID}", cfg.AdminBindings.Resolve)
				admin.Delete("/bindings/{channel}/{senderID}", cfg.AdminBindings.Delete)
			}
			if cfg.AdminInventory != nil {
				admin.Get("/inventory", cfg.AdminInventory.List)
			}
			if cfg.AdminOrders != nil {
				admin.Get("/orders", cfg.AdminOrders.List)
			}
		})
	}

	return r
}

// observeWebhook records inbound webhook counts and latency per channel.
func observeWebhook(m *metrics.ChannelMetrics, channel string, next http.HandlerFunc) http.HandlerFunc {
	if m == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r)
		status := "ok"
		if ww.Status() >= 400 {
			status = "error"
		}
		m.ObserveInbound(channel, status)
		m.ObserveWebhookLatency(channel, time.Since(start).Seconds())
	}
}
