package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inventorycmdb/server/internal/sync"
)

// Config holds API router configuration
type Config struct {
	Store           Store
	Scheduler       *sync.Scheduler
	RenderCacheSize int
	WebhookSecret   string
	WebhookBranch   string
	Logger          *slog.Logger
}

// NewRouter creates a new HTTP router with all API routes
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()

	// Base middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// A nil scheduler must stay a nil interface
	var refresher Refresher
	if cfg.Scheduler != nil {
		refresher = cfg.Scheduler
	}

	handlers, err := NewHandlers(cfg.Store, refresher, cfg.RenderCacheSize, cfg.Logger)
	if err != nil {
		return nil, err
	}

	// Health and utility endpoints (no version prefix)
	r.Get("/health", handlers.Health)
	r.Get("/ping", handlers.Ping)
	r.Get("/version", handlers.Version)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Webhook endpoint, only with a secret to check signatures against
	if cfg.WebhookSecret != "" && refresher != nil {
		webhookHandler := sync.NewWebhookHandler(
			cfg.WebhookSecret,
			refresher,
			cfg.WebhookBranch,
			cfg.Logger,
		)
		r.Post("/webhooks/github", webhookHandler.ServeHTTP)
	}

	r.Route("/api/v1", handlers.mountAPI)

	return r, nil
}

func (h *Handlers) mountAPI(r chi.Router) {
	r.Get("/inventories", h.ListInventories)
	r.Get("/inventories/{inventory}", h.GetInventory)
	r.Get("/inventories/{inventory}/hosts/{host}", h.GetHost)
	r.Get("/inventories/{inventory}/groups/{group}", h.GetGroup)

	r.Post("/refresh", h.Refresh)
}
