package router

import (
	"net/http"

	"github.com/bulkmail/bulkmail/internal/config"
	"github.com/bulkmail/bulkmail/internal/handler"
	"github.com/bulkmail/bulkmail/internal/middleware"
	"github.com/bulkmail/bulkmail/internal/realtime"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, hub *realtime.Hub, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Page and probes
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	// Progress stream
	mux.Handle("GET /ws", realtime.Handler(hub, cfg.Server.AllowedOrigins))

	// Read-only API
	mux.HandleFunc("GET /api/v1/state", h.GetState)
	mux.HandleFunc("GET /api/v1/recipients", h.ListRecipients)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)

	// Mutating API (rate limited)
	limit := mw.RateLimit(middleware.RateLimitConfig{
		Limit:  cfg.Security.RateLimiting.Limit,
		Window: cfg.Security.RateLimiting.Window,
		KeyFn:  middleware.IPKey,
	})
	mux.Handle("PUT /api/v1/template", limit(http.HandlerFunc(h.SetTemplate)))
	mux.Handle("POST /api/v1/recipients/refresh", limit(http.HandlerFunc(h.RefreshRecipients)))
	mux.Handle("POST /api/v1/recipients/upload", limit(http.HandlerFunc(h.UploadRecipients)))
	mux.Handle("POST /api/v1/auto-refresh", limit(http.HandlerFunc(h.SetAutoRefresh)))
	mux.Handle("POST /api/v1/send/start", limit(http.HandlerFunc(h.StartSend)))
	mux.Handle("POST /api/v1/send/stop", http.HandlerFunc(h.StopSend))

	// Panic recovery is outermost
	return middleware.Chain(mux,
		mw.Recover,
		mw.RequestID,
		mw.Logger,
		mw.SecurityHeaders,
		mw.CORS(cfg.Server.AllowedOrigins),
	)
}
