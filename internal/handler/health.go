package handler

import (
	"context"
	"net/http"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// checks returns the enabled backing services
func (h *Handler) checks() map[string]healthChecker {
	out := make(map[string]healthChecker)
	if h.db != nil {
		out["postgres"] = h.db
	}
	if h.rdb != nil {
		out["redis"] = h.rdb
	}
	return out
}

// Health returns the health status of the service and its enabled dependencies
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	services := make(map[string]string)
	status := "healthy"
	for name, c := range h.checks() {
		if err := c.HealthCheck(ctx); err != nil {
			services[name] = "unhealthy"
			status = "degraded"
			continue
		}
		services[name] = "healthy"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:   status,
		Version:  Version,
		Services: services,
	})
}

// Ready returns whether the service is ready to accept requests
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	for name, c := range h.checks() {
		if err := c.HealthCheck(ctx); err != nil {
			h.log.Warn().Err(err).Str("service", name).Msg("readiness check failed")
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
