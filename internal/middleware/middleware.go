package middleware

import (
	"net/http"

	"github.com/bulkmail/bulkmail/internal/config"
	"github.com/bulkmail/bulkmail/internal/database"
	"github.com/bulkmail/bulkmail/internal/logger"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	rdb   *database.Redis
	log   *logger.Logger
	cfg   *config.Config
	local *localLimiter
}

// New creates a new Middleware instance. rdb may be nil, in which case rate
// limiting falls back to an in-process limiter.
func New(rdb *database.Redis, log *logger.Logger, cfg *config.Config) *Middleware {
	return &Middleware{
		rdb:   rdb,
		log:   log.WithComponent("http"),
		cfg:   cfg,
		local: newLocalLimiter(),
	}
}

// Chain applies mws so that the first one is the outermost
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
