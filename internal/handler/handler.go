package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bulkmail/bulkmail/internal/config"
	"github.com/bulkmail/bulkmail/internal/database"
	"github.com/bulkmail/bulkmail/internal/logger"
	"github.com/bulkmail/bulkmail/internal/middleware"
	"github.com/bulkmail/bulkmail/internal/service"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Handler holds all HTTP handlers
type Handler struct {
	db  *database.Postgres
	rdb *database.Redis
	log *logger.Logger
	cfg *config.Config
	svc *service.BulkMailService
}

// New creates a new Handler instance. db and rdb are nil when disabled.
func New(db *database.Postgres, rdb *database.Redis, log *logger.Logger, cfg *config.Config, svc *service.BulkMailService) *Handler {
	return &Handler{
		db:  db,
		rdb: rdb,
		log: log.WithComponent("handler"),
		cfg: cfg,
		svc: svc,
	}
}

// JSON helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if reqID := middleware.GetRequestID(r.Context()); reqID != "" {
		body["request_id"] = reqID
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
