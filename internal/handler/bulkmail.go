package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bulkmail/bulkmail/internal/model"
	"github.com/bulkmail/bulkmail/internal/recipient"
	"github.com/bulkmail/bulkmail/internal/repository"
	"github.com/bulkmail/bulkmail/internal/service"
)

// TemplateRequest is the body of PUT /api/v1/template
type TemplateRequest struct {
	Template string `json:"template"`
}

// AutoRefreshRequest is the body of POST /api/v1/auto-refresh
type AutoRefreshRequest struct {
	Enabled bool `json:"enabled"`
}

// StartResponse is returned when a run starts
type StartResponse struct {
	RunID string      `json:"runId"`
	State model.State `json:"state"`
}

// RecipientsResponse lists the loaded recipients
type RecipientsResponse struct {
	Source     string   `json:"source"`
	Count      int      `json:"count"`
	Recipients []string `json:"recipients"`
}

// RunDetailResponse is one run with its delivery attempts
type RunDetailResponse struct {
	Run        *model.Run       `json:"run"`
	Deliveries []model.Delivery `json:"deliveries"`
}

// handleServiceError maps service errors to HTTP responses
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		writeError(w, r, http.StatusConflict, "run_in_progress", "A send run is already in progress")
	case errors.Is(err, service.ErrNotRunning):
		writeError(w, r, http.StatusConflict, "not_running", "No send run is in progress")
	case errors.Is(err, service.ErrEmptyTemplate):
		writeError(w, r, http.StatusUnprocessableEntity, "empty_template", "Please enter an email template before sending")
	case errors.Is(err, service.ErrNoRecipients):
		writeError(w, r, http.StatusUnprocessableEntity, "no_recipients", "The recipient list is empty")
	case errors.Is(err, recipient.ErrUnsupportedFormat):
		writeError(w, r, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
	case errors.Is(err, service.ErrSourceFailed):
		writeError(w, r, http.StatusBadGateway, "source_failed", err.Error())
	case errors.Is(err, service.ErrHistoryDisabled):
		writeError(w, r, http.StatusServiceUnavailable, "history_disabled", "Run history is not enabled")
	case errors.Is(err, service.ErrRunNotFound), errors.Is(err, repository.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "Run not found")
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// GetState returns the current send state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.State())
}

// SetTemplate replaces the email template
func (h *Handler) SetTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.svc.SetTemplate(req.Template); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.State())
}

// RefreshRecipients reloads the list from the configured remote source
func (h *Handler) RefreshRecipients(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context()); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.State())
}

// UploadRecipients replaces the list with the addresses of an uploaded spreadsheet
func (h *Handler) UploadRecipients(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(h.cfg.Server.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "file_too_large", "The uploaded file is too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", "Expected a multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "missing_file", "The file field is required")
		return
	}
	defer file.Close()

	if err := h.svc.Upload(r.Context(), header.Filename, file); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.State())
}

// ListRecipients returns the loaded recipient list
func (h *Handler) ListRecipients(w http.ResponseWriter, r *http.Request) {
	list := h.svc.Recipients()
	writeJSON(w, http.StatusOK, RecipientsResponse{
		Source:     h.svc.State().Source,
		Count:      len(list),
		Recipients: list,
	})
}

// SetAutoRefresh toggles the periodic background refresh
func (h *Handler) SetAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var req AutoRefreshRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	h.svc.SetAutoRefresh(req.Enabled)
	writeJSON(w, http.StatusOK, h.svc.State())
}

// StartSend launches a send run
func (h *Handler) StartSend(w http.ResponseWriter, r *http.Request) {
	runID, err := h.svc.Start(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StartResponse{RunID: runID, State: h.svc.State()})
}

// StopSend halts the running send
func (h *Handler) StopSend(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Stop(); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.svc.State())
}

// ListRuns returns recent run history
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.svc.ListRuns(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun returns one run and its delivery attempts
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, deliveries, err := h.svc.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RunDetailResponse{Run: run, Deliveries: deliveries})
}
