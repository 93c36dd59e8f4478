package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/bulkmail/bulkmail/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type indexData struct {
	FromName string
	Subject  string
	Provider string
	State    model.State
}

// Index renders the send form
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		FromName: h.cfg.Email.FromName,
		Subject:  h.cfg.Email.Subject,
		Provider: h.cfg.Email.Provider,
		State:    h.svc.State(),
	}

	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		h.log.Error().Err(err).Msg("failed to render index page")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
