package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/helixml/marginalia"
	"github.com/helixml/marginalia/infrastructure/api/middleware"
	"github.com/helixml/marginalia/infrastructure/api/v1/dto"
	"github.com/helixml/marginalia/infrastructure/sanitize"
)

// maxSanitizeBody caps the size of a chapter accepted for sanitizing.
const maxSanitizeBody = 16 << 20

// SanitizeRouter exposes the content sanitizer.
type SanitizeRouter struct {
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
}

// NewSanitizeRouter creates a new SanitizeRouter.
func NewSanitizeRouter(client *marginalia.Client) *SanitizeRouter {
	return &SanitizeRouter{
		sanitizer: client.Sanitizer,
		logger:    client.Logger(),
	}
}

// Routes returns the chi router for sanitizer endpoints.
func (r *SanitizeRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Post("/", r.Sanitize)
	return router
}

// Sanitize handles POST /api/v1/sanitize?base=. The body is an HTML
// chapter; relative stylesheet links resolve against base.
func (r *SanitizeRouter) Sanitize(w http.ResponseWriter, req *http.Request) {
	body := http.MaxBytesReader(w, req.Body, maxSanitizeBody)
	html, report, err := r.sanitizer.Sanitize(req.Context(), body, req.URL.Query().Get("base"), req.Header.Get("Content-Type"))
	if err != nil {
		middleware.WriteError(w, req, middleware.BadRequest("unreadable document", err), r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dto.SanitizeResponse{HTML: html, Report: report})
}
