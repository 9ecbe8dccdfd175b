package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/helixml/marginalia"
	"github.com/helixml/marginalia/domain/cfi"
	"github.com/helixml/marginalia/infrastructure/api/middleware"
	"github.com/helixml/marginalia/infrastructure/api/v1/dto"
)

// CFIRouter exposes the identifier comparator.
type CFIRouter struct {
	comparator *cfi.Comparator
	logger     *slog.Logger
}

// NewCFIRouter creates a new CFIRouter.
func NewCFIRouter(client *marginalia.Client) *CFIRouter {
	return &CFIRouter{
		comparator: client.Comparator(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for identifier endpoints.
func (r *CFIRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Post("/compare", r.Compare)
	return router
}

// Compare handles POST /api/v1/cfi/compare. Malformed identifiers are
// reported as invalid, not rejected.
func (r *CFIRouter) Compare(w http.ResponseWriter, req *http.Request) {
	var body dto.CompareRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, Compare(r.comparator, body.A, body.B))
}

// Compare relates two identifiers.
func Compare(c *cfi.Comparator, a, b string) dto.CompareResponse {
	return dto.NewCompareResponse(a, b, c.Relate(a, b))
}
