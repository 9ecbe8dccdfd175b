// Package v1 provides the v1 API routes.
package v1

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/helixml/marginalia"
	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/cfi"
	"github.com/helixml/marginalia/infrastructure/api/jsonapi"
	"github.com/helixml/marginalia/infrastructure/api/middleware"
	"github.com/helixml/marginalia/infrastructure/api/v1/dto"
	"github.com/helixml/marginalia/infrastructure/notes"
)

// DocumentsRouter handles per-document annotation endpoints.
type DocumentsRouter struct {
	client *marginalia.Client
	logger *slog.Logger
}

// NewDocumentsRouter creates a new DocumentsRouter.
func NewDocumentsRouter(client *marginalia.Client) *DocumentsRouter {
	return &DocumentsRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for document endpoints. Document paths and
// identifiers arrive URL-escaped in a single path segment.
func (r *DocumentsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.ListDocuments)
	router.Get("/{doc}/annotations", r.List)
	router.Post("/{doc}/annotations", r.Create)
	router.Get("/{doc}/annotations/{cfi}", r.Get)
	router.Patch("/{doc}/annotations/{cfi}", r.Update)
	router.Delete("/{doc}/annotations/{cfi}", r.Delete)
	router.Get("/{doc}/sections", r.Section)
	router.Get("/{doc}/overlaps", r.Overlaps)
	router.Get("/{doc}/stats", r.Stats)
	router.Get("/{doc}/preferences", r.GetPreferences)
	router.Put("/{doc}/preferences", r.UpdatePreferences)
	router.Get("/{doc}/export", r.Export)
	router.Post("/{doc}/import", r.Import)
	router.Post("/{doc}/notes", r.AppendNote)

	return router
}

// ListDocuments handles GET /api/v1/documents.
func (r *DocumentsRouter) ListDocuments(w http.ResponseWriter, req *http.Request) {
	documents, err := r.client.Annotations.Documents(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	if documents == nil {
		documents = []string{}
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.Document{
		Data: documents,
		Meta: &jsonapi.Meta{"total_count": len(documents)},
	})
}

// List handles GET /api/v1/documents/{doc}/annotations. With ?q= it
// searches text and notes instead.
func (r *DocumentsRouter) List(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	doc, ok := r.document(w, req)
	if !ok {
		return
	}

	if q := strings.TrimSpace(req.URL.Query().Get("q")); q != "" {
		items, err := r.client.Annotations.Search(ctx, doc, q)
		if err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
		response := jsonapi.NewListResponse(jsonapi.AnnotationResources(items, collectionPath(doc)))
		response.Meta = &jsonapi.Meta{"total_count": len(items), "query": q}
		middleware.WriteJSON(w, http.StatusOK, response)
		return
	}

	pagination := ParsePagination(req)
	items, err := r.client.Annotations.List(ctx, doc, pagination.Options()...)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	total, err := r.client.Annotations.Count(ctx, annotation.WithDocument(doc))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	response := jsonapi.NewListResponse(jsonapi.AnnotationResources(items, collectionPath(doc)))
	response.Meta = pagination.Meta(total)
	response.Links = pagination.Links(req, total)
	middleware.WriteJSON(w, http.StatusOK, response)
}

// Create handles POST /api/v1/documents/{doc}/annotations. A highlight that
// is already stored is returned with 200 instead of 201.
func (r *DocumentsRouter) Create(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.document(w, req)
	if !ok {
		return
	}
	var body dto.AnnotationCreateRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	saved, created, err := r.client.Annotations.Save(req.Context(), doc, body.ToAnnotation(doc))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", collectionPath(doc)+"/"+url.PathEscape(saved.CFI()))
	}
	middleware.WriteJSON(w, status, jsonapi.NewSingleResponse(jsonapi.AnnotationResource(saved, collectionPath(doc))))
}

// Get handles GET /api/v1/documents/{doc}/annotations/{cfi}.
func (r *DocumentsRouter) Get(w http.ResponseWriter, req *http.Request) {
	doc, identifier, ok := r.annotationParams(w, req)
	if !ok {
		return
	}
	a, err := r.client.Annotations.Get(req.Context(), doc, identifier)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.AnnotationResource(a, collectionPath(doc))))
}

// Update handles PATCH /api/v1/documents/{doc}/annotations/{cfi}.
func (r *DocumentsRouter) Update(w http.ResponseWriter, req *http.Request) {
	doc, identifier, ok := r.annotationParams(w, req)
	if !ok {
		return
	}
	var body dto.AnnotationUpdateRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	a, err := r.client.Annotations.Update(req.Context(), doc, identifier, body.ToEdit())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.AnnotationResource(a, collectionPath(doc))))
}

// Delete handles DELETE /api/v1/documents/{doc}/annotations/{cfi}.
func (r *DocumentsRouter) Delete(w http.ResponseWriter, req *http.Request) {
	doc, identifier, ok := r.annotationParams(w, req)
	if !ok {
		return
	}
	if _, err := r.client.Annotations.Remove(req.Context(), doc, identifier); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Section handles GET /api/v1/documents/{doc}/sections?location=.
func (r *DocumentsRouter) Section(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.document(w, req)
	if !ok {
		return
	}
	location := req.URL.Query().Get("location")
	if location == "" {
		middleware.WriteError(w, req, middleware.BadRequest("location is required", nil), r.logger)
		return
	}

	items, err := r.client.Annotations.Section(req.Context(), doc, location)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	response := jsonapi.NewListResponse(jsonapi.AnnotationResources(items, collectionPath(doc)))
	meta := jsonapi.Meta{"total_count": len(items)}
	if section, ok := cfi.SectionKey(location); ok {
		meta["section"] = section
	}
	response.Meta = &meta
	middleware.WriteJSON(w, http.StatusOK, response)
}

// Overlaps handles GET /api/v1/documents/{doc}/overlaps?cfi=.
func (r *DocumentsRouter) Overlaps(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.document(w, req)
	if !ok {
		return
	}
	identifier := req.URL.Query().Get("cfi")
	if identifier == "" {
		middleware.WriteError(w, req, middleware.BadRequest("cfi is required", nil), r.logger)
		return
	}

	items, err := r.client.Annotations.Overlapping(req.Context(), doc, identifier)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	response := jsonapi.NewListResponse(jsonapi.AnnotationResources(items, collectionPath(doc)))
	response.Meta = &jsonapi.Meta{"total_count": len(items)}
	middleware.WriteJSON(w, http.StatusOK, response)
}

// Stats handles GET /api/v1/documents/{doc}/stats.
func (r *DocumentsRouter) Stats(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.document(w, req)
	if !ok {
		return
	}
	ix, err := r.client.Annotations.Index(req.Context(), doc)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.StatsResource(doc, ix.Stats(), ix.Sections())))
}

// GetPreferences handles GET /api/v1/documents/{doc}/preferences.
func (r *DocumentsRouter) GetPreferences(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.document(w, req)
	if !ok {
		return
	}
	prefs, err := r.client.Preferences.Load(req.Context(), doc)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.PreferencesResource(doc, prefs)))
}

// UpdatePreferences handles PUT /api/v1/documents/{doc}/preferences. Fields
// missing from the body keep their stored values.
func (r *DocumentsRouter) UpdatePreferences(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	doc, ok := r.document(w, req)
	if !ok {
		return
	}
	var body dto.PreferencesUpdateRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	current, err := r.client.Preferences.Load(ctx, doc)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	updated := body.Apply(current)
	if err := r.client.Preferences.Save(ctx, doc, updated); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.PreferencesResource(doc, updated)))
}

// Export handles GET /api/v1/documents/{doc}/export. The body is the
// record array accepted by Import.
func (r *DocumentsRouter) Export(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.document(w, req)
	if !ok {
		return
	}
	records, err := r.client.Annotations.Export(req.Context(), doc)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := annotation.EncodeRecords(w, records); err != nil {
		r.logger.Error("failed to encode export", slog.String("document", doc), slog.Any("error", err))
	}
}

// Import handles POST /api/v1/documents/{doc}/import.
func (r *DocumentsRouter) Import(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.document(w, req)
	if !ok {
		return
	}
	records, err := annotation.DecodeRecords(req.Body)
	if err != nil {
		middleware.WriteError(w, req, middleware.BadRequest("invalid records", err), r.logger)
		return
	}
	result, err := r.client.Annotations.Import(req.Context(), doc, records)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// AppendNote handles POST /api/v1/documents/{doc}/notes. It saves the
// highlight and appends it to the document's markdown note.
func (r *DocumentsRouter) AppendNote(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.document(w, req)
	if !ok {
		return
	}
	var body dto.AnnotationCreateRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	saved, notePath, err := r.client.Notes.Append(req.Context(), doc, body.ToAnnotation(doc))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	response := jsonapi.NewSingleResponse(jsonapi.AnnotationResource(saved, collectionPath(doc)))
	response.Meta = &jsonapi.Meta{
		"note_path": notePath,
		"link":      notes.DeepLink(doc, saved.CFI()),
	}
	middleware.WriteJSON(w, http.StatusCreated, response)
}

func (r *DocumentsRouter) document(w http.ResponseWriter, req *http.Request) (string, bool) {
	doc, err := pathParam(req, "doc")
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return "", false
	}
	return doc, true
}

func (r *DocumentsRouter) annotationParams(w http.ResponseWriter, req *http.Request) (string, string, bool) {
	doc, ok := r.document(w, req)
	if !ok {
		return "", "", false
	}
	identifier, err := pathParam(req, "cfi")
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return "", "", false
	}
	return doc, identifier, true
}

// pathParam returns the unescaped value of a path parameter. chi matches on
// the raw path when one is present, so escaped slashes survive to here.
func pathParam(req *http.Request, name string) (string, error) {
	raw := chi.URLParam(req, name)
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", middleware.BadRequest("invalid "+name, err)
	}
	if strings.TrimSpace(value) == "" {
		return "", middleware.BadRequest(name+" is required", nil)
	}
	return value, nil
}

func collectionPath(doc string) string {
	return "/api/v1/documents/" + url.PathEscape(doc) + "/annotations"
}
