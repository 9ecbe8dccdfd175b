package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/internal/database"
)

// ContentTypeJSONAPI is the media type of error responses.
const ContentTypeJSONAPI = "application/vnd.api+json"

// APIError carries an explicit HTTP status for a failed request.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates an APIError.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{code: code, message: message, cause: cause}
}

// BadRequest creates a 400 APIError.
func BadRequest(message string, cause error) *APIError {
	return NewAPIError(http.StatusBadRequest, message, cause)
}

// Code returns the HTTP status code.
func (e *APIError) Code() int { return e.code }

// Message returns the client-facing message.
func (e *APIError) Message() string { return e.message }

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error { return e.cause }

// JSONAPIError is a JSON:API error object.
type JSONAPIError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	ID     string `json:"id,omitempty"`
}

// JSONAPIErrorResponse wraps error objects.
type JSONAPIErrorResponse struct {
	Errors []JSONAPIError `json:"errors"`
}

// StatusFor maps an error to its HTTP status and title.
func StatusFor(err error) (int, string) {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code(), http.StatusText(apiErr.Code())
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, annotation.ErrInvalidCFI), errors.Is(err, annotation.ErrInvalidRecord):
		return http.StatusBadRequest, "Validation Error"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// WriteError writes err as a JSON:API error document. Server errors are
// logged; their detail is not echoed to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status, title := StatusFor(err)
	requestID := middleware.GetReqID(r.Context())

	detail := err.Error()
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		detail = apiErr.Message()
	}
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request error",
				slog.Int("status", status),
				slog.String("error", err.Error()),
				slog.String("path", r.URL.Path),
			)
		}
		detail = ""
	}

	resp := JSONAPIErrorResponse{
		Errors: []JSONAPIError{{
			Status: fmt.Sprint(status),
			Title:  title,
			Detail: detail,
			ID:     requestID,
		}},
	}

	w.Header().Set("Content-Type", ContentTypeJSONAPI)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes data as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
// Failures are returned as 400 errors.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return BadRequest("invalid request body", err)
	}
	return nil
}
