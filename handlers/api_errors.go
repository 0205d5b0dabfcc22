package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mjbphoto/gallery/dashboard"
	"github.com/mjbphoto/gallery/gallery"
)

const (
	CodeUnauthorized    = "unauthorized"
	CodeBadRequest      = "bad_request"
	CodeNoFile          = "no_file"
	CodeInvalidInput    = "invalid_input"
	CodeNotConfirmed    = "not_confirmed"
	CodeNotFound        = "not_found"
	CodeUnknownCategory = "unknown_category"
	CodeRetryable       = "retryable"
	CodeTooLarge        = "payload_too_large"
	CodeBackend         = "backend_error"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{{
			Code:   code,
			Status: strconv.Itoa(httpStatus),
			Detail: detail,
		}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// APIUnauthorized answers guarded JSON requests that carry no valid session.
func APIUnauthorized(w http.ResponseWriter, r *http.Request) {
	WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "A valid admin session is required")
}

// writeServiceError maps gallery and dashboard errors onto the error body.
// Backend failures are reported generically.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrNoFile):
		WriteAPIError(w, http.StatusBadRequest, CodeNoFile, "A photo file is required")
	case errors.Is(err, dashboard.ErrInvalidInput):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, dashboard.ErrNotConfirmed):
		WriteAPIError(w, http.StatusBadRequest, CodeNotConfirmed, "Deletes must be confirmed with confirm=true")
	case errors.Is(err, dashboard.ErrNotFound), errors.Is(err, gallery.ErrPhotoNotFound):
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Photo not found")
	case errors.Is(err, gallery.ErrUnknownCategory):
		WriteAPIError(w, http.StatusNotFound, CodeUnknownCategory, "Unknown category")
	case errors.Is(err, dashboard.ErrRetryable):
		WriteAPIError(w, http.StatusBadGateway, CodeRetryable, "The photo could not be deleted; the request may be retried")
	default:
		WriteAPIError(w, http.StatusBadGateway, CodeBackend, "The photo service is unavailable")
	}
}
