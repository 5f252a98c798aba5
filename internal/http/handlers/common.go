package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
	"github.com/hearthdocs/thumbnail-service/internal/http/middleware"
	"github.com/hearthdocs/thumbnail-service/internal/service"
)

type API struct {
	thumbnails *service.Thumbnails
}

func NewAPI(thumbnails *service.Thumbnails) *API {
	return &API{thumbnails: thumbnails}
}

type errorPayload struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorPayload{
		ErrorCode: code,
		Message:   message,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

// writeDomainError maps service-layer errors onto the API error surface.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		writeError(w, r, domainErr.HTTPStatus(), domainErr.Code, domainErr.Message)
		return
	}
	writeError(w, r, http.StatusInternalServerError, domain.CodeInternalError, "internal error")
}

// validDocumentID keeps junk out of storage keys and queue messages before
// any other work happens.
func validDocumentID(documentID string) bool {
	if documentID == "" || len(documentID) > 64 {
		return false
	}
	for _, c := range documentID {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
