package domain

import "net/http"

// Error codes surfaced in API response bodies.
const (
	CodeInvalidDocumentID = "INVALID_DOCUMENT_ID"
	CodeInvalidVariant    = "INVALID_VARIANT"
	CodeDocumentNotFound  = "DOCUMENT_NOT_FOUND"
	CodeAccessDenied      = "ACCESS_DENIED"
	CodeMissingSourceHash = "MISSING_SOURCE_HASH"
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"

	// Per-variant render error codes, reported through job status only.
	CodeSourceUnreadable = "SOURCE_UNREADABLE"
	CodeRenderFailed     = "RENDER_FAILED"
	CodeStoreFailed      = "STORE_FAILED"
)

var errorHTTPStatus = map[string]int{
	CodeInvalidDocumentID: http.StatusBadRequest,
	CodeInvalidVariant:    http.StatusBadRequest,
	CodeDocumentNotFound:  http.StatusNotFound,
	CodeAccessDenied:      http.StatusForbidden,
	CodeMissingSourceHash: http.StatusBadRequest,
	CodeJobNotFound:       http.StatusNotFound,
	CodeInternalError:     http.StatusInternalServerError,
}

// Error is an API-visible failure with a stable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// HTTPStatus maps the error code to its response status.
func (e *Error) HTTPStatus() int {
	if status, ok := errorHTTPStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}
