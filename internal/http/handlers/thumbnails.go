package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
	"github.com/hearthdocs/thumbnail-service/internal/http/middleware"
)

// DocumentThumbnail handles GET /documents/{id}/thumbnail?variant=N.
func (api *API) DocumentThumbnail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/documents/")
	documentID, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix != "thumbnail" {
		http.NotFound(w, r)
		return
	}
	if !validDocumentID(documentID) {
		writeError(w, r, http.StatusBadRequest, domain.CodeInvalidDocumentID, "invalid document id")
		return
	}

	variant, err := domain.ParseVariant(r.URL.Query().Get("variant"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	result, err := api.thumbnails.RequestThumbnail(r.Context(), userID, documentID, variant)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if result.Ready {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ready",
			"url":        result.URL,
			"ttlSeconds": result.TTLSeconds,
			"variant":    int(result.Variant),
			"sourceHash": result.SourceHash,
		})
		return
	}

	response := map[string]any{
		"status":       "queued",
		"retryAfterMs": result.RetryAfterMS,
		"variant":      int(result.Variant),
	}
	if result.SourceHash != "" {
		response["sourceHash"] = result.SourceHash
	}
	if result.JobID != "" {
		response["jobId"] = result.JobID
	}
	w.Header().Set("Retry-After", strconv.Itoa((result.RetryAfterMS+999)/1000))
	writeJSON(w, http.StatusAccepted, response)
}

type regenerateRequest struct {
	DocumentID string `json:"documentId"`
	Variants   []int  `json:"variants"`
}

// RegenerateThumbnails handles POST /thumbnails. It always enqueues,
// regardless of existing cache entries or stored objects.
func (api *API) RegenerateThumbnails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request regenerateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(w, r, http.StatusBadRequest, domain.CodeInvalidDocumentID, "invalid JSON payload")
		return
	}
	if !validDocumentID(request.DocumentID) {
		writeError(w, r, http.StatusBadRequest, domain.CodeInvalidDocumentID, "invalid document id")
		return
	}

	variants := make([]domain.Variant, 0, len(request.Variants))
	if len(request.Variants) == 0 {
		variants = domain.Variants()
	}
	for _, size := range request.Variants {
		if !domain.IsSupportedVariant(size) {
			writeError(w, r, http.StatusBadRequest, domain.CodeInvalidVariant, "unsupported variant")
			return
		}
		variants = append(variants, domain.Variant(size))
	}

	userID := middleware.GetUserID(r.Context())
	result, err := api.thumbnails.Regenerate(r.Context(), userID, request.DocumentID, variants)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if result.Job == nil {
		w.Header().Set("Retry-After", strconv.Itoa((result.RetryAfterMS+999)/1000))
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":       "queued",
			"retryAfterMs": result.RetryAfterMS,
		})
		return
	}

	job := result.Job
	sizes := make([]int, 0, len(job.Variants))
	for _, state := range job.Variants {
		sizes = append(sizes, int(state.Variant))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "queued",
		"jobId":    job.ID,
		"variants": sizes,
	})
}
