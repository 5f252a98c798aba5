package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
	"github.com/hearthdocs/thumbnail-service/internal/repository"
)

// JobStatus handles GET /thumbnails/job/{jobId}?variant=N. Without a variant
// it returns the aggregate job view; with one, that variant's state.
func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	jobID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/thumbnails/job/"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, domain.CodeJobNotFound, "job id is required")
		return
	}

	job, err := api.thumbnails.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, domain.CodeJobNotFound, "job not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, domain.CodeInternalError, "failed to load job")
		return
	}

	if raw := r.URL.Query().Get("variant"); raw != "" {
		variant, parseErr := domain.ParseVariant(raw)
		if parseErr != nil {
			writeDomainError(w, r, parseErr)
			return
		}
		state, ok := job.VariantState(variant)
		if !ok {
			writeError(w, r, http.StatusNotFound, domain.CodeJobNotFound, "variant not part of this job")
			return
		}

		response := map[string]any{
			"jobId":      job.ID,
			"status":     state.Status,
			"documentId": job.DocumentID,
			"variant":    int(state.Variant),
			"createdAt":  job.CreatedAt.Format(time.RFC3339Nano),
			"updatedAt":  state.UpdatedAt.Format(time.RFC3339Nano),
		}
		if state.ErrorCode != "" {
			response["errorCode"] = state.ErrorCode
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":      job.ID,
		"status":     job.Status(),
		"documentId": job.DocumentID,
		"sourceHash": job.SourceHash,
		"variants":   job.Variants,
		"createdAt":  job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt":  job.UpdatedAt.Format(time.RFC3339Nano),
	})
}
