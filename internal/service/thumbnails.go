package service

import (
	"context"
	"log"

	"github.com/hearthdocs/thumbnail-service/internal/cache"
	"github.com/hearthdocs/thumbnail-service/internal/coalesce"
	"github.com/hearthdocs/thumbnail-service/internal/docs"
	"github.com/hearthdocs/thumbnail-service/internal/domain"
	"github.com/hearthdocs/thumbnail-service/internal/metrics"
	"github.com/hearthdocs/thumbnail-service/internal/ratelimit"
	"github.com/hearthdocs/thumbnail-service/internal/storage"
)

// retryAfterQueuedMS is the poll hint handed to clients waiting on a job.
const retryAfterQueuedMS = 1500

// ReadResult is the outcome of one thumbnail read request: either a ready
// signed URL or a "queued, retry later" acknowledgment.
type ReadResult struct {
	Ready        bool
	URL          string
	TTLSeconds   int
	Variant      domain.Variant
	SourceHash   string
	JobID        string
	RetryAfterMS int
}

// Thumbnails orchestrates the read and regeneration paths over the rate
// limiter, URL cache, existence checker, coalescing registry and job queue.
type Thumbnails struct {
	limiter   *ratelimit.PerUser
	urlCache  *cache.URLCache
	registry  *coalesce.Registry
	checker   *storage.Checker
	issuer    *Issuer
	jobs      *JobsService
	directory docs.Directory
	metrics   *metrics.Collector
	logger    *log.Logger
}

type ThumbnailsDependencies struct {
	Limiter   *ratelimit.PerUser
	URLCache  *cache.URLCache
	Registry  *coalesce.Registry
	Store     storage.ObjectStore
	Issuer    *Issuer
	Jobs      *JobsService
	Directory docs.Directory
	Metrics   *metrics.Collector
	Logger    *log.Logger
}

func NewThumbnails(deps ThumbnailsDependencies) *Thumbnails {
	return &Thumbnails{
		limiter:   deps.Limiter,
		urlCache:  deps.URLCache,
		registry:  deps.Registry,
		checker:   storage.NewChecker(deps.Store),
		issuer:    deps.Issuer,
		jobs:      deps.Jobs,
		directory: deps.Directory,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// RequestThumbnail drives the read path:
// rate check → cache check → existence check → (ready | coalesce → enqueue).
func (t *Thumbnails) RequestThumbnail(ctx context.Context, userID, documentID string, variant domain.Variant) (*ReadResult, error) {
	if !t.limiter.Allow(userID) {
		t.metrics.RateLimited()
		return &ReadResult{
			Variant:      variant,
			RetryAfterMS: int(t.limiter.RetryAfter().Milliseconds()),
		}, nil
	}

	doc, err := t.directory.GetDocument(ctx, documentID, userID)
	if err != nil || doc == nil {
		return nil, domain.NewError(domain.CodeDocumentNotFound, "document not found")
	}

	// Fail closed: an erroring access check is a denial.
	allowed, err := t.directory.CanAccessDocument(ctx, userID, documentID)
	if err != nil || !allowed {
		if err != nil && t.logger != nil {
			t.logger.Printf("access check errored, denying user=%s document=%s err=%v", userID, documentID, err)
		}
		return nil, domain.NewError(domain.CodeAccessDenied, "access denied")
	}

	sourceHash := t.issuer.ResolveSourceHash(doc)

	cacheKey := cache.Key{DocumentID: documentID, SourceHash: sourceHash, Variant: int(variant)}
	if url, remaining, ok := t.urlCache.Get(cacheKey); ok {
		t.metrics.CacheHit()
		return &ReadResult{
			Ready:      true,
			URL:        url,
			TTLSeconds: int(remaining.Seconds()),
			Variant:    variant,
			SourceHash: sourceHash,
		}, nil
	}
	t.metrics.CacheMiss()

	exists, _, err := t.checker.Exists(ctx, documentID, variant, sourceHash)
	if err != nil && t.logger != nil {
		t.logger.Printf("existence probe failed, treating as missing document=%s variant=%d err=%v", documentID, variant, err)
	}
	if err == nil && exists {
		signed, issueErr := t.issuer.IssueURL(ctx, userID, documentID, variant)
		if issueErr == nil {
			t.urlCache.Put(cacheKey, signed.URL, signed.TTL)
			return &ReadResult{
				Ready:      true,
				URL:        signed.URL,
				TTLSeconds: int(signed.TTL.Seconds()),
				Variant:    variant,
				SourceHash: signed.SourceHash,
			}, nil
		}
		// An issuer hiccup is transient overload, not a request failure:
		// fall through to the queued path.
		if t.logger != nil {
			t.logger.Printf("issuer failed on existing object, falling through document=%s variant=%d err=%v", documentID, variant, issueErr)
		}
	}

	return t.coalesceAndEnqueue(ctx, doc, userID, sourceHash, variant)
}

func (t *Thumbnails) coalesceAndEnqueue(ctx context.Context, doc *domain.Document, userID, sourceHash string, variant domain.Variant) (*ReadResult, error) {
	key := coalesce.Key(doc.ID, sourceHash)

	queued := func(jobID string) *ReadResult {
		return &ReadResult{
			Variant:      variant,
			SourceHash:   sourceHash,
			JobID:        jobID,
			RetryAfterMS: retryAfterQueuedMS,
		}
	}

	if jobID, inProgress := t.registry.InProgress(key); inProgress {
		t.metrics.CoalesceLoss()
		return queued(jobID), nil
	}
	if !t.registry.MarkIfFree(key) {
		t.metrics.CoalesceLoss()
		jobID, _ := t.registry.InProgress(key)
		return queued(jobID), nil
	}
	t.metrics.CoalesceWin()

	// Warming: the first reader of a never-rendered pair triggers every
	// missing variant in one job, not just the one it asked for.
	missing, err := t.checker.Missing(ctx, doc.ID, sourceHash, domain.Variants())
	if err != nil || len(missing) == 0 {
		missing = []domain.Variant{variant}
	}

	householdID, err := t.directory.GetUserHousehold(ctx, userID)
	if err != nil {
		householdID = ""
	}

	job, err := t.jobs.EnqueueJob(ctx, EnqueueParams{
		DocumentID:  doc.ID,
		SourceHash:  sourceHash,
		SourcePath:  doc.StoragePath,
		MimeType:    doc.MimeType,
		Variants:    missing,
		UserID:      userID,
		HouseholdID: householdID,
	})
	if err != nil {
		t.registry.Clear(key)
		return nil, domain.NewError(domain.CodeInternalError, "failed to enqueue generation job")
	}
	t.registry.SetJob(key, job.ID)

	return queued(job.ID), nil
}

// RegenerateResult is either the accepted job or a soft rate denial
// telling the caller when to retry.
type RegenerateResult struct {
	Job          *domain.Job
	RetryAfterMS int
}

// Regenerate drives the explicit path: it skips the cache and existence
// short-circuits and always enqueues for the caller's variant set. It
// requires the canonical content version; surrogates are read-path only.
// The rate limiter admits the request before any other work, same as the
// read path; regeneration is the heaviest load on the rendering pipeline.
func (t *Thumbnails) Regenerate(ctx context.Context, userID, documentID string, variants []domain.Variant) (*RegenerateResult, error) {
	if !t.limiter.Allow(userID) {
		t.metrics.RateLimited()
		return &RegenerateResult{
			RetryAfterMS: int(t.limiter.RetryAfter().Milliseconds()),
		}, nil
	}

	doc, err := t.directory.GetDocument(ctx, documentID, userID)
	if err != nil || doc == nil {
		return nil, domain.NewError(domain.CodeDocumentNotFound, "document not found")
	}
	allowed, err := t.directory.CanAccessDocument(ctx, userID, documentID)
	if err != nil || !allowed {
		if err != nil && t.logger != nil {
			t.logger.Printf("access check errored, denying user=%s document=%s err=%v", userID, documentID, err)
		}
		return nil, domain.NewError(domain.CodeAccessDenied, "access denied")
	}
	if doc.SourceHash == "" {
		return nil, domain.NewError(domain.CodeMissingSourceHash, "document has no canonical content version")
	}

	householdID, err := t.directory.GetUserHousehold(ctx, userID)
	if err != nil {
		householdID = ""
	}

	job, err := t.jobs.EnqueueJob(ctx, EnqueueParams{
		DocumentID:  documentID,
		SourceHash:  doc.SourceHash,
		SourcePath:  doc.StoragePath,
		MimeType:    doc.MimeType,
		Variants:    variants,
		UserID:      userID,
		HouseholdID: householdID,
	})
	if err != nil {
		return nil, domain.NewError(domain.CodeInternalError, "failed to enqueue generation job")
	}

	// Later readers of the same pair coalesce onto this job.
	key := coalesce.Key(documentID, doc.SourceHash)
	if t.registry.MarkIfFree(key) {
		t.registry.SetJob(key, job.ID)
	}

	return &RegenerateResult{Job: job}, nil
}

// GetJob exposes job status for the polling endpoint.
func (t *Thumbnails) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return t.jobs.GetJob(ctx, jobID)
}
