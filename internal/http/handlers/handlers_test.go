package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hearthdocs/thumbnail-service/internal/audit"
	"github.com/hearthdocs/thumbnail-service/internal/cache"
	"github.com/hearthdocs/thumbnail-service/internal/coalesce"
	"github.com/hearthdocs/thumbnail-service/internal/docs"
	"github.com/hearthdocs/thumbnail-service/internal/domain"
	httpserver "github.com/hearthdocs/thumbnail-service/internal/http"
	"github.com/hearthdocs/thumbnail-service/internal/http/handlers"
	"github.com/hearthdocs/thumbnail-service/internal/queue"
	"github.com/hearthdocs/thumbnail-service/internal/ratelimit"
	"github.com/hearthdocs/thumbnail-service/internal/repository"
	"github.com/hearthdocs/thumbnail-service/internal/service"
	"github.com/hearthdocs/thumbnail-service/internal/storage"
)

type apiFixture struct {
	handler   http.Handler
	directory *docs.MemoryDirectory
	store     *storage.MemoryStore
	repo      *repository.MemoryJobsRepository
	queue     *queue.LocalQueue
}

func newAPIFixture(t *testing.T) *apiFixture {
	return newRateLimitedFixture(t, 10000, 10000)
}

func newRateLimitedFixture(t *testing.T, rps float64, burst int) *apiFixture {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	directory := docs.NewMemoryDirectory()
	store := storage.NewMemoryStore()
	repo := repository.NewMemoryJobsRepository()
	localQueue := queue.NewLocalQueue(64, 2, logger)
	limiter := ratelimit.NewPerUser(rps, burst)
	t.Cleanup(limiter.Close)

	issuer := service.NewIssuer(directory, store, audit.NewLogSink(logger), nil, logger, 15*time.Minute)
	jobs := service.NewJobsService(repo, localQueue, nil, logger)
	thumbnails := service.NewThumbnails(service.ThumbnailsDependencies{
		Limiter:   limiter,
		URLCache:  cache.NewURLCache(100),
		Registry:  coalesce.NewRegistry(time.Minute),
		Store:     store,
		Issuer:    issuer,
		Jobs:      jobs,
		Directory: directory,
		Logger:    logger,
	})

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:    handlers.NewAPI(thumbnails),
		Logger: logger,
	})

	return &apiFixture{
		handler:   handler,
		directory: directory,
		store:     store,
		repo:      repo,
		queue:     localQueue,
	}
}

func (f *apiFixture) addDocument(id, sourceHash string) {
	f.directory.AddDocument(&domain.Document{
		ID:           id,
		OwnerID:      "u1",
		MimeType:     "image/jpeg",
		SourceHash:   sourceHash,
		StoragePath:  "documents/" + id + "/source.jpg",
		LastModified: time.Unix(1700000000, 0),
	})
}

func (f *apiFixture) do(t *testing.T, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("X-User-Id", "u1")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)

	payload := map[string]any{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder, payload
}

func TestThumbnailReadRejectsInvalidDocumentID(t *testing.T) {
	f := newAPIFixture(t)

	recorder, payload := f.do(t, http.MethodGet, "/documents/bad..id/thumbnail?variant=96", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if payload["errorCode"] != domain.CodeInvalidDocumentID {
		t.Fatalf("expected INVALID_DOCUMENT_ID, got %v", payload["errorCode"])
	}
}

func TestThumbnailReadRejectsUnsupportedVariant(t *testing.T) {
	f := newAPIFixture(t)
	f.addDocument("d1", "h1")

	recorder, payload := f.do(t, http.MethodGet, "/documents/d1/thumbnail?variant=123", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if payload["errorCode"] != domain.CodeInvalidVariant {
		t.Fatalf("expected INVALID_VARIANT, got %v", payload["errorCode"])
	}
	if payload["request_id"] == "" {
		t.Fatalf("error payload should carry request id")
	}
}

func TestThumbnailReadUnknownDocument(t *testing.T) {
	f := newAPIFixture(t)

	recorder, payload := f.do(t, http.MethodGet, "/documents/ghost/thumbnail?variant=96", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if payload["errorCode"] != domain.CodeDocumentNotFound {
		t.Fatalf("expected DOCUMENT_NOT_FOUND, got %v", payload["errorCode"])
	}
}

func TestThumbnailReadQueuesWithRetryHint(t *testing.T) {
	f := newAPIFixture(t)
	f.addDocument("d1", "h1")

	recorder, payload := f.do(t, http.MethodGet, "/documents/d1/thumbnail?variant=240", nil)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", recorder.Code)
	}
	if payload["status"] != "queued" {
		t.Fatalf("expected queued status, got %v", payload["status"])
	}
	if payload["retryAfterMs"].(float64) <= 0 {
		t.Fatalf("queued response needs a retry hint")
	}
	if payload["sourceHash"] != "h1" {
		t.Fatalf("expected source hash in queued response, got %v", payload["sourceHash"])
	}
	if payload["jobId"] == "" {
		t.Fatalf("expected job id in queued response")
	}
	if recorder.Header().Get("Retry-After") == "" {
		t.Fatalf("queued response should set Retry-After")
	}
}

func TestThumbnailReadReadyResponse(t *testing.T) {
	f := newAPIFixture(t)
	f.addDocument("d1", "h1")
	key := storage.ThumbnailKey("d1", domain.VariantSmall, "h1")
	if err := f.store.Put(context.Background(), key, []byte("jpeg")); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	recorder, payload := f.do(t, http.MethodGet, "/documents/d1/thumbnail?variant=96", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if payload["status"] != "ready" {
		t.Fatalf("expected ready, got %v", payload["status"])
	}
	if payload["url"] == "" {
		t.Fatalf("ready response needs a url")
	}
	if payload["ttlSeconds"].(float64) <= 0 {
		t.Fatalf("ready response needs a positive ttl")
	}
}

func TestRegenerateAcceptsAndReportsVariants(t *testing.T) {
	f := newAPIFixture(t)
	f.addDocument("d1", "h1")

	body := []byte(`{"documentId":"d1","variants":[96,480]}`)
	recorder, payload := f.do(t, http.MethodPost, "/thumbnails", body)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", recorder.Code, payload)
	}
	if payload["jobId"] == "" {
		t.Fatalf("expected job id")
	}
	variants := payload["variants"].([]any)
	if len(variants) != 2 {
		t.Fatalf("expected two variants, got %v", variants)
	}
}

func TestRegenerateSoftDeniedWhenRateExhausted(t *testing.T) {
	f := newRateLimitedFixture(t, 0.001, 1)
	f.addDocument("d1", "h1")

	// One read drains the user's bucket.
	recorder, _ := f.do(t, http.MethodGet, "/documents/d1/thumbnail?variant=96", nil)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("setup read should queue, got %d", recorder.Code)
	}

	recorder, payload := f.do(t, http.MethodPost, "/thumbnails", []byte(`{"documentId":"d1"}`))
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("soft denial is still 202, got %d", recorder.Code)
	}
	if payload["status"] != "queued" {
		t.Fatalf("expected queued status, got %v", payload["status"])
	}
	if payload["retryAfterMs"].(float64) <= 0 {
		t.Fatalf("denied regeneration needs a retry hint")
	}
	if _, ok := payload["jobId"]; ok {
		t.Fatalf("denied regeneration must not create a job: %+v", payload)
	}
	if recorder.Header().Get("Retry-After") == "" {
		t.Fatalf("denied regeneration should set Retry-After")
	}
}

func TestRegenerateRejectsUnknownFields(t *testing.T) {
	f := newAPIFixture(t)
	f.addDocument("d1", "h1")

	recorder, _ := f.do(t, http.MethodPost, "/thumbnails", []byte(`{"documentId":"d1","force":true}`))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestRegenerateWithoutCanonicalHash(t *testing.T) {
	f := newAPIFixture(t)
	f.addDocument("d1", "")

	recorder, payload := f.do(t, http.MethodPost, "/thumbnails", []byte(`{"documentId":"d1"}`))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if payload["errorCode"] != domain.CodeMissingSourceHash {
		t.Fatalf("expected MISSING_SOURCE_HASH, got %v", payload["errorCode"])
	}
}

func TestJobStatusUnknownJob(t *testing.T) {
	f := newAPIFixture(t)

	recorder, payload := f.do(t, http.MethodGet, "/thumbnails/job/ghost", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if payload["errorCode"] != domain.CodeJobNotFound {
		t.Fatalf("expected JOB_NOT_FOUND, got %v", payload["errorCode"])
	}
}

func TestJobStatusAggregateAndVariantViews(t *testing.T) {
	f := newAPIFixture(t)
	f.addDocument("d1", "h1")

	_, created := f.do(t, http.MethodPost, "/thumbnails", []byte(`{"documentId":"d1"}`))
	jobID := created["jobId"].(string)

	recorder, payload := f.do(t, http.MethodGet, "/thumbnails/job/"+jobID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if payload["status"] != "queued" {
		t.Fatalf("fresh job should be queued, got %v", payload["status"])
	}
	if len(payload["variants"].([]any)) != len(domain.Variants()) {
		t.Fatalf("aggregate view lists every variant")
	}

	recorder, payload = f.do(t, http.MethodGet, "/thumbnails/job/"+jobID+"?variant=240", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if payload["variant"].(float64) != 240 {
		t.Fatalf("single-variant view should echo the variant, got %v", payload["variant"])
	}
	if payload["status"] != "queued" {
		t.Fatalf("expected queued variant, got %v", payload["status"])
	}

	recorder, _ = f.do(t, http.MethodGet, "/thumbnails/job/"+jobID+"?variant=123", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported variant, got %d", recorder.Code)
	}
}

func TestRequestsWithoutUserAreRejected(t *testing.T) {
	f := newAPIFixture(t)
	f.addDocument("d1", "h1")

	request := httptest.NewRequest(http.MethodGet, "/documents/d1/thumbnail?variant=96", nil)
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", recorder.Code)
	}
}
