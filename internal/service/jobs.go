package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
	"github.com/hearthdocs/thumbnail-service/internal/metrics"
	"github.com/hearthdocs/thumbnail-service/internal/queue"
	"github.com/hearthdocs/thumbnail-service/internal/repository"
)

// JobsService creates generation jobs and hands them to the queue. It does
// not deduplicate; the coalescing registry above it owns that concern.
type JobsService struct {
	repo     repository.JobsRepository
	producer queue.Producer
	metrics  *metrics.Collector
	logger   *log.Logger
}

func NewJobsService(repo repository.JobsRepository, producer queue.Producer, collector *metrics.Collector, logger *log.Logger) *JobsService {
	return &JobsService{repo: repo, producer: producer, metrics: collector, logger: logger}
}

// EnqueueParams carries everything the rendering worker needs.
type EnqueueParams struct {
	DocumentID  string
	SourceHash  string
	SourcePath  string
	MimeType    string
	Variants    []domain.Variant
	UserID      string
	HouseholdID string
}

func (s *JobsService) EnqueueJob(ctx context.Context, params EnqueueParams) (*domain.Job, error) {
	now := time.Now().UTC()

	states := make([]domain.VariantState, 0, len(params.Variants))
	sizes := make([]int, 0, len(params.Variants))
	for _, variant := range params.Variants {
		states = append(states, domain.VariantState{
			Variant:   variant,
			Status:    domain.VariantStatusQueued,
			UpdatedAt: now,
		})
		sizes = append(sizes, int(variant))
	}

	job := &domain.Job{
		ID:          uuid.NewString(),
		DocumentID:  params.DocumentID,
		SourceHash:  params.SourceHash,
		SourcePath:  params.SourcePath,
		MimeType:    params.MimeType,
		UserID:      params.UserID,
		HouseholdID: params.HouseholdID,
		Variants:    states,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	message := domain.QueueMessage{
		JobID:       job.ID,
		DocumentID:  job.DocumentID,
		SourceHash:  job.SourceHash,
		SourcePath:  job.SourcePath,
		MimeType:    job.MimeType,
		Variants:    sizes,
		UserID:      job.UserID,
		HouseholdID: job.HouseholdID,
		Attempt:     0,
		RequestedAt: now,
	}

	if err := s.producer.Enqueue(ctx, message); err != nil {
		for _, variant := range params.Variants {
			if _, updateErr := s.repo.UpdateVariant(ctx, job.ID, variant, domain.VariantStatusFailed, domain.CodeInternalError); updateErr != nil && s.logger != nil {
				s.logger.Printf("mark variant failed after enqueue error job_id=%s variant=%d err=%v", job.ID, variant, updateErr)
			}
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.metrics.JobEnqueued()
	return job, nil
}

func (s *JobsService) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.repo.GetJob(ctx, jobID)
}
