package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// JobsRepository abstracts generation-job persistence. Variant states are
// mutated individually so sibling variants complete independently.
type JobsRepository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	UpdateVariant(ctx context.Context, jobID string, variant domain.Variant, status domain.VariantStatus, errorCode string) (*domain.Job, error)
}

// MemoryJobsRepository stores jobs in memory for local development and tests.
type MemoryJobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemoryJobsRepository() *MemoryJobsRepository {
	return &MemoryJobsRepository{
		jobs: make(map[string]*domain.Job),
	}
}

func (r *MemoryJobsRepository) CreateJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobsRepository) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobsRepository) UpdateVariant(
	_ context.Context,
	jobID string,
	variant domain.Variant,
	status domain.VariantStatus,
	errorCode string,
) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	updated := false
	for i := range job.Variants {
		if job.Variants[i].Variant == variant {
			job.Variants[i].Status = status
			job.Variants[i].ErrorCode = errorCode
			job.Variants[i].UpdatedAt = now
			updated = true
			break
		}
	}
	if !updated {
		return nil, ErrNotFound
	}
	job.UpdatedAt = now
	return cloneJob(job), nil
}

func cloneJob(job *domain.Job) *domain.Job {
	if job == nil {
		return nil
	}
	clone := *job
	clone.Variants = append([]domain.VariantState(nil), job.Variants...)
	return &clone
}
