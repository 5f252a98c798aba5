package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/hearthdocs/thumbnail-service/internal/coalesce"
	"github.com/hearthdocs/thumbnail-service/internal/domain"
	"github.com/hearthdocs/thumbnail-service/internal/metrics"
	"github.com/hearthdocs/thumbnail-service/internal/queue"
	"github.com/hearthdocs/thumbnail-service/internal/render"
	"github.com/hearthdocs/thumbnail-service/internal/repository"
	"github.com/hearthdocs/thumbnail-service/internal/storage"
)

// Processor consumes generation jobs and renders thumbnail variants. Each
// variant succeeds or fails on its own; partial success is an expected
// outcome, not a job-level error.
type Processor struct {
	consumer queue.Consumer
	repo     repository.JobsRepository
	store    storage.ObjectStore
	renderer *render.Renderer
	registry *coalesce.Registry
	metrics  *metrics.Collector
	logger   *log.Logger
}

func NewProcessor(
	consumer queue.Consumer,
	repo repository.JobsRepository,
	store storage.ObjectStore,
	renderer *render.Renderer,
	registry *coalesce.Registry,
	collector *metrics.Collector,
	logger *log.Logger,
) *Processor {
	return &Processor{
		consumer: consumer,
		repo:     repo,
		store:    store,
		renderer: renderer,
		registry: registry,
		metrics:  collector,
		logger:   logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.ProcessMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// ProcessMessage renders every variant in the job. The coalescing mark is
// cleared whether the variants succeeded or failed, so the pair can be
// re-attempted on the next read.
func (p *Processor) ProcessMessage(ctx context.Context, message domain.QueueMessage) error {
	defer p.registry.Clear(coalesce.Key(message.DocumentID, message.SourceHash))

	if _, err := p.repo.GetJob(ctx, message.JobID); err != nil {
		return fmt.Errorf("load job %s: %w", message.JobID, err)
	}

	source, err := p.loadSource(ctx, message.SourcePath)
	if err != nil {
		if p.logger != nil {
			p.logger.Printf("source unreadable job_id=%s path=%s err=%v", message.JobID, message.SourcePath, err)
		}
		p.failAll(ctx, message, domain.CodeSourceUnreadable)
		return nil
	}

	for _, size := range message.Variants {
		variant := domain.Variant(size)
		p.renderVariant(ctx, message, source, variant)
	}

	if p.logger != nil {
		p.logger.Printf("job processed job_id=%s document=%s variants=%v", message.JobID, message.DocumentID, message.Variants)
	}
	return nil
}

func (p *Processor) renderVariant(ctx context.Context, message domain.QueueMessage, source []byte, variant domain.Variant) {
	if _, err := p.repo.UpdateVariant(ctx, message.JobID, variant, domain.VariantStatusRendering, ""); err != nil {
		if p.logger != nil {
			p.logger.Printf("mark rendering failed job_id=%s variant=%d err=%v", message.JobID, variant, err)
		}
		return
	}

	p.metrics.RenderStarted()
	defer p.metrics.RenderFinished()

	data, err := p.renderer.Render(source, variant)
	if err != nil {
		p.setFailed(ctx, message.JobID, variant, domain.CodeRenderFailed, err)
		return
	}

	key := storage.ThumbnailKey(message.DocumentID, variant, message.SourceHash)
	if err := p.store.Put(ctx, key, data); err != nil {
		p.setFailed(ctx, message.JobID, variant, domain.CodeStoreFailed, err)
		return
	}

	if _, err := p.repo.UpdateVariant(ctx, message.JobID, variant, domain.VariantStatusDone, ""); err != nil && p.logger != nil {
		p.logger.Printf("mark done failed job_id=%s variant=%d err=%v", message.JobID, variant, err)
	}
	p.metrics.VariantDone()
}

func (p *Processor) setFailed(ctx context.Context, jobID string, variant domain.Variant, code string, cause error) {
	if p.logger != nil {
		p.logger.Printf("variant failed job_id=%s variant=%d code=%s err=%v", jobID, variant, code, cause)
	}
	if _, err := p.repo.UpdateVariant(ctx, jobID, variant, domain.VariantStatusFailed, code); err != nil && p.logger != nil {
		p.logger.Printf("mark failed failed job_id=%s variant=%d err=%v", jobID, variant, err)
	}
	p.metrics.VariantFailed()
}

func (p *Processor) failAll(ctx context.Context, message domain.QueueMessage, code string) {
	for _, size := range message.Variants {
		if _, err := p.repo.UpdateVariant(ctx, message.JobID, domain.Variant(size), domain.VariantStatusFailed, code); err != nil && p.logger != nil {
			p.logger.Printf("mark failed failed job_id=%s variant=%d err=%v", message.JobID, size, err)
		}
		p.metrics.VariantFailed()
	}
}

func (p *Processor) loadSource(ctx context.Context, sourcePath string) ([]byte, error) {
	reader, err := p.store.Get(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
