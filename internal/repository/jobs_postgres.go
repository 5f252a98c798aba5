package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
)

// PostgresJobsRepository persists jobs in a thumbnail_jobs table. Variant
// states live in a jsonb column; per-variant updates run inside a row-locked
// transaction so concurrent worker callbacks do not lose writes.
type PostgresJobsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJobsRepository(ctx context.Context, databaseURL string) (*PostgresJobsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresJobsRepository{pool: pool}, nil
}

func (r *PostgresJobsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresJobsRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	variants, err := json.Marshal(job.Variants)
	if err != nil {
		return fmt.Errorf("encode variant states: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO thumbnail_jobs (
			id,
			document_id,
			source_hash,
			source_path,
			mime_type,
			user_id,
			household_id,
			variants,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		job.ID,
		job.DocumentID,
		job.SourceHash,
		job.SourcePath,
		job.MimeType,
		job.UserID,
		job.HouseholdID,
		variants,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return r.scanJob(ctx, r.pool, jobID, false)
}

func (r *PostgresJobsRepository) UpdateVariant(
	ctx context.Context,
	jobID string,
	variant domain.Variant,
	status domain.VariantStatus,
	errorCode string,
) (*domain.Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	job, err := r.scanJob(ctx, tx, jobID, true)
	if err != nil {
		return nil, err
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

	variants, err := json.Marshal(job.Variants)
	if err != nil {
		return nil, fmt.Errorf("encode variant states: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE thumbnail_jobs
		SET variants = $2,
			updated_at = $3
		WHERE id = $1
	`, jobID, variants, now); err != nil {
		return nil, fmt.Errorf("update variant state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return job, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresJobsRepository) scanJob(ctx context.Context, q queryRower, jobID string, forUpdate bool) (*domain.Job, error) {
	query := `
		SELECT id, document_id, source_hash, source_path, mime_type, user_id, household_id, variants, created_at, updated_at
		FROM thumbnail_jobs
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		job      domain.Job
		variants []byte
	)
	err := q.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.DocumentID,
		&job.SourceHash,
		&job.SourcePath,
		&job.MimeType,
		&job.UserID,
		&job.HouseholdID,
		&variants,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}

	if err := json.Unmarshal(variants, &job.Variants); err != nil {
		return nil, fmt.Errorf("decode variant states: %w", err)
	}
	return &job, nil
}
