package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"adekit/internal/domain"
	"adekit/internal/port"
)

type jobRepo struct {
	db *sqlx.DB
}

// NewJobRepo creates a new PostgreSQL-backed JobRepository.
func NewJobRepo(db *sqlx.DB) port.JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) Create(ctx context.Context, job *domain.Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = domain.JobStatusQueued
	}

	_, err := r.db.NamedExecContext(ctx, `INSERT INTO jobs (
		id, tenant_id, submitted_by, file_name, content_type, file_size,
		s3_bucket, s3_key, model, split_mode, extract_model, schema, notify_email,
		status, attempts, created_at, updated_at
	) VALUES (
		:id, :tenant_id, :submitted_by, :file_name, :content_type, :file_size,
		:s3_bucket, :s3_key, :model, :split_mode, :extract_model, :schema, :notify_email,
		:status, :attempts, :created_at, :updated_at
	)`, withJSONDefaults(job))
	if err != nil {
		return fmt.Errorf("jobRepo.Create: %w", err)
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.Job, error) {
	var job domain.Job
	err := r.db.GetContext(ctx, &job,
		"SELECT * FROM jobs WHERE id = $1 AND tenant_id = $2", jobID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobRepo.GetByID: %w", err)
	}
	return &job, nil
}

// listColumns omits the large result columns.
const listColumns = `id, tenant_id, submitted_by, file_name, content_type, file_size,
	s3_bucket, s3_key, model, split_mode, extract_model, schema, notify_email,
	status, attempts, retry_after, remote_job_id, error, error_kind, warnings,
	page_count, credit_usage, completed_at, created_at, updated_at`

func (r *jobRepo) List(ctx context.Context, tenantID uuid.UUID, filter port.JobFilter) ([]domain.Job, int, error) {
	where := "WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.Status != "" {
		where += " AND status = $2"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM jobs "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("jobRepo.List count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	n := len(args)
	query := fmt.Sprintf("SELECT %s FROM jobs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		listColumns, where, n+1, n+2)
	args = append(args, limit, filter.Offset)

	var jobs []domain.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("jobRepo.List: %w", err)
	}
	return jobs, total, nil
}

// ClaimQueued moves up to limit runnable queued jobs to processing and
// increments their attempt count. Concurrent workers never claim the same row.
func (r *jobRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.SelectContext(ctx, &jobs, `
		UPDATE jobs SET status = 'processing', attempts = attempts + 1,
			retry_after = NULL, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'queued' AND (retry_after IS NULL OR retry_after <= NOW())
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`, limit)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.ClaimQueued: %w", err)
	}
	return jobs, nil
}

func (r *jobRepo) SetRemoteJobID(ctx context.Context, jobID uuid.UUID, remoteJobID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE jobs SET remote_job_id = $1, updated_at = NOW() WHERE id = $2",
		remoteJobID, jobID)
	if err != nil {
		return fmt.Errorf("jobRepo.SetRemoteJobID: %w", err)
	}
	return nil
}

// UpdateResult persists the outcome of a processing attempt: status,
// results, error and retry schedule.
func (r *jobRepo) UpdateResult(ctx context.Context, job *domain.Job) error {
	job.UpdatedAt = time.Now().UTC()
	result, err := r.db.NamedExecContext(ctx, `UPDATE jobs SET
			status = :status, retry_after = :retry_after, remote_job_id = :remote_job_id,
			error = :error, error_kind = :error_kind,
			parse_result = :parse_result, extraction = :extraction, warnings = :warnings,
			page_count = :page_count, credit_usage = :credit_usage,
			completed_at = :completed_at, updated_at = :updated_at
		WHERE id = :id AND tenant_id = :tenant_id`, withJSONDefaults(job))
	if err != nil {
		return fmt.Errorf("jobRepo.UpdateResult: %w", err)
	}
	return expectOne(result, "jobRepo.UpdateResult")
}

// Requeue resets a failed job so the worker picks it up again.
func (r *jobRepo) Requeue(ctx context.Context, tenantID, jobID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE jobs SET
			status = 'queued', attempts = 0, retry_after = NULL, remote_job_id = '',
			error = '', error_kind = '', completed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'failed'`, jobID, tenantID)
	if err != nil {
		return fmt.Errorf("jobRepo.Requeue: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobRepo.Requeue rows: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetByID(ctx, tenantID, jobID); err != nil {
			return err
		}
		return domain.ErrJobNotRetryable
	}
	return nil
}

func (r *jobRepo) Delete(ctx context.Context, tenantID, jobID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE id = $1 AND tenant_id = $2", jobID, tenantID)
	if err != nil {
		return fmt.Errorf("jobRepo.Delete: %w", err)
	}
	return expectOne(result, "jobRepo.Delete")
}

// ListFinishedBefore returns terminal jobs completed before the cutoff, oldest first.
func (r *jobRepo) ListFinishedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.SelectContext(ctx, &jobs, fmt.Sprintf(`SELECT %s FROM jobs
		WHERE status IN ('completed', 'failed') AND completed_at < $1
		ORDER BY completed_at LIMIT $2`, listColumns), before, limit)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.ListFinishedBefore: %w", err)
	}
	return jobs, nil
}

// ReclaimStale returns abandoned processing jobs to the queue. Jobs that
// already used maxAttempts fail with a timeout instead.
func (r *jobRepo) ReclaimStale(ctx context.Context, before time.Time, maxAttempts int) (int64, error) {
	result, err := r.db.ExecContext(ctx, reclaimStaleQuery, before, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("jobRepo.ReclaimStale: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("jobRepo.ReclaimStale rows: %w", err)
	}
	return n, nil
}

const reclaimStaleQuery = `UPDATE jobs SET
		status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'queued' END,
		completed_at = CASE WHEN attempts >= $2 THEN NOW() ELSE NULL END,
		error = 'job did not finish within the worker timeout',
		error_kind = 'timeout',
		retry_after = NULL, updated_at = NOW()
	WHERE status = 'processing' AND updated_at < $1`

func expectOne(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// withJSONDefaults returns a copy of job whose empty JSON columns hold the
// JSON literal null, which the NOT NULL jsonb columns accept.
func withJSONDefaults(job *domain.Job) *domain.Job {
	cp := *job
	for _, raw := range []*json.RawMessage{&cp.Schema, &cp.ParseResult, &cp.Extraction, &cp.Warnings} {
		if len(*raw) == 0 {
			*raw = json.RawMessage("null")
		}
	}
	return &cp
}
