package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"adekit/internal/domain"
)

// JobFilter narrows job listings.
type JobFilter struct {
	Status domain.JobStatus
	Offset int
	Limit  int
}

// JobRepository defines the contract for job persistence.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, tenantID uuid.UUID, filter JobFilter) ([]domain.Job, int, error)
	// ClaimQueued atomically moves up to limit runnable queued jobs to processing.
	ClaimQueued(ctx context.Context, limit int) ([]domain.Job, error)
	SetRemoteJobID(ctx context.Context, jobID uuid.UUID, remoteJobID string) error
	UpdateResult(ctx context.Context, job *domain.Job) error
	Requeue(ctx context.Context, tenantID, jobID uuid.UUID) error
	Delete(ctx context.Context, tenantID, jobID uuid.UUID) error
	ListFinishedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Job, error)
	// ReclaimStale requeues processing jobs last updated before the cutoff,
	// failing those that already used maxAttempts.
	ReclaimStale(ctx context.Context, before time.Time, maxAttempts int) (int64, error)
}
