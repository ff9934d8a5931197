package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"adekit/internal/logger"
	"adekit/internal/port"
)

const cleanupBatchSize = 100

// CleanupJob deletes finished jobs, and their stored documents, once they
// are older than the retention period.
type CleanupJob struct {
	repo      port.JobRepository
	store     port.DocumentStore
	retention time.Duration
	now       func() time.Time
}

// NewCleanupJob creates a CleanupJob keeping finished jobs for retention.
func NewCleanupJob(repo port.JobRepository, store port.DocumentStore, retention time.Duration) *CleanupJob {
	return &CleanupJob{repo: repo, store: store, retention: retention, now: time.Now}
}

func (j *CleanupJob) Name() string { return "job_cleanup" }

// Run deletes expired jobs in batches until none remain.
func (j *CleanupJob) Run(ctx context.Context) error {
	if j.retention <= 0 {
		return nil
	}
	log := logger.FromContext(ctx)
	cutoff := j.now().UTC().Add(-j.retention)

	deleted := 0
	for {
		jobs, err := j.repo.ListFinishedBefore(ctx, cutoff, cleanupBatchSize)
		if err != nil {
			return fmt.Errorf("listing expired jobs: %w", err)
		}
		for i := range jobs {
			job := &jobs[i]
			if err := j.store.Remove(ctx, job.S3Key); err != nil {
				log.Warn("removing expired document", zap.String("job_id", job.ID.String()), zap.Error(err))
			}
			if err := j.repo.Delete(ctx, job.TenantID, job.ID); err != nil {
				return fmt.Errorf("deleting job %s: %w", job.ID, err)
			}
			deleted++
		}
		if len(jobs) < cleanupBatchSize {
			break
		}
	}

	log.Info("expired jobs removed", zap.Int("count", deleted), zap.Time("cutoff", cutoff))
	return nil
}
