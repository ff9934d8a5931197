package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"adekit/internal/ade"
	"adekit/internal/domain"
	"adekit/internal/logger"
	"adekit/internal/port"
	"adekit/internal/validate"
)

// Error kinds stored on failed jobs.
const (
	ErrorKindAuth       = "authentication"
	ErrorKindParse      = "parse"
	ErrorKindExtraction = "extraction"
	ErrorKindRateLimit  = "rate_limit"
	ErrorKindStorage    = "storage"
	ErrorKindTimeout    = "timeout"
	ErrorKindInternal   = "internal"
)

// persistTimeout bounds result writes and notifications made after the
// job's own deadline may have passed.
const persistTimeout = 15 * time.Second

// JobWorkerConfig holds settings for the job worker.
type JobWorkerConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	Concurrency  int
	JobTimeout   time.Duration
	// Documents larger than AsyncThreshold bytes go through the async job API.
	AsyncThreshold int64
	// SendURL passes the API a presigned URL instead of the document bytes.
	SendURL    bool
	PresignTTL time.Duration
}

// JobWorker polls for queued jobs and runs them against the extraction API.
type JobWorker struct {
	repo      port.JobRepository
	processor port.DocumentProcessor
	jobs      port.ParseJobClient
	store     port.DocumentStore
	notifier  port.Notifier
	schemas   *validate.SchemaValidator
	cfg       JobWorkerConfig
	wg        sync.WaitGroup
}

// NewJobWorker creates a new JobWorker. jobs may be nil, in which case every
// document is parsed synchronously.
func NewJobWorker(
	repo port.JobRepository,
	processor port.DocumentProcessor,
	jobs port.ParseJobClient,
	store port.DocumentStore,
	notifier port.Notifier,
	schemas *validate.SchemaValidator,
	cfg JobWorkerConfig,
) *JobWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	return &JobWorker{
		repo:      repo,
		processor: processor,
		jobs:      jobs,
		store:     store,
		notifier:  notifier,
		schemas:   schemas,
		cfg:       cfg,
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight jobs have finished.
func (w *JobWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	reclaim := time.NewTicker(w.cfg.JobTimeout)
	defer reclaim.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)
	log := logger.FromContext(ctx).Named("job_worker")

	log.Info("started",
		zap.Duration("poll", w.cfg.PollInterval),
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Int("max_retries", w.cfg.MaxRetries))

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down, waiting for in-flight jobs")
			w.wg.Wait()
			log.Info("shutdown complete")
			return
		case <-reclaim.C:
			if _, err := w.ReclaimStale(logger.WithContext(ctx, log)); err != nil && ctx.Err() == nil {
				log.Error("reclaiming stale jobs", zap.Error(err))
			}
		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			jobs, err := w.repo.ClaimQueued(ctx, available)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error("claiming queued jobs", zap.Error(err))
				continue
			}

			for i := range jobs {
				job := jobs[i]

				sem <- struct{}{}
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }()

					// Detached from the poll context so in-flight jobs finish during shutdown.
					jobCtx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
					defer cancel()
					jobCtx = logger.WithContext(jobCtx, log.With(
						zap.String("job_id", job.ID.String()),
						zap.Int("attempt", job.Attempts)))

					w.ProcessJob(jobCtx, &job)
				}()
			}
		}
	}
}

// ProcessJob parses a claimed job, runs the optional extraction and checks,
// and records the outcome.
func (w *JobWorker) ProcessJob(ctx context.Context, job *domain.Job) {
	log := logger.FromContext(ctx)
	started := time.Now()

	input, err := w.documentInput(ctx, job)
	if err != nil {
		w.fail(ctx, job, ErrorKindStorage, fmt.Sprintf("loading document: %v", err))
		return
	}

	parsed, err := w.parse(ctx, job, input)
	if err != nil {
		w.handleError(ctx, job, fmt.Errorf("parsing document: %w", err))
		return
	}

	warnings := validate.CheckParseResult(parsed, validate.Bounds{})

	var extraction *domain.ExtractionResult
	if !domain.IsEmptyJSON(job.Schema) {
		extraction, err = w.processor.Extract(ctx, port.ExtractInput{
			Markdown: parsed.Markdown,
			Schema:   job.Schema,
			Model:    job.ExtractModel,
		})
		var svErr *ade.SchemaViolationError
		switch {
		case errors.As(err, &svErr) && extraction != nil:
			warnings = append(warnings, validate.Violation{
				Code:     validate.CodeSchema,
				Severity: validate.SeverityWarning,
				Path:     "extraction",
				Message:  svErr.Message,
			})
		case err != nil:
			w.handleError(ctx, job, fmt.Errorf("extracting fields: %w", err))
			return
		}
		warnings = append(warnings, validate.CheckExtraction(extraction, parsed)...)
		if w.schemas != nil {
			vs, err := w.schemas.ValidateExtraction(job.Schema, extraction.Extraction)
			if err != nil {
				log.Warn("schema validation skipped", zap.Error(err))
			}
			warnings = append(warnings, vs...)
		}
	}

	if err := w.complete(job, parsed, extraction, warnings); err != nil {
		w.fail(ctx, job, ErrorKindInternal, err.Error())
		return
	}
	if err := w.save(ctx, job); err != nil {
		log.Error("saving job result", zap.Error(err))
		return
	}

	log.Info("job completed",
		zap.Int("pages", job.PageCount),
		zap.Float64("credits", job.CreditUsage),
		zap.Int("warnings", len(warnings)),
		zap.Duration("took", time.Since(started)))
	w.notify(ctx, job)
}

func (w *JobWorker) documentInput(ctx context.Context, job *domain.Job) (port.ParseInput, error) {
	input := port.ParseInput{
		FileName: job.FileName,
		Model:    job.Model,
		Split:    job.SplitMode,
	}
	if w.cfg.SendURL {
		url, err := w.store.PresignGet(ctx, job.S3Key, w.cfg.PresignTTL)
		if err != nil {
			return input, err
		}
		input.DocumentURL = url
		return input, nil
	}
	data, err := w.store.Fetch(ctx, job.S3Key)
	if err != nil {
		return input, err
	}
	input.Document = data
	return input, nil
}

func (w *JobWorker) parse(ctx context.Context, job *domain.Job, input port.ParseInput) (*domain.ParseResult, error) {
	if w.jobs == nil || w.cfg.AsyncThreshold <= 0 || job.FileSize <= w.cfg.AsyncThreshold {
		return w.processor.Parse(ctx, input)
	}

	remote, err := w.jobs.CreateParseJob(ctx, input)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With(zap.String("remote_job_id", remote.JobID))
	log.Info("submitted async parse job", zap.Int64("file_size", job.FileSize))
	if err := w.repo.SetRemoteJobID(ctx, job.ID, remote.JobID); err != nil {
		log.Warn("recording remote job id", zap.Error(err))
	}
	job.RemoteJobID = remote.JobID

	done, err := w.jobs.WaitForParseJob(ctx, remote.JobID)
	if err != nil {
		return nil, err
	}
	if done.Result == nil {
		return nil, fmt.Errorf("parse job %s completed without a result: %w", remote.JobID, domain.ErrDocumentParse)
	}
	return done.Result, nil
}

func (w *JobWorker) complete(job *domain.Job, parsed *domain.ParseResult, extraction *domain.ExtractionResult, warnings []validate.Violation) error {
	var err error
	if job.ParseResult, err = json.Marshal(parsed); err != nil {
		return fmt.Errorf("marshaling parse result: %w", err)
	}
	job.Extraction = nil
	job.CreditUsage = parsed.Metadata.CreditUsage
	if extraction != nil {
		if job.Extraction, err = json.Marshal(extraction); err != nil {
			return fmt.Errorf("marshaling extraction: %w", err)
		}
		job.CreditUsage += extraction.Metadata.CreditUsage
	}
	job.Warnings = nil
	if len(warnings) > 0 {
		if job.Warnings, err = json.Marshal(warnings); err != nil {
			return fmt.Errorf("marshaling warnings: %w", err)
		}
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.PageCount = parsed.Metadata.PageCount
	job.Error = ""
	job.ErrorKind = ""
	job.RetryAfter = nil
	job.CompletedAt = &now
	return nil
}

// handleError re-queues rate limited jobs while attempts remain and fails
// everything else.
func (w *JobWorker) handleError(ctx context.Context, job *domain.Job, jobErr error) {
	log := logger.FromContext(ctx)

	var rlErr *ade.RateLimitError
	if errors.As(jobErr, &rlErr) && job.Attempts < w.cfg.MaxRetries {
		retryAt := time.Now().UTC().Add(rlErr.RetryAfter)
		job.Status = domain.JobStatusQueued
		job.Error = "rate limited, queued for retry"
		job.ErrorKind = ErrorKindRateLimit
		job.RetryAfter = &retryAt
		if err := w.save(ctx, job); err != nil {
			log.Error("requeueing job", zap.Error(err))
			return
		}
		log.Info("job queued for retry", zap.Time("retry_after", retryAt))
		return
	}
	w.fail(ctx, job, ErrorKind(jobErr), jobErr.Error())
}

func (w *JobWorker) fail(ctx context.Context, job *domain.Job, kind, msg string) {
	log := logger.FromContext(ctx)
	log.Warn("job failed", zap.String("error_kind", kind), zap.String("error", msg))

	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.Error = msg
	job.ErrorKind = kind
	job.RetryAfter = nil
	job.CompletedAt = &now
	if err := w.save(ctx, job); err != nil {
		log.Error("updating failed job", zap.Error(err))
		return
	}
	w.notify(ctx, job)
}

// save writes the job's outcome even when ctx has been cancelled or its
// deadline has passed.
func (w *JobWorker) save(ctx context.Context, job *domain.Job) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return w.repo.UpdateResult(ctx, job)
}

// ReclaimStale returns jobs stuck in processing past the job timeout to the
// queue, or fails them once their attempts are used up.
func (w *JobWorker) ReclaimStale(ctx context.Context) (int64, error) {
	maxAttempts := w.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	cutoff := time.Now().UTC().Add(-w.cfg.JobTimeout - persistTimeout)
	n, err := w.repo.ReclaimStale(ctx, cutoff, maxAttempts)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.FromContext(ctx).Warn("reclaimed stale jobs", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

func (w *JobWorker) notify(ctx context.Context, job *domain.Job) {
	if w.notifier == nil || job.NotifyEmail == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := w.notifier.NotifyJobFinished(ctx, job); err != nil {
		logger.FromContext(ctx).Warn("sending job notification", zap.Error(err))
	}
}

// ErrorKind classifies a processing error for storage on the job.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return ErrorKindRateLimit
	case errors.Is(err, domain.ErrAuthentication):
		return ErrorKindAuth
	case errors.Is(err, domain.ErrExtraction):
		return ErrorKindExtraction
	case errors.Is(err, domain.ErrDocumentParse):
		return ErrorKindParse
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	default:
		return ErrorKindInternal
	}
}
