package ade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"adekit/internal/domain"
	"adekit/internal/logger"
	"adekit/internal/port"
)

// PollOptions controls how WaitForParseJob polls a job.
type PollOptions struct {
	// Interval is the first delay between polls (default 2s).
	Interval time.Duration
	// MaxInterval caps the delay as it grows by 1.5x per poll (default 30s).
	MaxInterval time.Duration
	// Timeout bounds the whole wait (default 30m).
	Timeout time.Duration
	// OnProgress, when set, is called after every poll.
	OnProgress func(job *domain.RemoteJob)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 30 * time.Second
	}
	if o.MaxInterval < o.Interval {
		o.MaxInterval = o.Interval
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Minute
	}
	return o
}

// ListJobsOptions filters ListParseJobs.
type ListJobsOptions struct {
	Page     int
	PageSize int
	Status   domain.RemoteJobStatus
}

// JobList is one page of parse jobs.
type JobList struct {
	Jobs    []domain.RemoteJob
	HasMore bool
}

// CreateParseJob submits a document for asynchronous parsing.
func (c *Client) CreateParseJob(ctx context.Context, input port.ParseInput) (*domain.RemoteJob, error) {
	body, contentType, err := c.buildParseForm(input)
	if err != nil {
		return nil, err
	}
	respBody, err := c.do(ctx, request{
		family:      familyJobs,
		method:      http.MethodPost,
		path:        jobsPath,
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("create parse job: %w", err)
	}

	var resp wireJob
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling job response: %w", err)
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("create parse job: response has no job_id")
	}
	status := domain.RemoteJobStatus(resp.Status)
	if status == "" {
		status = domain.RemoteJobPending
	}
	logger.FromContext(ctx).Info("parse job submitted", zap.String("remote_job_id", resp.JobID))
	return &domain.RemoteJob{JobID: resp.JobID, Status: status, CreatedAt: time.Now().UTC()}, nil
}

// GetParseJob fetches the status of a job. For completed jobs the result is
// included, downloading it from output_url when the API does not inline it.
func (c *Client) GetParseJob(ctx context.Context, jobID string) (*domain.RemoteJob, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required: %w", domain.ErrInvalidRequest)
	}
	respBody, err := c.do(ctx, request{
		family: familyJobs,
		method: http.MethodGet,
		path:   jobsPath + "/" + url.PathEscape(jobID),
	})
	if err != nil {
		return nil, fmt.Errorf("get parse job %s: %w", jobID, err)
	}

	var resp wireJob
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling job response: %w", err)
	}
	job := resp.toDomain()
	if job.JobID == "" {
		job.JobID = jobID
	}

	if job.Status != domain.RemoteJobCompleted {
		return job, nil
	}
	switch {
	case len(resp.Data) > 0 && string(resp.Data) != "null":
		res, err := decodeParseResult(resp.Data)
		if err != nil {
			return nil, err
		}
		job.Result = res
	case resp.OutputURL != "":
		res, err := c.fetchOutput(ctx, resp.OutputURL)
		if err != nil {
			return nil, fmt.Errorf("fetching output of job %s: %w", jobID, err)
		}
		job.Result = res
	default:
		return nil, fmt.Errorf("job %s completed without data or output_url", jobID)
	}
	return job, nil
}

// ListParseJobs returns one page of the organization's parse jobs.
func (c *Client) ListParseJobs(ctx context.Context, opts ListJobsOptions) (*JobList, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(opts.Page))
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	q.Set("pageSize", strconv.Itoa(pageSize))
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}

	respBody, err := c.do(ctx, request{
		family: familyJobs,
		method: http.MethodGet,
		path:   jobsPath + "?" + q.Encode(),
	})
	if err != nil {
		return nil, fmt.Errorf("list parse jobs: %w", err)
	}
	var resp wireJobList
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling job list: %w", err)
	}
	list := &JobList{HasMore: resp.HasMore, Jobs: make([]domain.RemoteJob, 0, len(resp.Jobs))}
	for _, j := range resp.Jobs {
		list.Jobs = append(list.Jobs, *j.toDomain())
	}
	return list, nil
}

// WaitForParseJob polls a job with the client's default PollOptions.
func (c *Client) WaitForParseJob(ctx context.Context, jobID string) (*domain.RemoteJob, error) {
	return c.Poll(ctx, jobID, c.poll)
}

// Poll re-fetches a job until it reaches a terminal state, the timeout
// elapses or ctx is cancelled. Failed and cancelled jobs return a *JobFailedError.
func (c *Client) Poll(ctx context.Context, jobID string, opts PollOptions) (*domain.RemoteJob, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	log := logger.FromContext(ctx).With(zap.String("remote_job_id", jobID))
	interval := opts.Interval
	for {
		job, err := c.GetParseJob(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("waiting for job %s: %w", jobID, ctx.Err())
			}
			return nil, err
		}
		if opts.OnProgress != nil {
			opts.OnProgress(job)
		}

		switch job.Status {
		case domain.RemoteJobCompleted:
			log.Info("parse job completed")
			return job, nil
		case domain.RemoteJobFailed, domain.RemoteJobCancelled:
			return job, &JobFailedError{JobID: jobID, Status: job.Status, Reason: job.FailureReason}
		}

		log.Debug("parse job pending",
			zap.String("status", string(job.Status)),
			zap.Float64("progress", job.Progress),
			zap.Duration("next_poll", interval))
		if err := sleep(ctx, interval); err != nil {
			return nil, fmt.Errorf("waiting for job %s: %w", jobID, err)
		}
		interval = time.Duration(float64(interval) * 1.5)
		if interval > opts.MaxInterval {
			interval = opts.MaxInterval
		}
	}
}

// ParseAsync submits a parse job and waits for its result.
func (c *Client) ParseAsync(ctx context.Context, input port.ParseInput, opts PollOptions) (*domain.ParseResult, error) {
	job, err := c.CreateParseJob(ctx, input)
	if err != nil {
		return nil, err
	}
	done, err := c.Poll(ctx, job.JobID, opts)
	if err != nil {
		return nil, err
	}
	return done.Result, nil
}

// fetchOutput downloads a result from a presigned output URL. No API key is sent.
func (c *Client) fetchOutput(ctx context.Context, outputURL string) (*domain.ParseResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading output: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("output download failed (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return decodeParseResult(body)
}

func (w *wireJob) toDomain() *domain.RemoteJob {
	job := &domain.RemoteJob{
		JobID:         w.JobID,
		Status:        domain.RemoteJobStatus(w.Status),
		Progress:      w.Progress,
		OutputURL:     w.OutputURL,
		FailureReason: w.FailureReason,
	}
	if w.ReceivedAt > 0 {
		job.CreatedAt = time.UnixMilli(w.ReceivedAt).UTC()
	}
	return job
}
