package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"adekit/internal/domain"
	"adekit/internal/export"
	"adekit/internal/logger"
	"adekit/internal/port"
	s3store "adekit/internal/storage/s3"
	"adekit/internal/validate"
)

// Export formats.
const (
	ExportCSV    = "csv"
	ExportFields = "fields"
	ExportXLSX   = "xlsx"
)

// SubmitInput is the DTO for job submission.
type SubmitInput struct {
	TenantID     uuid.UUID
	SubmittedBy  string
	File         io.ReadSeeker
	FileName     string
	Size         int64
	Model        string
	Split        string
	ExtractModel string
	Schema       json.RawMessage
	NotifyEmail  string
}

// JobResult bundles a completed job with its decoded outputs.
type JobResult struct {
	Job        *domain.Job              `json:"job"`
	Parse      *domain.ParseResult      `json:"parse"`
	Extraction *domain.ExtractionResult `json:"extraction,omitempty"`
	Warnings   []validate.Violation     `json:"warnings,omitempty"`
}

// ExportFile is a rendered export.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// JobService defines the gateway job contract.
type JobService interface {
	Submit(ctx context.Context, input SubmitInput) (*domain.Job, error)
	Get(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, tenantID uuid.UUID, filter port.JobFilter) ([]domain.Job, int, error)
	Result(ctx context.Context, tenantID, jobID uuid.UUID) (*JobResult, error)
	Export(ctx context.Context, tenantID, jobID uuid.UUID, format string) (*ExportFile, error)
	Retry(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.Job, error)
	Delete(ctx context.Context, tenantID, jobID uuid.UUID) error
	Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractionResult, error)
}

type jobService struct {
	repo         port.JobRepository
	store        port.DocumentStore
	processor    port.DocumentProcessor
	schemas      *validate.SchemaValidator
	maxFileBytes int64
}

// NewJobService creates a new JobService implementation. maxFileBytes of
// zero disables the size check.
func NewJobService(
	repo port.JobRepository,
	store port.DocumentStore,
	processor port.DocumentProcessor,
	schemas *validate.SchemaValidator,
	maxFileBytes int64,
) JobService {
	return &jobService{
		repo:         repo,
		store:        store,
		processor:    processor,
		schemas:      schemas,
		maxFileBytes: maxFileBytes,
	}
}

func (s *jobService) Submit(ctx context.Context, input SubmitInput) (*domain.Job, error) {
	log := logger.FromContext(ctx)

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(input.FileName), "."))
	fileType, ok := domain.AllowedExtensions[ext]
	if !ok {
		return nil, domain.ErrUnsupportedFileType
	}
	if input.Size <= 0 {
		return nil, fmt.Errorf("empty file: %w", domain.ErrInvalidRequest)
	}
	if s.maxFileBytes > 0 && input.Size > s.maxFileBytes {
		return nil, domain.ErrFileTooLarge
	}
	if input.Split != domain.SplitNone && input.Split != domain.SplitPage {
		return nil, fmt.Errorf("unknown split mode %q: %w", input.Split, domain.ErrInvalidRequest)
	}
	schema := input.Schema
	if domain.IsEmptyJSON(schema) {
		schema = nil
	} else if err := s.schemas.ValidateSchema(schema); err != nil {
		return nil, err
	}

	// Magic bytes must agree with the extension.
	buf := make([]byte, 512)
	n, err := io.ReadFull(input.File, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	if !fileType.MatchesSniffedType(http.DetectContentType(buf[:n])) {
		return nil, domain.ErrUnsupportedFileType
	}
	if _, err := input.File.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking file: %w", err)
	}

	jobID := uuid.New()
	contentType := domain.AllowedFileTypes[fileType]
	stored, err := s.store.Put(ctx, port.DocumentObject{
		Key:         s3store.DocumentKey(input.TenantID, jobID, input.FileName),
		Body:        input.File,
		ContentType: contentType,
		Size:        input.Size,
	})
	if err != nil {
		log.Error("uploading document", zap.String("job_id", jobID.String()), zap.Error(err))
		return nil, domain.ErrUploadFailed
	}

	job := &domain.Job{
		ID:           jobID,
		TenantID:     input.TenantID,
		SubmittedBy:  input.SubmittedBy,
		FileName:     filepath.Base(input.FileName),
		ContentType:  contentType,
		FileSize:     input.Size,
		S3Bucket:     stored.Bucket,
		S3Key:        stored.Key,
		Model:        input.Model,
		SplitMode:    input.Split,
		ExtractModel: input.ExtractModel,
		Schema:       schema,
		NotifyEmail:  input.NotifyEmail,
		Status:       domain.JobStatusQueued,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		if rmErr := s.store.Remove(ctx, stored.Key); rmErr != nil {
			log.Warn("removing orphaned document", zap.String("key", stored.Key), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}

	log.Info("job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("file_name", job.FileName),
		zap.Int64("file_size", job.FileSize),
		zap.Bool("extract", schema != nil))
	return job, nil
}

func (s *jobService) Get(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.Job, error) {
	return s.repo.GetByID(ctx, tenantID, jobID)
}

func (s *jobService) List(ctx context.Context, tenantID uuid.UUID, filter port.JobFilter) ([]domain.Job, int, error) {
	if filter.Status != "" && !domain.ValidJobStatuses[filter.Status] {
		return nil, 0, fmt.Errorf("unknown status %q: %w", filter.Status, domain.ErrInvalidRequest)
	}
	return s.repo.List(ctx, tenantID, filter)
}

func (s *jobService) Result(ctx context.Context, tenantID, jobID uuid.UUID) (*JobResult, error) {
	job, err := s.repo.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, domain.ErrJobNotCompleted
	}
	return decodeResult(job)
}

func decodeResult(job *domain.Job) (*JobResult, error) {
	res := &JobResult{Job: job}
	if err := json.Unmarshal(job.ParseResult, &res.Parse); err != nil {
		return nil, fmt.Errorf("decoding parse result: %w", err)
	}
	if !domain.IsEmptyJSON(job.Extraction) {
		if err := json.Unmarshal(job.Extraction, &res.Extraction); err != nil {
			return nil, fmt.Errorf("decoding extraction: %w", err)
		}
	}
	if !domain.IsEmptyJSON(job.Warnings) {
		if err := json.Unmarshal(job.Warnings, &res.Warnings); err != nil {
			return nil, fmt.Errorf("decoding warnings: %w", err)
		}
	}
	return res, nil
}

func (s *jobService) Export(ctx context.Context, tenantID, jobID uuid.UUID, format string) (*ExportFile, error) {
	res, err := s.Result(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	out := &ExportFile{}
	switch format {
	case ExportCSV, "":
		err = export.WriteParseCSV(&buf, res.Parse)
		out.FileName = export.BuildFilename(res.Job.FileName, "csv")
		out.ContentType = "text/csv; charset=utf-8"
	case ExportFields:
		if res.Extraction == nil {
			return nil, fmt.Errorf("job has no extraction: %w", domain.ErrInvalidRequest)
		}
		err = export.WriteExtractionCSV(&buf, res.Extraction)
		out.FileName = export.BuildFilename(export.SanitizeFilename(res.Job.FileName)+"_fields", "csv")
		out.ContentType = "text/csv; charset=utf-8"
	case ExportXLSX:
		err = export.WriteWorkbook(&buf, res.Parse, res.Extraction)
		out.FileName = export.BuildFilename(res.Job.FileName, "xlsx")
		out.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return nil, fmt.Errorf("unknown export format %q: %w", format, domain.ErrInvalidRequest)
	}
	if err != nil {
		return nil, fmt.Errorf("writing %s export: %w", format, err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

func (s *jobService) Retry(ctx context.Context, tenantID, jobID uuid.UUID) (*domain.Job, error) {
	if err := s.repo.Requeue(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("job requeued", zap.String("job_id", jobID.String()))
	return s.repo.GetByID(ctx, tenantID, jobID)
}

func (s *jobService) Delete(ctx context.Context, tenantID, jobID uuid.UUID) error {
	job, err := s.repo.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusProcessing {
		return fmt.Errorf("job is processing: %w", domain.ErrInvalidRequest)
	}
	if err := s.repo.Delete(ctx, tenantID, jobID); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, job.S3Key); err != nil {
		logger.FromContext(ctx).Warn("removing document", zap.String("key", job.S3Key), zap.Error(err))
	}
	return nil
}

func (s *jobService) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractionResult, error) {
	if err := s.schemas.ValidateSchema(input.Schema); err != nil {
		return nil, err
	}
	return s.processor.Extract(ctx, input)
}
