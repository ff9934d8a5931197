package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"adekit/internal/domain"
	"adekit/internal/port"
	"adekit/internal/service"
	"adekit/internal/validate"
	"adekit/mocks"
)

// pdfContent returns minimal valid PDF bytes.
func pdfContent() []byte {
	return []byte("%PDF-1.4 test content that is at least a few bytes long for detection purposes")
}

// pngContent returns minimal valid PNG bytes (magic bytes).
func pngContent() []byte {
	header := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	return append(header, bytes.Repeat([]byte{0x00}, 100)...)
}

func newJobService() (service.JobService, *mocks.MockJobRepository, *mocks.MockDocumentStore, *mocks.MockDocumentProcessor) {
	repo := new(mocks.MockJobRepository)
	store := new(mocks.MockDocumentStore)
	processor := new(mocks.MockDocumentProcessor)
	svc := service.NewJobService(repo, store, processor, validate.NewSchemaValidator(8), 1<<20)
	return svc, repo, store, processor
}

func submitInput(name string, content []byte) service.SubmitInput {
	return service.SubmitInput{
		TenantID:    uuid.New(),
		SubmittedBy: "cli",
		File:        bytes.NewReader(content),
		FileName:    name,
		Size:        int64(len(content)),
		Model:       "dpt-2-latest",
	}
}

func TestJobService_Submit_Success(t *testing.T) {
	svc, repo, store, _ := newJobService()
	input := submitInput("invoice.pdf", pdfContent())
	input.Schema = json.RawMessage(`{"type":"object","properties":{"total":{"type":"number"}}}`)
	input.NotifyEmail = "ops@example.com"

	store.On("Put", mock.Anything, mock.MatchedBy(func(obj port.DocumentObject) bool {
		return strings.HasPrefix(obj.Key, "tenants/"+input.TenantID.String()+"/jobs/") &&
			strings.HasSuffix(obj.Key, "/invoice.pdf") &&
			obj.ContentType == "application/pdf" &&
			obj.Size == input.Size
	})).Return(&port.StoredDocument{Bucket: "docs", Key: "k"}, nil)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Job")).Return(nil)

	job, err := svc.Submit(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, input.TenantID, job.TenantID)
	assert.Equal(t, "docs", job.S3Bucket)
	assert.Equal(t, "k", job.S3Key)
	assert.Equal(t, "invoice.pdf", job.FileName)
	assert.Equal(t, "ops@example.com", job.NotifyEmail)
	assert.JSONEq(t, string(input.Schema), string(job.Schema))
	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestJobService_Submit_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		input   func() service.SubmitInput
		wantErr error
	}{
		{"unsupported extension", func() service.SubmitInput {
			return submitInput("notes.txt", []byte("hello"))
		}, domain.ErrUnsupportedFileType},
		{"magic bytes mismatch", func() service.SubmitInput {
			return submitInput("invoice.pdf", pngContent())
		}, domain.ErrUnsupportedFileType},
		{"too large", func() service.SubmitInput {
			in := submitInput("invoice.pdf", pdfContent())
			in.Size = 2 << 20
			return in
		}, domain.ErrFileTooLarge},
		{"empty", func() service.SubmitInput {
			return submitInput("invoice.pdf", nil)
		}, domain.ErrInvalidRequest},
		{"bad split", func() service.SubmitInput {
			in := submitInput("invoice.pdf", pdfContent())
			in.Split = "chapter"
			return in
		}, domain.ErrInvalidRequest},
		{"invalid schema", func() service.SubmitInput {
			in := submitInput("invoice.pdf", pdfContent())
			in.Schema = json.RawMessage(`{"type": 7}`)
			return in
		}, domain.ErrInvalidSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, store, _ := newJobService()
			_, err := svc.Submit(context.Background(), tt.input())
			assert.ErrorIs(t, err, tt.wantErr)
			store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestJobService_Submit_PNG(t *testing.T) {
	svc, repo, store, _ := newJobService()
	store.On("Put", mock.Anything, mock.MatchedBy(func(obj port.DocumentObject) bool {
		return obj.ContentType == "image/png"
	})).Return(&port.StoredDocument{Bucket: "docs", Key: "k"}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	job, err := svc.Submit(context.Background(), submitInput("scan.png", pngContent()))
	require.NoError(t, err)
	assert.Nil(t, job.Schema)
}

func TestJobService_Submit_UploadFails(t *testing.T) {
	svc, repo, store, _ := newJobService()
	store.On("Put", mock.Anything, mock.Anything).Return(nil, errors.New("s3 down"))

	_, err := svc.Submit(context.Background(), submitInput("invoice.pdf", pdfContent()))
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestJobService_Submit_CreateFailsRemovesObject(t *testing.T) {
	svc, repo, store, _ := newJobService()
	store.On("Put", mock.Anything, mock.Anything).Return(&port.StoredDocument{Bucket: "docs", Key: "k"}, nil)
	store.On("Remove", mock.Anything, "k").Return(nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := svc.Submit(context.Background(), submitInput("invoice.pdf", pdfContent()))
	assert.Error(t, err)
	store.AssertExpectations(t)
}

func completedJob(t *testing.T, withExtraction bool) *domain.Job {
	t.Helper()
	parse, err := json.Marshal(parsedInvoice())
	require.NoError(t, err)
	now := time.Now()
	job := &domain.Job{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		FileName:    "invoice.pdf",
		S3Key:       "k",
		Status:      domain.JobStatusCompleted,
		ParseResult: parse,
		Extraction:  json.RawMessage("null"),
		Warnings:    json.RawMessage(`[{"code":"unverifiable_grounding","severity":"warning","path":"chunks[0].grounding[0]","message":"m"}]`),
		CompletedAt: &now,
	}
	if withExtraction {
		job.Extraction = json.RawMessage(`{"extraction":{"total":42},"extraction_metadata":{"total":{"references":["c2"]}},"metadata":{"duration_ms":5,"credit_usage":1}}`)
	}
	return job
}

func TestJobService_Result(t *testing.T) {
	svc, repo, _, _ := newJobService()
	job := completedJob(t, true)
	repo.On("GetByID", mock.Anything, job.TenantID, job.ID).Return(job, nil)

	res, err := svc.Result(context.Background(), job.TenantID, job.ID)
	require.NoError(t, err)
	assert.Len(t, res.Parse.Chunks, 2)
	require.NotNil(t, res.Extraction)
	assert.Equal(t, 42.0, res.Extraction.Extraction["total"])
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, validate.CodeUnverifiableGrounding, res.Warnings[0].Code)
}

func TestJobService_Result_NotCompleted(t *testing.T) {
	svc, repo, _, _ := newJobService()
	job := &domain.Job{ID: uuid.New(), TenantID: uuid.New(), Status: domain.JobStatusProcessing}
	repo.On("GetByID", mock.Anything, job.TenantID, job.ID).Return(job, nil)

	_, err := svc.Result(context.Background(), job.TenantID, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotCompleted)
}

func TestJobService_Export(t *testing.T) {
	svc, repo, _, _ := newJobService()
	job := completedJob(t, true)
	repo.On("GetByID", mock.Anything, job.TenantID, job.ID).Return(job, nil)
	ctx := context.Background()

	csvFile, err := svc.Export(ctx, job.TenantID, job.ID, service.ExportCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(csvFile.FileName, "invoice_"))
	assert.True(t, strings.HasSuffix(csvFile.FileName, ".csv"))
	assert.Contains(t, string(csvFile.Data), "Chunk ID")

	fields, err := svc.Export(ctx, job.TenantID, job.ID, service.ExportFields)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fields.FileName, "invoice_fields_"))
	assert.Contains(t, string(fields.Data), "total")

	xlsx, err := svc.Export(ctx, job.TenantID, job.ID, service.ExportXLSX)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(xlsx.Data, []byte("PK")))

	_, err = svc.Export(ctx, job.TenantID, job.ID, "pdf")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestJobService_Export_FieldsWithoutExtraction(t *testing.T) {
	svc, repo, _, _ := newJobService()
	job := completedJob(t, false)
	repo.On("GetByID", mock.Anything, job.TenantID, job.ID).Return(job, nil)

	_, err := svc.Export(context.Background(), job.TenantID, job.ID, service.ExportFields)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestJobService_List_InvalidStatus(t *testing.T) {
	svc, repo, _, _ := newJobService()
	_, _, err := svc.List(context.Background(), uuid.New(), port.JobFilter{Status: "done"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobService_Retry(t *testing.T) {
	svc, repo, _, _ := newJobService()
	tenantID, jobID := uuid.New(), uuid.New()
	requeued := &domain.Job{ID: jobID, TenantID: tenantID, Status: domain.JobStatusQueued}
	repo.On("Requeue", mock.Anything, tenantID, jobID).Return(nil)
	repo.On("GetByID", mock.Anything, tenantID, jobID).Return(requeued, nil)

	job, err := svc.Retry(context.Background(), tenantID, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)

	other := uuid.New()
	repo.On("Requeue", mock.Anything, tenantID, other).Return(domain.ErrJobNotRetryable)
	_, err = svc.Retry(context.Background(), tenantID, other)
	assert.ErrorIs(t, err, domain.ErrJobNotRetryable)
}

func TestJobService_Delete(t *testing.T) {
	svc, repo, store, _ := newJobService()
	job := completedJob(t, false)
	repo.On("GetByID", mock.Anything, job.TenantID, job.ID).Return(job, nil)
	repo.On("Delete", mock.Anything, job.TenantID, job.ID).Return(nil)
	store.On("Remove", mock.Anything, "k").Return(errors.New("already gone"))

	require.NoError(t, svc.Delete(context.Background(), job.TenantID, job.ID))
	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestJobService_Delete_Processing(t *testing.T) {
	svc, repo, _, _ := newJobService()
	job := &domain.Job{ID: uuid.New(), TenantID: uuid.New(), Status: domain.JobStatusProcessing}
	repo.On("GetByID", mock.Anything, job.TenantID, job.ID).Return(job, nil)

	err := svc.Delete(context.Background(), job.TenantID, job.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobService_Extract(t *testing.T) {
	svc, _, _, processor := newJobService()
	want := &domain.ExtractionResult{Extraction: map[string]any{"total": 42.0}}
	processor.On("Extract", mock.Anything, mock.Anything).Return(want, nil).Once()

	in := port.ExtractInput{Markdown: "Total: 42", Schema: json.RawMessage(`{"type":"object"}`)}
	got, err := svc.Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = svc.Extract(context.Background(), port.ExtractInput{Markdown: "x", Schema: json.RawMessage(`"nope"`)})
	assert.ErrorIs(t, err, domain.ErrInvalidSchema)
	processor.AssertExpectations(t)
}
