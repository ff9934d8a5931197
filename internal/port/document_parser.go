package port

import (
	"context"
	"encoding/json"

	"adekit/internal/domain"
)

// ParseInput carries the document to parse. Exactly one of Document,
// DocumentPath or DocumentURL must be set.
type ParseInput struct {
	Document     []byte
	FileName     string
	DocumentPath string
	DocumentURL  string
	Model        string
	Split        string
}

// ExtractInput carries markdown and the JSON schema describing the fields to extract.
// Exactly one of Markdown or MarkdownURL must be set.
type ExtractInput struct {
	Markdown    string
	MarkdownURL string
	Schema      json.RawMessage
	Model       string
}

// DocumentProcessor abstracts the synchronous parse and extract calls of the
// document extraction API.
type DocumentProcessor interface {
	Parse(ctx context.Context, input ParseInput) (*domain.ParseResult, error)
	Extract(ctx context.Context, input ExtractInput) (*domain.ExtractionResult, error)
}

// ParseJobClient abstracts the asynchronous submit / poll / fetch flow used for large documents.
type ParseJobClient interface {
	CreateParseJob(ctx context.Context, input ParseInput) (*domain.RemoteJob, error)
	WaitForParseJob(ctx context.Context, jobID string) (*domain.RemoteJob, error)
}
