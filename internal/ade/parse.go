package ade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"adekit/internal/domain"
	"adekit/internal/logger"
	"adekit/internal/port"
)

const (
	parsePath   = "/v1/ade/parse"
	extractPath = "/v1/ade/extract"
	jobsPath    = "/v1/ade/parse/jobs"
)

// Parse submits a document and returns its markdown, chunks, splits and metadata.
func (c *Client) Parse(ctx context.Context, input port.ParseInput) (*domain.ParseResult, error) {
	body, contentType, err := c.buildParseForm(input)
	if err != nil {
		return nil, err
	}

	respBody, err := c.do(ctx, request{
		family:      familyParse,
		method:      http.MethodPost,
		path:        parsePath,
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	res, err := decodeParseResult(respBody)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("document parsed",
		zap.String("filename", res.Metadata.FileName),
		zap.Int("pages", res.Metadata.PageCount),
		zap.Int("chunks", len(res.Chunks)),
		zap.Float64("credits", res.Metadata.CreditUsage))
	return res, nil
}

func decodeParseResult(body []byte) (*domain.ParseResult, error) {
	var resp wireParseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling parse response: %w (raw: %s)", err, truncate(string(body), 500))
	}
	return resp.toDomain(), nil
}

// buildParseForm encodes the multipart body shared by the parse and parse-job endpoints.
func (c *Client) buildParseForm(input port.ParseInput) ([]byte, string, error) {
	sources := 0
	for _, set := range []bool{len(input.Document) > 0, input.DocumentPath != "", input.DocumentURL != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return nil, "", fmt.Errorf("exactly one of document bytes, path or url is required: %w", domain.ErrInvalidRequest)
	}
	if input.Split != domain.SplitNone && input.Split != domain.SplitPage {
		return nil, "", fmt.Errorf("unsupported split mode %q: %w", input.Split, domain.ErrInvalidRequest)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	switch {
	case input.DocumentURL != "":
		if err := w.WriteField("document_url", input.DocumentURL); err != nil {
			return nil, "", fmt.Errorf("writing document_url: %w", err)
		}
	default:
		data := input.Document
		name := input.FileName
		if input.DocumentPath != "" {
			b, err := os.ReadFile(input.DocumentPath)
			if err != nil {
				return nil, "", fmt.Errorf("reading document: %w", err)
			}
			data = b
			if name == "" {
				name = filepath.Base(input.DocumentPath)
			}
		}
		if name == "" {
			name = "document"
		}
		part, err := w.CreateFormFile("document", name)
		if err != nil {
			return nil, "", fmt.Errorf("creating document part: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("writing document part: %w", err)
		}
	}

	model := input.Model
	if model == "" {
		model = c.parseModel
	}
	if err := w.WriteField("model", model); err != nil {
		return nil, "", fmt.Errorf("writing model: %w", err)
	}
	if input.Split != "" {
		if err := w.WriteField("split", input.Split); err != nil {
			return nil, "", fmt.Errorf("writing split: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// IsRetryable reports whether err is worth retrying later: rate limits,
// server errors and transport failures. Authentication, parse and extraction
// errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == CategoryServer
	}
	var jobErr *JobFailedError
	var svErr *SchemaViolationError
	if errors.As(err, &jobErr) || errors.As(err, &svErr) || errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, os.ErrNotExist) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
