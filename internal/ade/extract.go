package ade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"adekit/internal/domain"
	"adekit/internal/logger"
	"adekit/internal/port"
)

// Extract sends markdown and a JSON schema and returns the extracted fields
// with their chunk references.
//
// When the API reports a schema violation the partial result is returned
// together with a *SchemaViolationError.
func (c *Client) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractionResult, error) {
	body, contentType, err := c.buildExtractForm(input)
	if err != nil {
		return nil, err
	}

	respBody, err := c.do(ctx, request{
		family:      familyExtract,
		method:      http.MethodPost,
		path:        extractPath,
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	var resp wireExtractResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling extract response: %w (raw: %s)", err, truncate(string(respBody), 500))
	}
	res, err := resp.toDomain()
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Debug("fields extracted",
		zap.Int("fields", len(res.Extraction)),
		zap.Float64("credits", res.Metadata.CreditUsage))

	if res.Metadata.SchemaViolationError != "" {
		return res, &SchemaViolationError{Message: res.Metadata.SchemaViolationError}
	}
	return res, nil
}

func (c *Client) buildExtractForm(input port.ExtractInput) ([]byte, string, error) {
	if (input.Markdown == "") == (input.MarkdownURL == "") {
		return nil, "", fmt.Errorf("exactly one of markdown or markdown url is required: %w", domain.ErrInvalidRequest)
	}
	if len(bytes.TrimSpace(input.Schema)) == 0 {
		return nil, "", fmt.Errorf("schema is required: %w", domain.ErrInvalidSchema)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, input.Schema); err != nil {
		return nil, "", fmt.Errorf("schema is not valid JSON: %v: %w", err, domain.ErrInvalidSchema)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if input.MarkdownURL != "" {
		if err := w.WriteField("markdown_url", input.MarkdownURL); err != nil {
			return nil, "", fmt.Errorf("writing markdown_url: %w", err)
		}
	} else {
		part, err := w.CreateFormFile("markdown", "document.md")
		if err != nil {
			return nil, "", fmt.Errorf("creating markdown part: %w", err)
		}
		if _, err := part.Write([]byte(input.Markdown)); err != nil {
			return nil, "", fmt.Errorf("writing markdown part: %w", err)
		}
	}
	if err := w.WriteField("schema", compact.String()); err != nil {
		return nil, "", fmt.Errorf("writing schema: %w", err)
	}
	model := input.Model
	if model == "" {
		model = c.extractModel
	}
	if err := w.WriteField("model", model); err != nil {
		return nil, "", fmt.Errorf("writing model: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
