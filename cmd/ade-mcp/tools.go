package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"adekit/internal/ade"
	"adekit/internal/domain"
	"adekit/internal/logger"
	"adekit/internal/port"
	"adekit/internal/validate"
)

// ParseDocumentInput defines input for the parse_document tool.
type ParseDocumentInput struct {
	Path  string `json:"path,omitempty" jsonschema:"local path of the document; set exactly one of path or url"`
	URL   string `json:"url,omitempty" jsonschema:"http(s) URL of the document"`
	Model string `json:"model,omitempty" jsonschema:"parse model; defaults to the configured model"`
	Split string `json:"split,omitempty" jsonschema:"split mode: empty or page"`
}

// ParseDocumentOutput defines output for the parse_document tool.
type ParseDocumentOutput struct {
	Result   *domain.ParseResult `json:"result"`
	Warnings []string            `json:"warnings,omitempty"`
}

// ExtractFieldsInput defines input for the extract_fields tool.
type ExtractFieldsInput struct {
	Markdown string         `json:"markdown" jsonschema:"markdown produced by parse_document"`
	Schema   map[string]any `json:"schema" jsonschema:"JSON schema describing the fields to extract"`
	Model    string         `json:"model,omitempty" jsonschema:"extraction model; defaults to the configured model"`
}

// ExtractFieldsOutput defines output for the extract_fields tool.
type ExtractFieldsOutput struct {
	Result   *domain.ExtractionResult `json:"result"`
	Warnings []string                 `json:"warnings,omitempty"`
}

type toolset struct {
	processor port.DocumentProcessor
	schemas   *validate.SchemaValidator
}

func (t *toolset) register(server *mcp.Server) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "parse_document",
			Description: "Parses a PDF, image or office document into markdown, grounded chunks and page splits.",
		},
		t.parseDocument,
	)
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "extract_fields",
			Description: "Extracts structured fields described by a JSON schema from parsed markdown.",
		},
		t.extractFields,
	)
}

func (t *toolset) parseDocument(ctx context.Context, _ *mcp.CallToolRequest, input ParseDocumentInput) (*mcp.CallToolResult, ParseDocumentOutput, error) {
	if (input.Path == "") == (input.URL == "") {
		return nil, ParseDocumentOutput{}, fmt.Errorf("exactly one of path or url is required")
	}
	res, err := t.processor.Parse(ctx, port.ParseInput{
		DocumentPath: input.Path,
		DocumentURL:  input.URL,
		Model:        input.Model,
		Split:        input.Split,
	})
	if err != nil {
		return nil, ParseDocumentOutput{}, fmt.Errorf("parse failed: %w", err)
	}
	out := ParseDocumentOutput{Result: res}
	for _, v := range validate.CheckParseResult(res, validate.Bounds{}) {
		out.Warnings = append(out.Warnings, v.String())
	}
	return nil, out, nil
}

func (t *toolset) extractFields(ctx context.Context, _ *mcp.CallToolRequest, input ExtractFieldsInput) (*mcp.CallToolResult, ExtractFieldsOutput, error) {
	if input.Markdown == "" {
		return nil, ExtractFieldsOutput{}, fmt.Errorf("markdown is required")
	}
	schema, err := json.Marshal(input.Schema)
	if err != nil {
		return nil, ExtractFieldsOutput{}, fmt.Errorf("encoding schema: %w", err)
	}
	if err := t.schemas.ValidateSchema(schema); err != nil {
		return nil, ExtractFieldsOutput{}, err
	}

	res, err := t.processor.Extract(ctx, port.ExtractInput{Markdown: input.Markdown, Schema: schema, Model: input.Model})
	out := ExtractFieldsOutput{Result: res}
	var sve *ade.SchemaViolationError
	switch {
	case errors.As(err, &sve) && res != nil:
		logger.FromContext(ctx).Warn("partial extraction", zap.String("reason", sve.Message))
		out.Warnings = append(out.Warnings, sve.Error())
	case err != nil:
		return nil, ExtractFieldsOutput{}, fmt.Errorf("extraction failed: %w", err)
	}

	violations, err := t.schemas.ValidateExtraction(schema, res.Extraction)
	if err != nil {
		return nil, ExtractFieldsOutput{}, err
	}
	for _, v := range violations {
		out.Warnings = append(out.Warnings, v.String())
	}
	return nil, out, nil
}
