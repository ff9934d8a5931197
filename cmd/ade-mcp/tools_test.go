package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adekit/internal/ade"
	"adekit/internal/domain"
	"adekit/internal/port"
	"adekit/internal/validate"
)

type fakeProcessor struct {
	parseInput   port.ParseInput
	extractInput port.ExtractInput
	extractErr   error
}

func (f *fakeProcessor) Parse(_ context.Context, in port.ParseInput) (*domain.ParseResult, error) {
	f.parseInput = in
	return &domain.ParseResult{
		Markdown: "Total: 42",
		Chunks:   []domain.Chunk{{ID: "c1", Type: domain.ChunkTypeText, Markdown: "Total: 42", Grounding: []domain.Grounding{}}},
		Splits:   []domain.Split{},
		Metadata: domain.ParseMetadata{PageCount: 1},
	}, nil
}

func (f *fakeProcessor) Extract(_ context.Context, in port.ExtractInput) (*domain.ExtractionResult, error) {
	f.extractInput = in
	return &domain.ExtractionResult{
		Extraction:         map[string]any{"total": "42"},
		ExtractionMetadata: map[string]domain.FieldReference{},
	}, f.extractErr
}

func connect(t *testing.T, proc port.DocumentProcessor) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	server := newServer(&toolset{processor: proc, schemas: validate.NewSchemaValidator(8)})
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func decodeStructured(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	b, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func TestListTools(t *testing.T) {
	session := connect(t, &fakeProcessor{})
	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"parse_document", "extract_fields"}, names)
}

func TestParseDocumentTool(t *testing.T) {
	proc := &fakeProcessor{}
	session := connect(t, proc)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "parse_document",
		Arguments: map[string]any{"url": "https://example.com/invoice.pdf", "split": "page"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out ParseDocumentOutput
	decodeStructured(t, res, &out)
	require.NotNil(t, out.Result)
	assert.Equal(t, "Total: 42", out.Result.Markdown)
	assert.Equal(t, "https://example.com/invoice.pdf", proc.parseInput.DocumentURL)
	assert.Equal(t, "page", proc.parseInput.Split)
}

func TestParseDocumentTool_NeedsOneSource(t *testing.T) {
	session := connect(t, &fakeProcessor{})
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "parse_document",
		Arguments: map[string]any{},
	})
	if err == nil {
		assert.True(t, res.IsError)
	}
}

func TestExtractFieldsTool(t *testing.T) {
	proc := &fakeProcessor{}
	session := connect(t, proc)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "extract_fields",
		Arguments: map[string]any{
			"markdown": "Total: 42",
			"schema": map[string]any{
				"type":       "object",
				"properties": map[string]any{"total": map[string]any{"type": "number"}},
			},
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out ExtractFieldsOutput
	decodeStructured(t, res, &out)
	require.NotNil(t, out.Result)
	assert.Equal(t, "42", out.Result.Extraction["total"])
	// "42" is a string where the schema wants a number.
	assert.NotEmpty(t, out.Warnings)
	assert.Equal(t, "Total: 42", proc.extractInput.Markdown)
}

func TestExtractFieldsTool_PartialResult(t *testing.T) {
	proc := &fakeProcessor{extractErr: &ade.SchemaViolationError{Message: "missing total"}}
	session := connect(t, proc)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "extract_fields",
		Arguments: map[string]any{
			"markdown": "Total: 42",
			"schema":   map[string]any{"type": "object"},
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out ExtractFieldsOutput
	decodeStructured(t, res, &out)
	assert.Contains(t, out.Warnings, "extraction violates schema: missing total")
}
