package validate_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adekit/internal/domain"
	"adekit/internal/validate"
)

func sampleParse() *domain.ParseResult {
	return &domain.ParseResult{
		Markdown: "# Invoice\n\nTotal: 42",
		Chunks: []domain.Chunk{
			{ID: "c1", Type: domain.ChunkTypeText, Markdown: "# Invoice", Grounding: []domain.Grounding{
				{Page: 0, Box: domain.Box{Left: 0.1, Top: 0.1, Right: 0.9, Bottom: 0.2}},
			}},
			{ID: "c2", Type: domain.ChunkTypeTable, Markdown: "Total: 42", Grounding: []domain.Grounding{
				{Page: 1, Box: domain.Box{Left: 0.1, Top: 0.3, Right: 0.5, Bottom: 0.4}},
			}},
		},
		Splits: []domain.Split{
			{Class: "page", Identifier: "page_0", Pages: []int{0}, Chunks: []string{"c1"}},
			{Class: "page", Identifier: "page_1", Pages: []int{1}, Chunks: []string{"c2"}},
		},
		Metadata: domain.ParseMetadata{PageCount: 2},
	}
}

func codes(vs []validate.Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Code)
	}
	return out
}

func TestCheckParseResult_Valid(t *testing.T) {
	assert.Empty(t, validate.CheckParseResult(sampleParse(), validate.Bounds{}))
	assert.Nil(t, validate.CheckParseResult(nil, validate.Bounds{}))
}

func TestCheckParseResult_ReferenceAndPageErrors(t *testing.T) {
	res := sampleParse()
	res.Chunks = append(res.Chunks, domain.Chunk{ID: "c1", Type: domain.ChunkTypeLogo})
	res.Splits[1].Chunks = append(res.Splits[1].Chunks, "missing")
	res.Splits[1].Pages = append(res.Splits[1].Pages, 2)

	vs := validate.CheckParseResult(res, validate.Bounds{})
	assert.Equal(t, []string{
		validate.CodeDuplicateChunkID,
		validate.CodeUnknownSplitChunk,
		validate.CodeSplitPageOutOfRange,
	}, codes(vs))
	assert.Equal(t, "chunks[2].id", vs[0].Path)
	assert.Equal(t, "splits[1].chunks[1]", vs[1].Path)
	assert.True(t, validate.HasErrors(vs))
}

func TestCheckParseResult_Boxes(t *testing.T) {
	tests := []struct {
		name   string
		box    domain.Box
		bounds validate.Bounds
		want   []string
	}{
		{"normalized", domain.Box{Left: 0, Top: 0, Right: 1, Bottom: 1}, validate.Bounds{}, []string{}},
		{"inverted", domain.Box{Left: 0.5, Top: 0.1, Right: 0.2, Bottom: 0.3}, validate.Bounds{}, []string{validate.CodeInvertedBox}},
		{"pixel without bounds", domain.Box{Left: 10, Top: 10, Right: 200, Bottom: 50}, validate.Bounds{}, []string{validate.CodeUnverifiableGrounding}},
		{"pixel within bounds", domain.Box{Left: 10, Top: 10, Right: 200, Bottom: 50}, validate.Bounds{Width: 612, Height: 792}, []string{}},
		{"pixel outside bounds", domain.Box{Left: 10, Top: 10, Right: 700, Bottom: 50}, validate.Bounds{Width: 612, Height: 792}, []string{validate.CodeBoxOutOfBounds}},
		{"negative", domain.Box{Left: -5, Top: 0, Right: 0.5, Bottom: 0.5}, validate.Bounds{}, []string{validate.CodeBoxOutOfBounds}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &domain.ParseResult{
				Chunks:   []domain.Chunk{{ID: "c1", Grounding: []domain.Grounding{{Page: 0, Box: tt.box}}}},
				Metadata: domain.ParseMetadata{PageCount: 1},
			}
			assert.Equal(t, tt.want, codes(validate.CheckParseResult(res, tt.bounds)))
		})
	}
}

func TestCheckParseResult_UnverifiableIsWarning(t *testing.T) {
	res := &domain.ParseResult{
		Chunks: []domain.Chunk{{ID: "c1", Grounding: []domain.Grounding{{Page: 0, Box: domain.Box{Right: 300, Bottom: 40}}}}},
	}
	vs := validate.CheckParseResult(res, validate.Bounds{})
	require.Len(t, vs, 1)
	assert.Equal(t, validate.SeverityWarning, vs[0].Severity)
	assert.False(t, validate.HasErrors(vs))
}

func TestCheckParseResult_GroundingPage(t *testing.T) {
	res := sampleParse()
	res.Chunks[1].Grounding[0].Page = 5
	vs := validate.CheckParseResult(res, validate.Bounds{})
	assert.Equal(t, []string{validate.CodeGroundingPage}, codes(vs))
}

func TestCheckExtraction(t *testing.T) {
	good := 0.9
	bad := 1.2
	res := &domain.ExtractionResult{
		Extraction: map[string]any{"total": 42.0, "vendor": "Acme", "date": nil},
		ExtractionMetadata: map[string]domain.FieldReference{
			"total":    {References: []string{"c2"}, Confidence: &good},
			"vendor":   {References: []string{"c1", "c9"}, Confidence: &bad},
			"currency": {References: []string{}},
		},
	}

	vs := validate.CheckExtraction(res, sampleParse())
	assert.Equal(t, []string{
		validate.CodeKeyMismatch,
		validate.CodeKeyMismatch,
		validate.CodeUnknownReference,
		validate.CodeConfidenceRange,
	}, codes(vs))
	assert.Equal(t, "extraction_metadata.date", vs[0].Path)
	assert.Equal(t, "extraction.currency", vs[1].Path)
	assert.Equal(t, "extraction_metadata.vendor.references[1]", vs[2].Path)

	// Without a parse result references are not resolved.
	vs = validate.CheckExtraction(res, nil)
	assert.NotContains(t, codes(vs), validate.CodeUnknownReference)
}

const invoiceSchema = `{
	"type": "object",
	"properties": {
		"total": {"type": "number"},
		"vendor": {"type": "object", "properties": {"name": {"type": "string"}}, "required": ["name"]}
	},
	"required": ["total"]
}`

func TestSchemaValidator_ValidateSchema(t *testing.T) {
	v := validate.NewSchemaValidator(4)

	assert.NoError(t, v.ValidateSchema(json.RawMessage(invoiceSchema)))
	assert.True(t, errors.Is(v.ValidateSchema(json.RawMessage(`{"type": 5}`)), domain.ErrInvalidSchema))
	assert.True(t, errors.Is(v.ValidateSchema(json.RawMessage(`[1, 2]`)), domain.ErrInvalidSchema))
	assert.True(t, errors.Is(v.ValidateSchema(json.RawMessage(`{broken`)), domain.ErrInvalidSchema))
	assert.True(t, errors.Is(v.ValidateSchema(nil), domain.ErrInvalidSchema))
}

func TestSchemaValidator_ValidateExtraction(t *testing.T) {
	v := validate.NewSchemaValidator(4)

	vs, err := v.ValidateExtraction(json.RawMessage(invoiceSchema), map[string]any{
		"total":  42.5,
		"vendor": map[string]any{"name": "Acme"},
	})
	require.NoError(t, err)
	assert.Empty(t, vs)

	vs, err = v.ValidateExtraction(json.RawMessage(invoiceSchema), map[string]any{
		"total":  "forty-two",
		"vendor": map[string]any{},
	})
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "/total", vs[0].Path)
	assert.Equal(t, "/vendor", vs[1].Path)
	for _, viol := range vs {
		assert.Equal(t, validate.CodeSchema, viol.Code)
		assert.NotEmpty(t, viol.Message)
	}
}
