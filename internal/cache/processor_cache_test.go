package cache_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"adekit/internal/cache"
	"adekit/internal/domain"
	"adekit/internal/port"
	"adekit/mocks"
)

func parsed() *domain.ParseResult {
	return &domain.ParseResult{
		Markdown: "# A",
		Chunks:   []domain.Chunk{{ID: "c1", Type: domain.ChunkTypeText, Markdown: "# A"}},
		Metadata: domain.ParseMetadata{PageCount: 1},
	}
}

func TestCachedProcessor_HitsAndCopies(t *testing.T) {
	next := new(mocks.MockDocumentProcessor)
	next.On("Parse", mock.Anything, mock.Anything).Return(parsed(), nil).Once()

	p := cache.NewCachedProcessor(next, 8, time.Minute)
	ctx := context.Background()
	in := port.ParseInput{Document: []byte("%PDF-1"), FileName: "a.pdf"}

	first, err := p.Parse(ctx, in)
	require.NoError(t, err)
	first.Chunks[0].Markdown = "mutated"

	second, err := p.Parse(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "# A", second.Chunks[0].Markdown)

	second.Chunks[0].ID = "changed"
	third, err := p.Parse(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "c1", third.Chunks[0].ID)

	cp := p.(*cache.CachedProcessor)
	assert.Equal(t, cache.Stats{Hits: 2, Misses: 1}, cp.Stats())
	next.AssertExpectations(t)
}

func TestCachedProcessor_KeyIncludesModelAndSplit(t *testing.T) {
	next := new(mocks.MockDocumentProcessor)
	next.On("Parse", mock.Anything, mock.Anything).Return(parsed(), nil).Times(3)

	p := cache.NewCachedProcessor(next, 8, time.Minute)
	ctx := context.Background()
	doc := []byte("same bytes")

	_, _ = p.Parse(ctx, port.ParseInput{Document: doc})
	_, _ = p.Parse(ctx, port.ParseInput{Document: doc, Split: domain.SplitPage})
	_, _ = p.Parse(ctx, port.ParseInput{Document: doc, Model: "dpt-2-20250919"})
	_, _ = p.Parse(ctx, port.ParseInput{Document: doc})

	next.AssertNumberOfCalls(t, "Parse", 3)
}

func TestCachedProcessor_PathAndURLInputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o600))

	next := new(mocks.MockDocumentProcessor)
	next.On("Parse", mock.Anything, mock.MatchedBy(func(in port.ParseInput) bool {
		return in.DocumentPath == "" && string(in.Document) == "png bytes" && in.FileName == "scan.png"
	})).Return(parsed(), nil).Once()
	next.On("Parse", mock.Anything, mock.MatchedBy(func(in port.ParseInput) bool {
		return in.DocumentURL == "https://example.com/a.pdf"
	})).Return(parsed(), nil).Once()

	p := cache.NewCachedProcessor(next, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.Parse(ctx, port.ParseInput{DocumentPath: path})
		require.NoError(t, err)
		// Identical bytes given directly share the entry.
		_, err = p.Parse(ctx, port.ParseInput{Document: []byte("png bytes")})
		require.NoError(t, err)
		_, err = p.Parse(ctx, port.ParseInput{DocumentURL: "https://example.com/a.pdf"})
		require.NoError(t, err)
	}
	next.AssertExpectations(t)
}

func TestCachedProcessor_PresignedURLsShareEntry(t *testing.T) {
	next := new(mocks.MockDocumentProcessor)
	next.On("Parse", mock.Anything, mock.Anything).Return(parsed(), nil).Times(2)

	p := cache.NewCachedProcessor(next, 8, time.Minute)
	ctx := context.Background()
	const object = "https://docs.s3.eu-west-1.amazonaws.com/tenants/t/jobs/j/invoice.pdf"
	signed := func(date, sig string) string {
		return object + "?X-Amz-Algorithm=AWS4-HMAC-SHA256&X-Amz-Credential=AKIA%2F20261016%2Feu-west-1%2Fs3%2Faws4_request" +
			"&X-Amz-Date=" + date + "&X-Amz-Expires=3600&X-Amz-SignedHeaders=host&X-Amz-Signature=" + sig
	}

	_, err := p.Parse(ctx, port.ParseInput{DocumentURL: signed("20261016T100000Z", "aaa111")})
	require.NoError(t, err)
	_, err = p.Parse(ctx, port.ParseInput{DocumentURL: signed("20261016T100500Z", "bbb222")})
	require.NoError(t, err)

	// Non-signing query parameters still distinguish documents.
	_, err = p.Parse(ctx, port.ParseInput{DocumentURL: signed("20261016T101000Z", "ccc333") + "&versionId=v2"})
	require.NoError(t, err)

	cp := p.(*cache.CachedProcessor)
	assert.Equal(t, cache.Stats{Hits: 1, Misses: 2}, cp.Stats())
	next.AssertExpectations(t)
}

func TestCachedProcessor_ErrorsNotCached(t *testing.T) {
	next := new(mocks.MockDocumentProcessor)
	next.On("Parse", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()
	next.On("Parse", mock.Anything, mock.Anything).Return(parsed(), nil).Once()

	p := cache.NewCachedProcessor(next, 8, time.Minute)
	_, err := p.Parse(context.Background(), port.ParseInput{Document: []byte("x")})
	assert.Error(t, err)
	res, err := p.Parse(context.Background(), port.ParseInput{Document: []byte("x")})
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestCachedProcessor_ExtractPassesThrough(t *testing.T) {
	next := new(mocks.MockDocumentProcessor)
	want := &domain.ExtractionResult{Extraction: map[string]any{"a": 1.0}}
	next.On("Extract", mock.Anything, mock.Anything).Return(want, nil).Twice()

	p := cache.NewCachedProcessor(next, 8, time.Minute)
	in := port.ExtractInput{Markdown: "x"}
	_, _ = p.Extract(context.Background(), in)
	got, err := p.Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	next.AssertExpectations(t)
}

func TestNewCachedProcessor_Disabled(t *testing.T) {
	next := new(mocks.MockDocumentProcessor)
	assert.Same(t, port.DocumentProcessor(next), cache.NewCachedProcessor(next, 0, time.Minute))
	assert.Same(t, port.DocumentProcessor(next), cache.NewCachedProcessor(next, 8, 0))
}
