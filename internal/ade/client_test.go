package ade_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adekit/internal/ade"
	"adekit/internal/config"
	"adekit/internal/domain"
	"adekit/internal/port"
)

const parseResponse = `{
	"markdown": "# Invoice\n\nTotal: 42",
	"chunks": [
		{"id": "c1", "type": "text", "markdown": "# Invoice", "grounding": [{"page": 0, "box": {"left": 0.1, "top": 0.1, "right": 0.9, "bottom": 0.2}}]},
		{"chunk_id": "c2", "chunk_type": "chunk_table", "text": "Total: 42", "grounding": {"page": 0, "box": {"l": 0.1, "t": 0.3, "r": 0.5, "b": 0.4}}}
	],
	"splits": [{"class": "page", "identifier": "page_0", "pages": [0], "markdown": "# Invoice", "chunks": ["c1", "c2"]}],
	"metadata": {"filename": "invoice.pdf", "page_count": 1, "duration_ms": 1200, "credit_usage": 3, "version": "dpt-2-20250919"}
}`

func newTestClient(serverURL string, maxRetries int) *ade.Client {
	cfg := &config.ClientConfig{
		APIKey:      "test-key",
		MaxRetries:  maxRetries,
		TimeoutSecs: 5,
	}
	c := ade.NewClientWithEndpoint(cfg, serverURL)
	c.SetRetryBackoff(time.Millisecond, 5*time.Millisecond)
	return c
}

func TestNewClient_Environments(t *testing.T) {
	c, err := ade.NewClient(&config.ClientConfig{APIKey: "k", Environment: "eu"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.va.eu-west-1.landing.ai", c.BaseURL())

	c, err = ade.NewClient(&config.ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.va.landing.ai", c.BaseURL())

	_, err = ade.NewClient(&config.ClientConfig{APIKey: "k", Environment: "mars"})
	assert.Error(t, err)

	_, err = ade.NewClient(&config.ClientConfig{})
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
}

func TestClient_Parse_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ade/parse", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "dpt-2-latest", r.FormValue("model"))
		assert.Equal(t, "page", r.FormValue("split"))

		file, hdr, err := r.FormFile("document")
		assert.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "invoice.pdf", hdr.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "%PDF-1.4", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(parseResponse))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	res, err := c.Parse(context.Background(), port.ParseInput{
		Document: []byte("%PDF-1.4"),
		FileName: "invoice.pdf",
		Split:    domain.SplitPage,
	})
	require.NoError(t, err)

	assert.Equal(t, "# Invoice\n\nTotal: 42", res.Markdown)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "c2", res.Chunks[1].ID)
	assert.Equal(t, domain.ChunkTypeTable, res.Chunks[1].Type)
	assert.Equal(t, "Total: 42", res.Chunks[1].Markdown)
	require.Len(t, res.Chunks[1].Grounding, 1)
	assert.Equal(t, domain.Box{Left: 0.1, Top: 0.3, Right: 0.5, Bottom: 0.4}, res.Chunks[1].Grounding[0].Box)
	require.Len(t, res.Splits, 1)
	assert.Equal(t, []string{"c1", "c2"}, res.Splits[0].Chunks)
	assert.Equal(t, 1, res.Metadata.PageCount)
	assert.Equal(t, "invoice.pdf", res.Metadata.FileName)
	assert.InDelta(t, 3.0, res.Metadata.CreditUsage, 0.001)
}

func TestClient_Parse_DocumentURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "https://example.com/a.pdf", r.FormValue("document_url"))
		assert.Equal(t, "dpt-2-20250919", r.FormValue("model"))
		assert.Empty(t, r.MultipartForm.File["document"])
		_, _ = w.Write([]byte(parseResponse))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	_, err := c.Parse(context.Background(), port.ParseInput{
		DocumentURL: "https://example.com/a.pdf",
		Model:       "dpt-2-20250919",
	})
	assert.NoError(t, err)
}

func TestClient_Parse_InvalidInput(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", 0)

	_, err := c.Parse(context.Background(), port.ParseInput{})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))

	_, err = c.Parse(context.Background(), port.ParseInput{Document: []byte("x"), DocumentURL: "https://x"})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))

	_, err = c.Parse(context.Background(), port.ParseInput{Document: []byte("x"), Split: "section"})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	assert.False(t, ade.IsRetryable(err))
}

func TestClient_Parse_AuthErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 3)
	_, err := c.Parse(context.Background(), port.ParseInput{Document: []byte("x")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, ade.IsRetryable(err))
}

func TestClient_Parse_UnprocessableIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"file is corrupted"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 2)
	_, err := c.Parse(context.Background(), port.ParseInput{Document: []byte("x")})
	assert.True(t, errors.Is(err, domain.ErrDocumentParse))

	var apiErr *ade.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "file is corrupted", apiErr.Message)
}

func TestClient_Parse_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(parseResponse))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 3)
	res, err := c.Parse(context.Background(), port.ParseInput{Document: []byte("x")})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_RateLimit_OpensCircuit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(server.URL, 1)
	_, err := c.Parse(context.Background(), port.ParseInput{Document: []byte("x")})
	require.Error(t, err)

	var rlErr *ade.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, 60*time.Second, rlErr.RetryAfter)
	assert.False(t, rlErr.Advised)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
	assert.True(t, ade.IsRetryable(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	resetAt, open := c.CircuitOpenUntil()
	require.True(t, open)
	assert.WithinDuration(t, time.Now().Add(60*time.Second), resetAt, 5*time.Second)

	// The open circuit fails fast without another request.
	_, err = c.Parse(context.Background(), port.ParseInput{Document: []byte("x")})
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Contains(t, err.Error(), "circuit open until "+resetAt.UTC().Format(time.RFC3339))
}

func TestClient_RateLimit_NoHeaderUsesExponentialBackoff(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(server.URL, 2)
	c.SetRetryBackoff(10*time.Millisecond, 2*time.Second)
	_, err := c.Parse(context.Background(), port.ParseInput{Document: []byte("x")})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, first, 10*time.Millisecond)
	assert.Less(t, first, time.Second)
	assert.GreaterOrEqual(t, second, 20*time.Millisecond)
	assert.Less(t, second, time.Second)
}

func TestClient_RateLimit_RetryAfterHeaderNotCapped(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		n := len(stamps)
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, parseResponse)
	}))
	defer server.Close()

	c := newTestClient(server.URL, 1)
	res, err := c.Parse(context.Background(), port.ParseInput{Document: []byte("x")})
	require.NoError(t, err)
	require.NotNil(t, res)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 2)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), time.Second)
	_, open := c.CircuitOpenUntil()
	assert.False(t, open)
}

func TestClient_Parse_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(server.URL, 5)
	c.SetRetryBackoff(time.Second, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Parse(ctx, port.ParseInput{Document: []byte("x")})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_Extract_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ade/extract", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "extract-latest", r.FormValue("model"))
		assert.JSONEq(t, `{"type":"object","properties":{"total":{"type":"number"}}}`, r.FormValue("schema"))

		file, hdr, err := r.FormFile("markdown")
		assert.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "document.md", hdr.Filename)

		_, _ = w.Write([]byte(`{
			"extraction": {"total": 42, "vendor": {"name": "Acme"}},
			"extraction_metadata": {
				"total": {"references": ["c2"], "confidence": 0.93},
				"vendor": {"name": {"references": ["c1", "c2"]}, "references": ["c1"]}
			},
			"metadata": {"filename": "document.md", "duration_ms": 800, "credit_usage": 1.5}
		}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	res, err := c.Extract(context.Background(), port.ExtractInput{
		Markdown: "# Invoice\n\nTotal: 42",
		Schema:   json.RawMessage(`{"type": "object", "properties": {"total": {"type": "number"}}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, float64(42), res.Extraction["total"])

	total := res.ExtractionMetadata["total"]
	assert.Equal(t, []string{"c2"}, total.References)
	require.NotNil(t, total.Confidence)
	assert.InDelta(t, 0.93, *total.Confidence, 0.0001)

	vendor := res.ExtractionMetadata["vendor"]
	assert.ElementsMatch(t, []string{"c1", "c2"}, vendor.References)
	assert.Nil(t, vendor.Confidence)
}

func TestClient_Extract_SchemaViolationReturnsPartialResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"extraction": {"total": null},
			"extraction_metadata": {"total": {"references": []}},
			"metadata": {"schema_violation_error": "total: expected number"}
		}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	res, err := c.Extract(context.Background(), port.ExtractInput{
		Markdown: "x",
		Schema:   json.RawMessage(`{"type":"object"}`),
	})
	require.NotNil(t, res)
	var svErr *ade.SchemaViolationError
	require.True(t, errors.As(err, &svErr))
	assert.Equal(t, "total: expected number", svErr.Message)
	assert.True(t, errors.Is(err, domain.ErrExtraction))
	assert.Contains(t, res.Extraction, "total")
}

func TestClient_Extract_InvalidSchema(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", 0)

	_, err := c.Extract(context.Background(), port.ExtractInput{Markdown: "x", Schema: json.RawMessage(`{not json`)})
	assert.True(t, errors.Is(err, domain.ErrInvalidSchema))

	_, err = c.Extract(context.Background(), port.ExtractInput{Markdown: "x"})
	assert.True(t, errors.Is(err, domain.ErrInvalidSchema))

	_, err = c.Extract(context.Background(), port.ExtractInput{Schema: json.RawMessage(`{}`)})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestClient_Extract_ServerErrorIsNotExtractionCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"schema has unsupported keyword"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	_, err := c.Extract(context.Background(), port.ExtractInput{Markdown: "x", Schema: json.RawMessage(`{}`)})
	assert.True(t, errors.Is(err, domain.ErrExtraction))
	assert.False(t, errors.Is(err, domain.ErrDocumentParse))
}
