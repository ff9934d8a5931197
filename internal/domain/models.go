package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Box is a bounding box on a page. Coordinates are either normalized to the
// page (0..1) or pixel values, depending on what the API returned.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// IsNormalized reports whether every coordinate lies within [0, 1].
func (b Box) IsNormalized() bool {
	for _, v := range []float64{b.Left, b.Top, b.Right, b.Bottom} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// Normalize converts a pixel box to page-relative coordinates.
// Boxes that are already normalized, and non-positive page sizes, are returned unchanged.
func (b Box) Normalize(pageWidth, pageHeight float64) Box {
	if b.IsNormalized() || pageWidth <= 0 || pageHeight <= 0 {
		return b
	}
	return Box{
		Left:   b.Left / pageWidth,
		Top:    b.Top / pageHeight,
		Right:  b.Right / pageWidth,
		Bottom: b.Bottom / pageHeight,
	}
}

// Width returns Right - Left.
func (b Box) Width() float64 { return b.Right - b.Left }

// Height returns Bottom - Top.
func (b Box) Height() float64 { return b.Bottom - b.Top }

// Grounding locates a chunk on a page. Page is 0-based.
type Grounding struct {
	Page int `json:"page"`
	Box  Box `json:"box"`
}

// Chunk is a classified fragment of a parsed document.
type Chunk struct {
	ID        string      `json:"id"`
	Type      ChunkType   `json:"type"`
	Markdown  string      `json:"markdown"`
	Grounding []Grounding `json:"grounding"`
}

// Pages returns the distinct pages the chunk is grounded on, in order of appearance.
func (c *Chunk) Pages() []int {
	seen := make(map[int]bool, len(c.Grounding))
	var pages []int
	for _, g := range c.Grounding {
		if !seen[g.Page] {
			seen[g.Page] = true
			pages = append(pages, g.Page)
		}
	}
	return pages
}

// Split groups chunks by page or by a detected sub-document.
type Split struct {
	Class      string   `json:"class,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
	Pages      []int    `json:"pages"`
	Markdown   string   `json:"markdown"`
	Chunks     []string `json:"chunks"`
}

// ParseMetadata describes the parse job that produced a result.
type ParseMetadata struct {
	FileName    string  `json:"filename"`
	OrgID       string  `json:"org_id,omitempty"`
	PageCount   int     `json:"page_count"`
	DurationMs  int64   `json:"duration_ms"`
	CreditUsage float64 `json:"credit_usage"`
	JobID       string  `json:"job_id,omitempty"`
	Version     string  `json:"version,omitempty"`
}

// ParseResult is the full output of a parse call.
type ParseResult struct {
	Markdown string        `json:"markdown"`
	Chunks   []Chunk       `json:"chunks"`
	Splits   []Split       `json:"splits"`
	Metadata ParseMetadata `json:"metadata"`
}

// ChunkByID returns the chunk with the given id, or nil.
func (r *ParseResult) ChunkByID(id string) *Chunk {
	for i := range r.Chunks {
		if r.Chunks[i].ID == id {
			return &r.Chunks[i]
		}
	}
	return nil
}

// ChunksByType returns all chunks of type t in document order.
func (r *ParseResult) ChunksByType(t ChunkType) []Chunk {
	var out []Chunk
	for _, c := range r.Chunks {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// ChunksOnPage returns all chunks with at least one grounding on page.
func (r *ParseResult) ChunksOnPage(page int) []Chunk {
	var out []Chunk
	for _, c := range r.Chunks {
		for _, g := range c.Grounding {
			if g.Page == page {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Clone returns a deep copy of the result.
func (r *ParseResult) Clone() *ParseResult {
	if r == nil {
		return nil
	}
	out := &ParseResult{Markdown: r.Markdown, Metadata: r.Metadata}
	if r.Chunks != nil {
		out.Chunks = make([]Chunk, len(r.Chunks))
		for i, c := range r.Chunks {
			c.Grounding = append([]Grounding(nil), c.Grounding...)
			out.Chunks[i] = c
		}
	}
	if r.Splits != nil {
		out.Splits = make([]Split, len(r.Splits))
		for i, s := range r.Splits {
			s.Pages = append([]int(nil), s.Pages...)
			s.Chunks = append([]string(nil), s.Chunks...)
			out.Splits[i] = s
		}
	}
	return out
}

// FieldReference links an extracted field back to the chunks it came from.
type FieldReference struct {
	References []string `json:"references"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ExtractMetadata describes an extraction call.
type ExtractMetadata struct {
	FileName             string  `json:"filename,omitempty"`
	OrgID                string  `json:"org_id,omitempty"`
	DurationMs           int64   `json:"duration_ms"`
	CreditUsage          float64 `json:"credit_usage"`
	JobID                string  `json:"job_id,omitempty"`
	Version              string  `json:"version,omitempty"`
	SchemaViolationError string  `json:"schema_violation_error,omitempty"`
}

// ExtractionResult maps requested schema fields to values and their sources.
type ExtractionResult struct {
	Extraction         map[string]any            `json:"extraction"`
	ExtractionMetadata map[string]FieldReference `json:"extraction_metadata"`
	Metadata           ExtractMetadata           `json:"metadata"`
}

// Job is a document processing request tracked by the gateway.
type Job struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	TenantID     uuid.UUID       `db:"tenant_id" json:"tenant_id"`
	SubmittedBy  string          `db:"submitted_by" json:"submitted_by"`
	FileName     string          `db:"file_name" json:"file_name"`
	ContentType  string          `db:"content_type" json:"content_type"`
	FileSize     int64           `db:"file_size" json:"file_size"`
	S3Bucket     string          `db:"s3_bucket" json:"-"`
	S3Key        string          `db:"s3_key" json:"-"`
	Model        string          `db:"model" json:"model"`
	SplitMode    string          `db:"split_mode" json:"split_mode"`
	ExtractModel string          `db:"extract_model" json:"extract_model"`
	Schema       json.RawMessage `db:"schema" json:"schema,omitempty"`
	NotifyEmail  string          `db:"notify_email" json:"notify_email,omitempty"`
	Status       JobStatus       `db:"status" json:"status"`
	Attempts     int             `db:"attempts" json:"attempts"`
	RetryAfter   *time.Time      `db:"retry_after" json:"retry_after,omitempty"`
	RemoteJobID  string          `db:"remote_job_id" json:"remote_job_id,omitempty"`
	Error        string          `db:"error" json:"error,omitempty"`
	ErrorKind    string          `db:"error_kind" json:"error_kind,omitempty"`
	ParseResult  json.RawMessage `db:"parse_result" json:"-"`
	Extraction   json.RawMessage `db:"extraction" json:"-"`
	Warnings     json.RawMessage `db:"warnings" json:"warnings,omitempty"`
	PageCount    int             `db:"page_count" json:"page_count"`
	CreditUsage  float64         `db:"credit_usage" json:"credit_usage"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// IsEmptyJSON reports whether raw holds no value: empty or the literal null.
func IsEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// RemoteJob is an asynchronous parse job held by the extraction API.
type RemoteJob struct {
	JobID         string          `json:"job_id"`
	Status        RemoteJobStatus `json:"status"`
	Progress      float64         `json:"progress"`
	CreatedAt     time.Time       `json:"created_at"`
	Result        *ParseResult    `json:"result,omitempty"`
	OutputURL     string          `json:"output_url,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}
