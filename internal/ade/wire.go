package ade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"adekit/internal/domain"
)

// wireBox accepts both the long (left/top/right/bottom) and short (l/t/r/b)
// key spellings seen in API responses.
type wireBox struct {
	domain.Box
}

func (b *wireBox) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick := func(long, short string) float64 {
		if v, ok := raw[long]; ok {
			return v
		}
		return raw[short]
	}
	b.Box = domain.Box{
		Left:   pick("left", "l"),
		Top:    pick("top", "t"),
		Right:  pick("right", "r"),
		Bottom: pick("bottom", "b"),
	}
	return nil
}

type wireGrounding struct {
	Page int     `json:"page"`
	Box  wireBox `json:"box"`
}

// wireGroundings decodes a grounding that is either a single object or a list.
type wireGroundings []wireGrounding

func (g *wireGroundings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*g = nil
		return nil
	}
	if data[0] == '[' {
		var list []wireGrounding
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*g = list
		return nil
	}
	var one wireGrounding
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*g = wireGroundings{one}
	return nil
}

type wireChunk struct {
	ID        string         `json:"id"`
	ChunkID   string         `json:"chunk_id"`
	Type      string         `json:"type"`
	ChunkType string         `json:"chunk_type"`
	Markdown  string         `json:"markdown"`
	Text      string         `json:"text"`
	Grounding wireGroundings `json:"grounding"`
}

type wireSplit struct {
	Class      string   `json:"class"`
	Identifier string   `json:"identifier"`
	Pages      []int    `json:"pages"`
	Markdown   string   `json:"markdown"`
	Chunks     []string `json:"chunks"`
}

type wireParseResponse struct {
	Markdown string              `json:"markdown"`
	Chunks   []wireChunk         `json:"chunks"`
	Splits   []wireSplit         `json:"splits"`
	Metadata domain.ParseMetadata `json:"metadata"`
}

func (w *wireParseResponse) toDomain() *domain.ParseResult {
	res := &domain.ParseResult{
		Markdown: w.Markdown,
		Chunks:   make([]domain.Chunk, 0, len(w.Chunks)),
		Splits:   make([]domain.Split, 0, len(w.Splits)),
		Metadata: w.Metadata,
	}
	for _, wc := range w.Chunks {
		c := domain.Chunk{
			ID:       firstNonEmpty(wc.ID, wc.ChunkID),
			Type:     normalizeChunkType(firstNonEmpty(wc.Type, wc.ChunkType)),
			Markdown: firstNonEmpty(wc.Markdown, wc.Text),
		}
		for _, g := range wc.Grounding {
			c.Grounding = append(c.Grounding, domain.Grounding{Page: g.Page, Box: g.Box.Box})
		}
		res.Chunks = append(res.Chunks, c)
	}
	for _, ws := range w.Splits {
		res.Splits = append(res.Splits, domain.Split(ws))
	}
	return res
}

// normalizeChunkType maps legacy spellings such as "chunk_table" onto the current names.
func normalizeChunkType(t string) domain.ChunkType {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.TrimPrefix(t, "chunk_")
	if t == "scancode" || t == "scan-code" {
		t = "scan_code"
	}
	return domain.ChunkType(t)
}

type wireExtractResponse struct {
	Extraction         map[string]any             `json:"extraction"`
	ExtractionMetadata map[string]json.RawMessage `json:"extraction_metadata"`
	Metadata           domain.ExtractMetadata     `json:"metadata"`
}

func (w *wireExtractResponse) toDomain() (*domain.ExtractionResult, error) {
	res := &domain.ExtractionResult{
		Extraction:         w.Extraction,
		ExtractionMetadata: make(map[string]domain.FieldReference, len(w.ExtractionMetadata)),
		Metadata:           w.Metadata,
	}
	if res.Extraction == nil {
		res.Extraction = map[string]any{}
	}
	for field, raw := range w.ExtractionMetadata {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding extraction_metadata.%s: %w", field, err)
		}
		ref := domain.FieldReference{References: collectReferences(v)}
		if m, ok := v.(map[string]any); ok {
			if conf, ok := m["confidence"].(float64); ok {
				ref.Confidence = &conf
			}
		}
		res.ExtractionMetadata[field] = ref
	}
	return res, nil
}

// collectReferences gathers chunk references from a metadata value. Nested
// objects and arrays (for object or list fields) are flattened, keeping the
// first occurrence of each id.
func collectReferences(v any) []string {
	seen := map[string]bool{}
	refs := []string{}
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			if list, ok := t["references"].([]any); ok {
				for _, r := range list {
					if s, ok := r.(string); ok && !seen[s] {
						seen[s] = true
						refs = append(refs, s)
					}
				}
			}
			for k, child := range t {
				if k != "references" {
					walk(child)
				}
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(v)
	return refs
}

type wireJob struct {
	JobID         string          `json:"job_id"`
	Status        string          `json:"status"`
	ReceivedAt    int64           `json:"received_at"`
	Progress      float64         `json:"progress"`
	Data          json.RawMessage `json:"data"`
	OutputURL     string          `json:"output_url"`
	FailureReason string          `json:"failure_reason"`
}

type wireJobList struct {
	Jobs    []wireJob `json:"jobs"`
	HasMore bool      `json:"has_more"`
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	var parsed struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch d := parsed.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return truncate(msg, 500)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
