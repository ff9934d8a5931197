// Package validate checks parse and extraction results for internal
// consistency and validates extractions against their JSON schema.
package validate

import "fmt"

// Severity ranks a violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation codes.
const (
	CodeDuplicateChunkID      = "duplicate_chunk_id"
	CodeUnknownSplitChunk     = "unknown_split_chunk"
	CodeSplitPageOutOfRange   = "split_page_out_of_range"
	CodeInvertedBox           = "inverted_box"
	CodeBoxOutOfBounds        = "box_out_of_bounds"
	CodeUnverifiableGrounding = "unverifiable_grounding"
	CodeGroundingPage         = "grounding_page_out_of_range"
	CodeKeyMismatch           = "key_mismatch"
	CodeUnknownReference      = "unknown_reference"
	CodeConfidenceRange       = "confidence_out_of_range"
	CodeSchema                = "schema_violation"
)

// Violation is one failed check. Path addresses the offending element,
// e.g. "chunks[3].grounding[0]" or "/invoice/total".
type Violation struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Path     string   `json:"path"`
	Message  string   `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s at %s: %s", v.Severity, v.Code, v.Path, v.Message)
}

// HasErrors reports whether any violation has error severity.
func HasErrors(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

func errorf(code, path, format string, args ...any) Violation {
	return Violation{Code: code, Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)}
}

func warnf(code, path, format string, args ...any) Violation {
	return Violation{Code: code, Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)}
}
