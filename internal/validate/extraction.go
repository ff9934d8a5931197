package validate

import (
	"fmt"
	"sort"

	"adekit/internal/domain"
)

// CheckExtraction verifies that extraction and extraction_metadata cover the
// same fields, that every reference resolves to a chunk of parsed, and that
// confidences are probabilities. When parsed is nil references are not checked.
func CheckExtraction(res *domain.ExtractionResult, parsed *domain.ParseResult) []Violation {
	if res == nil {
		return nil
	}
	var out []Violation

	for _, k := range sortedKeys(res.Extraction) {
		if _, ok := res.ExtractionMetadata[k]; !ok {
			out = append(out, errorf(CodeKeyMismatch, "extraction_metadata."+k,
				"field %q has a value but no metadata", k))
		}
	}
	metaKeys := make([]string, 0, len(res.ExtractionMetadata))
	for k := range res.ExtractionMetadata {
		metaKeys = append(metaKeys, k)
	}
	sort.Strings(metaKeys)
	for _, k := range metaKeys {
		if _, ok := res.Extraction[k]; !ok {
			out = append(out, errorf(CodeKeyMismatch, "extraction."+k,
				"field %q has metadata but no value", k))
		}
	}

	var ids map[string]bool
	if parsed != nil {
		ids = chunkIDs(parsed)
	}
	for _, k := range metaKeys {
		ref := res.ExtractionMetadata[k]
		if ids != nil {
			for i, id := range ref.References {
				if !ids[id] {
					out = append(out, errorf(CodeUnknownReference, fmt.Sprintf("extraction_metadata.%s.references[%d]", k, i),
						"field %q references unknown chunk %q", k, id))
				}
			}
		}
		if ref.Confidence != nil && (*ref.Confidence < 0 || *ref.Confidence > 1) {
			out = append(out, errorf(CodeConfidenceRange, "extraction_metadata."+k+".confidence",
				"confidence %g outside [0, 1]", *ref.Confidence))
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
