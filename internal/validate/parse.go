package validate

import (
	"fmt"

	"adekit/internal/domain"
)

// Bounds is the pixel size of the document's pages. A zero Bounds means the
// size is unknown, so pixel-valued boxes cannot be checked.
type Bounds struct {
	Width  float64
	Height float64
}

func (b Bounds) known() bool { return b.Width > 0 && b.Height > 0 }

// parseCheck is one consistency rule over a parse result.
type parseCheck struct {
	name  string
	check func(*domain.ParseResult, Bounds) []Violation
}

var parseChecks = []parseCheck{
	{name: "unique_chunk_ids", check: checkUniqueChunkIDs},
	{name: "split_references", check: checkSplitReferences},
	{name: "split_pages", check: checkSplitPages},
	{name: "groundings", check: checkGroundings},
}

// CheckParseResult runs every parse consistency rule and returns the
// violations found, in rule order. A nil result yields no violations.
func CheckParseResult(res *domain.ParseResult, bounds Bounds) []Violation {
	if res == nil {
		return nil
	}
	var out []Violation
	for _, pc := range parseChecks {
		out = append(out, pc.check(res, bounds)...)
	}
	return out
}

func checkUniqueChunkIDs(res *domain.ParseResult, _ Bounds) []Violation {
	var out []Violation
	first := make(map[string]int, len(res.Chunks))
	for i, c := range res.Chunks {
		if j, dup := first[c.ID]; dup {
			out = append(out, errorf(CodeDuplicateChunkID, fmt.Sprintf("chunks[%d].id", i),
				"chunk id %q already used by chunks[%d]", c.ID, j))
			continue
		}
		first[c.ID] = i
	}
	return out
}

func checkSplitReferences(res *domain.ParseResult, _ Bounds) []Violation {
	ids := chunkIDs(res)
	var out []Violation
	for i, s := range res.Splits {
		for j, id := range s.Chunks {
			if !ids[id] {
				out = append(out, errorf(CodeUnknownSplitChunk, fmt.Sprintf("splits[%d].chunks[%d]", i, j),
					"split references unknown chunk %q", id))
			}
		}
	}
	return out
}

func checkSplitPages(res *domain.ParseResult, _ Bounds) []Violation {
	pageCount := res.Metadata.PageCount
	var out []Violation
	for i, s := range res.Splits {
		for j, p := range s.Pages {
			if p < 0 || (pageCount > 0 && p >= pageCount) {
				out = append(out, errorf(CodeSplitPageOutOfRange, fmt.Sprintf("splits[%d].pages[%d]", i, j),
					"page %d outside document of %d pages", p, pageCount))
			}
		}
	}
	return out
}

func checkGroundings(res *domain.ParseResult, bounds Bounds) []Violation {
	pageCount := res.Metadata.PageCount
	var out []Violation
	for i, c := range res.Chunks {
		for j, g := range c.Grounding {
			path := fmt.Sprintf("chunks[%d].grounding[%d]", i, j)
			if g.Page < 0 || (pageCount > 0 && g.Page >= pageCount) {
				out = append(out, errorf(CodeGroundingPage, path,
					"chunk %q grounded on page %d of %d", c.ID, g.Page, pageCount))
			}
			out = append(out, checkBox(c.ID, path, g.Box, bounds)...)
		}
	}
	return out
}

func checkBox(chunkID, path string, b domain.Box, bounds Bounds) []Violation {
	if b.Left > b.Right || b.Top > b.Bottom {
		return []Violation{errorf(CodeInvertedBox, path,
			"chunk %q box is inverted (l=%g t=%g r=%g b=%g)", chunkID, b.Left, b.Top, b.Right, b.Bottom)}
	}
	if b.IsNormalized() {
		return nil
	}
	if !bounds.known() {
		if b.Left < 0 || b.Top < 0 {
			return []Violation{errorf(CodeBoxOutOfBounds, path, "chunk %q box has negative coordinates", chunkID)}
		}
		return []Violation{warnf(CodeUnverifiableGrounding, path,
			"chunk %q box uses pixel coordinates but the page size is unknown", chunkID)}
	}
	if b.Left < 0 || b.Top < 0 || b.Right > bounds.Width || b.Bottom > bounds.Height {
		return []Violation{errorf(CodeBoxOutOfBounds, path,
			"chunk %q box exceeds page %gx%g", chunkID, bounds.Width, bounds.Height)}
	}
	return nil
}

func chunkIDs(res *domain.ParseResult) map[string]bool {
	ids := make(map[string]bool, len(res.Chunks))
	for _, c := range res.Chunks {
		ids[c.ID] = true
	}
	return ids
}
