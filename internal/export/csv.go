// Package export writes parse and extraction results as CSV and XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"adekit/internal/domain"
	"adekit/internal/markdown"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

var chunkColumns = []string{"Chunk ID", "Type", "Page", "Left", "Top", "Right", "Bottom", "Text"}

var extractionColumns = []string{"Field", "Value", "Confidence", "References"}

// CSVWriter writes one row per chunk grounding.
type CSVWriter struct {
	csv *csv.Writer
}

// NewCSVWriter writes the BOM to w and returns a writer for chunk rows.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	if _, err := w.Write(BOM); err != nil {
		return nil, err
	}
	return &CSVWriter{csv: csv.NewWriter(w)}, nil
}

// WriteHeader writes the column header row.
func (w *CSVWriter) WriteHeader() error {
	return w.csv.Write(chunkColumns)
}

// WriteChunks writes the chunks of res. Chunks without grounding get a
// single row with empty page and box columns.
func (w *CSVWriter) WriteChunks(res *domain.ParseResult) error {
	for _, row := range chunkRows(res) {
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes buffered rows and returns any write error.
func (w *CSVWriter) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

// WriteParseCSV writes a complete chunk CSV (BOM, header, rows) for res.
func WriteParseCSV(out io.Writer, res *domain.ParseResult) error {
	w, err := NewCSVWriter(out)
	if err != nil {
		return err
	}
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if err := w.WriteChunks(res); err != nil {
		return err
	}
	return w.Flush()
}

// WriteExtractionCSV writes one row per extracted value. Nested objects and
// lists are flattened to dotted and indexed field paths.
func WriteExtractionCSV(out io.Writer, res *domain.ExtractionResult) error {
	if _, err := out.Write(BOM); err != nil {
		return err
	}
	w := csv.NewWriter(out)
	if err := w.Write(extractionColumns); err != nil {
		return err
	}
	for _, row := range extractionRows(res) {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func chunkRows(res *domain.ParseResult) [][]string {
	if res == nil {
		return nil
	}
	var rows [][]string
	for _, c := range res.Chunks {
		text := markdown.PlainText(c.Markdown)
		if len(c.Grounding) == 0 {
			rows = append(rows, []string{c.ID, string(c.Type), "", "", "", "", "", text})
			continue
		}
		for _, g := range c.Grounding {
			rows = append(rows, []string{
				c.ID,
				string(c.Type),
				strconv.Itoa(g.Page),
				formatCoord(g.Box.Left),
				formatCoord(g.Box.Top),
				formatCoord(g.Box.Right),
				formatCoord(g.Box.Bottom),
				text,
			})
		}
	}
	return rows
}

func extractionRows(res *domain.ExtractionResult) [][]string {
	if res == nil {
		return nil
	}
	var rows [][]string
	for _, field := range sortedFields(res.Extraction) {
		ref := res.ExtractionMetadata[field]
		conf := ""
		if ref.Confidence != nil {
			conf = strconv.FormatFloat(*ref.Confidence, 'f', 2, 64)
		}
		refs := strings.Join(ref.References, ";")
		for _, leaf := range flatten(field, res.Extraction[field]) {
			rows = append(rows, []string{leaf.path, leaf.value, conf, refs})
		}
	}
	return rows
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename makes name safe for a Content-Disposition header,
// truncated to 100 characters.
func SanitizeFilename(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "document"
	}
	return s
}

// BuildFilename returns {sanitized document name}_{YYYY-MM-DD}.{ext}.
func BuildFilename(documentName, ext string) string {
	return fmt.Sprintf("%s_%s.%s", SanitizeFilename(documentName), time.Now().Format("2006-01-02"), ext)
}
