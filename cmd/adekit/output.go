package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"adekit/internal/domain"
	"adekit/internal/export"
	"adekit/internal/port"
)

// Output formats for parse results.
const (
	formatJSON     = "json"
	formatMarkdown = "md"
	formatCSV      = "csv"
	formatXLSX     = "xlsx"
)

// parseInput builds a ParseInput from a local path or an http(s) URL.
func parseInput(source, model, split string) port.ParseInput {
	in := port.ParseInput{Model: model, Split: split}
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		in.DocumentURL = source
	} else {
		in.DocumentPath = source
	}
	return in
}

// renderParse encodes res in format.
func renderParse(w io.Writer, format string, res *domain.ParseResult) error {
	switch format {
	case formatJSON, "":
		return writeJSON(w, res)
	case formatMarkdown:
		_, err := io.WriteString(w, res.Markdown)
		return err
	case formatCSV:
		return export.WriteParseCSV(w, res)
	case formatXLSX:
		return export.WriteWorkbook(w, res, nil)
	default:
		return fmt.Errorf("unknown format %q (want json, md, csv or xlsx): %w", format, domain.ErrInvalidRequest)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutput renders into path, or stdout when path is empty. The file is
// only created once rendering succeeded.
func writeOutput(path string, stdout io.Writer, render func(io.Writer) error) error {
	if path == "" {
		return render(stdout)
	}
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// formatFromPath infers an output format from a file extension.
func formatFromPath(path, fallback string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "json":
		return formatJSON
	case "md", "markdown":
		return formatMarkdown
	case "csv":
		return formatCSV
	case "xlsx":
		return formatXLSX
	}
	return fallback
}

func readSchema(path string) (json.RawMessage, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("schema %s is not valid JSON: %w", path, domain.ErrInvalidSchema)
	}
	return b, nil
}
