package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"adekit/internal/domain"
	"adekit/internal/markdown"
)

const (
	sheetChunks     = "Chunks"
	sheetSplits     = "Splits"
	sheetExtraction = "Extraction"
)

// WriteWorkbook writes an XLSX workbook with Chunks and Splits sheets and,
// when ext is non-nil, an Extraction sheet.
func WriteWorkbook(w io.Writer, res *domain.ParseResult, ext *domain.ExtractionResult) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetChunks); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := writeSheet(f, sheetChunks, header, chunkColumns, chunkCells(res)); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetSplits); err != nil {
		return fmt.Errorf("adding sheet %s: %w", sheetSplits, err)
	}
	if err := writeSheet(f, sheetSplits, header, splitColumns, splitCells(res)); err != nil {
		return err
	}
	if ext != nil {
		if _, err := f.NewSheet(sheetExtraction); err != nil {
			return fmt.Errorf("adding sheet %s: %w", sheetExtraction, err)
		}
		if err := writeSheet(f, sheetExtraction, header, extractionColumns, extractionCells(ext)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

var splitColumns = []string{"Class", "Identifier", "Pages", "Chunk IDs", "Text"}

func writeSheet(f *excelize.File, sheet string, headerStyle int, columns []string, rows [][]any) error {
	head := make([]any, len(columns))
	for i, c := range columns {
		head[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("writing %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// chunkCells mirrors chunkRows but keeps pages and coordinates numeric.
func chunkCells(res *domain.ParseResult) [][]any {
	if res == nil {
		return nil
	}
	var rows [][]any
	for _, c := range res.Chunks {
		text := markdown.PlainText(c.Markdown)
		if len(c.Grounding) == 0 {
			rows = append(rows, []any{c.ID, string(c.Type), nil, nil, nil, nil, nil, text})
			continue
		}
		for _, g := range c.Grounding {
			rows = append(rows, []any{c.ID, string(c.Type), g.Page, g.Box.Left, g.Box.Top, g.Box.Right, g.Box.Bottom, text})
		}
	}
	return rows
}

func splitCells(res *domain.ParseResult) [][]any {
	if res == nil {
		return nil
	}
	rows := make([][]any, 0, len(res.Splits))
	for _, s := range res.Splits {
		pages := make([]string, len(s.Pages))
		for i, p := range s.Pages {
			pages[i] = strconv.Itoa(p)
		}
		rows = append(rows, []any{
			s.Class,
			s.Identifier,
			strings.Join(pages, ","),
			strings.Join(s.Chunks, ","),
			markdown.PlainText(s.Markdown),
		})
	}
	return rows
}

func extractionCells(ext *domain.ExtractionResult) [][]any {
	var rows [][]any
	for _, row := range extractionRows(ext) {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		if v, err := strconv.ParseFloat(row[2], 64); err == nil {
			cells[2] = v
		}
		rows = append(rows, cells)
	}
	return rows
}
