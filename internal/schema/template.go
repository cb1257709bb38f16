package schema

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var unsafeFilename = regexp.MustCompile(`[^a-z0-9]`)

// TemplateFilename is the download name of a table's import template.
func TemplateFilename(tableName string) string {
	base := unsafeFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(tableName)), "_")
	if base == "" {
		base = "table"
	}
	return base + "_template.xlsx"
}

// Template builds an xlsx with one bold header row holding every field
// name, in order.
func Template(fields []Field) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	header := make([]any, 0, len(fields))
	for _, field := range fields {
		header = append(header, field.Name)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	for i, field := range fields {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, float64(ColumnWidth(field.Name))); err != nil {
			return nil, fmt.Errorf("size column %s: %w", col, err)
		}
	}
	if len(fields) > 0 {
		last, _ := excelize.ColumnNumberToName(len(fields))
		if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
			return nil, fmt.Errorf("style header: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	return buf.Bytes(), nil
}

// ColumnWidth is the template width for a header: its length plus five,
// never narrower than 15.
func ColumnWidth(name string) int {
	return max(utf8.RuneCountInString(name)+5, 15)
}
