package reconcile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

const maxSheetRows = 100000

var (
	ErrUnsupportedFile = errors.New("please upload an Excel (.xlsx, .xls) or CSV file")
	ErrEmptyFile       = errors.New("the uploaded file is empty")
	ErrNoHeaders       = errors.New("no headers found in the uploaded file")
	ErrNoFields        = errors.New("no fields defined in table")
)

// SpreadsheetExtensions are the upload formats accepted for card import.
var SpreadsheetExtensions = []string{".xlsx", ".xls", ".csv"}

func IsSpreadsheet(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range SpreadsheetExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Sheet is the first worksheet of an upload: its trimmed header row and the
// raw data rows beneath it.
type Sheet struct {
	Headers []string
	Columns []string
	Rows    [][]string
}

// DataRowCount is the number of rows under the header.
func (s Sheet) DataRowCount() int {
	return len(s.Rows)
}

// ReadSheet parses an upload by extension. The header row keeps only
// non-blank cells, in order.
func ReadSheet(r io.Reader, filename string) (Sheet, error) {
	if !IsSpreadsheet(filename) {
		return Sheet{}, ErrUnsupportedFile
	}
	rows, err := ReadRows(r, filename)
	if err != nil {
		return Sheet{}, err
	}
	if len(rows) == 0 {
		return Sheet{}, ErrEmptyFile
	}
	var headers []string
	for _, cell := range rows[0] {
		if h := strings.TrimSpace(cell); h != "" {
			headers = append(headers, h)
		}
	}
	if len(headers) == 0 {
		return Sheet{}, ErrNoHeaders
	}
	return Sheet{Headers: headers, Columns: rows[0], Rows: rows[1:]}, nil
}

// Column returns the raw index of the header named name, compared
// case-insensitively after trimming.
func (s Sheet) Column(name string) (int, bool) {
	for i, h := range s.Columns {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i, true
		}
	}
	return -1, false
}

// Cell is row[idx] trimmed, or "" past the end of a short row.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ReadRows returns every row of the first worksheet, header included.
func ReadRows(r io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return readCSV(data)
	case ".xls":
		// Some .xls uploads are really xlsx; the zip magic gives them away.
		if bytes.HasPrefix(data, []byte("PK")) {
			return readXLSX(data)
		}
		return readXLS(data)
	default:
		return readXLSX(data)
	}
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("no worksheet found")
	}
	rows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", sheetName, err)
	}
	return rows, nil
}

func readXLS(data []byte) ([][]string, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if workbook.NumSheets() == 0 {
		return nil, errors.New("no worksheet found")
	}
	return workbook.ReadAllCells(maxSheetRows), nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

// Inspect reads an upload and reconciles its headers against expected in
// one step.
func Inspect(r io.Reader, filename string, expected []string) (Report, Sheet, error) {
	if len(expected) == 0 {
		return Report{}, Sheet{}, ErrNoFields
	}
	sheet, err := ReadSheet(r, filename)
	if err != nil {
		return Report{}, Sheet{}, err
	}
	report := Reconcile(sheet.Headers, expected)
	report.DataRowCount = sheet.DataRowCount()
	return report, sheet, nil
}
