package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrSheetNotFound is returned when a workbook lacks the requested sheet.
var ErrSheetNotFound = errors.New("sheet not found")

// ReadFile loads a table from an .xlsx workbook (the named sheet, or the
// first one when sheet is empty) or from a .csv file.
func ReadFile(path, sheet string) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, sheet)
	case ".csv":
		return ReadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported file extension %s for %s", ext, path)
	}
}

// ReadXLSX reads one sheet with raw cell values so dates arrive as serials
// and long document numbers are not reformatted.
func ReadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx file %s: %w", path, err)
	}
	defer f.Close()

	name, err := resolveSheet(f, sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", name, err)
	}

	header, data := splitHeader(rows)
	return New(tableName(path, name), header, data), nil
}

func resolveSheet(f *excelize.File, want string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets: %w", ErrSheetNotFound)
	}
	if want == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(want)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%q: %w", want, ErrSheetNotFound)
}

// ReadCSV reads a comma-separated file, tolerating ragged rows and a BOM.
func ReadCSV(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv file %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv %s: %w", path, err)
		}
		rows = append(rows, record)
	}

	header, body := splitHeader(rows)
	return New(tableName(path, ""), header, body), nil
}

// splitHeader takes the first non-empty row as the header and drops fully
// empty data rows.
func splitHeader(rows [][]string) ([]string, [][]string) {
	start := 0
	for start < len(rows) && isBlank(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return nil, nil
	}
	header := rows[start]
	data := make([][]string, 0, len(rows)-start-1)
	for _, r := range rows[start+1:] {
		if isBlank(r) {
			continue
		}
		data = append(data, r)
	}
	return header, data
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func tableName(path, sheet string) string {
	base := filepath.Base(path)
	if sheet == "" {
		return base
	}
	return base + "#" + sheet
}
