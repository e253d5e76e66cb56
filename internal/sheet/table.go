// Package sheet loads spreadsheet-like input tables (xlsx or csv) into a
// header-addressable, string-valued Table.
package sheet

import (
	"strings"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
)

// Table is an in-memory input table. Cells keep their raw text; typing
// happens in the pipeline.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string

	index map[string]int
}

// New builds a Table, padding short rows so every row has len(header) cells.
func New(name string, header []string, rows [][]string) *Table {
	t := &Table{
		Name:   name,
		Header: make([]string, len(header)),
		Rows:   make([][]string, 0, len(rows)),
		index:  make(map[string]int, len(header)),
	}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		t.Header[i] = h
		key := NormalizeHeader(h)
		if _, dup := t.index[key]; !dup && key != "" {
			t.index[key] = i
		}
	}
	for _, r := range rows {
		row := make([]string, len(header))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Col returns the index of the first header matching any of names, or -1.
func (t *Table) Col(names ...string) int {
	for _, name := range names {
		if idx, ok := t.index[NormalizeHeader(name)]; ok {
			return idx
		}
	}
	return -1
}

// Has reports whether the table has a column matching name.
func (t *Table) Has(name string) bool {
	return t.Col(name) >= 0
}

// Require fails with a *domain.SchemaError naming the first missing column.
func (t *Table) Require(cols ...string) error {
	for _, c := range cols {
		if !t.Has(c) {
			return &domain.SchemaError{Table: t.Name, Column: c}
		}
	}
	return nil
}

// Get returns the trimmed cell at data row i for column col ("" when absent).
func (t *Table) Get(i int, col string) string {
	return t.At(i, t.Col(col))
}

// At returns the trimmed cell at data row i and column index idx.
func (t *Table) At(i, idx int) string {
	if idx < 0 || i < 0 || i >= len(t.Rows) || idx >= len(t.Rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][idx])
}

// FindHeader returns the first header containing substr (case-sensitive).
func (t *Table) FindHeader(substr string) (string, bool) {
	for _, h := range t.Header {
		if strings.Contains(h, substr) {
			return h, true
		}
	}
	return "", false
}

var headerSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

// NormalizeHeader folds case and separators so "Billing_Doc", "billing doc"
// and "BILLING-DOC" address the same column.
func NormalizeHeader(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return headerSanitizer.Replace(name)
}
