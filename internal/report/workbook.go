package report

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/pipeline"
)

// Sheet names of the generated workbooks.
const (
	SheetDispatch        = "Dispatch"
	SheetPOD             = "POD"
	SheetDispatchSummary = "Dispatch_Summary"
	SheetPODSummary      = "POD_Summary"
)

const maxColumnWidth = 50

// WriteTargetWorkbook writes the target's pending and delivered slices.
func (r *Renderer) WriteTargetWorkbook(path string, a pipeline.Assignment) error {
	return r.writeWorkbook(path, func(w *workbook) error {
		if err := w.cohortSheet(SheetDispatch, a.Pending.Columns, tableCells(a.Pending)); err != nil {
			return err
		}
		return w.cohortSheet(SheetPOD, a.Delivered.Columns, tableCells(a.Delivered))
	})
}

// WriteMasterWorkbook writes the full cohorts plus both aggregate tables.
func (r *Renderer) WriteMasterWorkbook(path string, res *pipeline.Result) error {
	return r.writeWorkbook(path, func(w *workbook) error {
		if err := w.cohortSheet(SheetDispatch, res.Pending.Columns, tableCells(res.Pending)); err != nil {
			return err
		}
		if err := w.cohortSheet(SheetPOD, res.Delivered.Columns, tableCells(res.Delivered)); err != nil {
			return err
		}
		if err := w.cohortSheet(SheetDispatchSummary, rollupHeader, rollupCells(res.Rollup)); err != nil {
			return err
		}
		header, rows := crossTabCells(res.CrossTab)
		return w.cohortSheet(SheetPODSummary, header, rows)
	})
}

var rollupHeader = []string{domain.ColLocation, domain.ColInvoiceCount, domain.ColBillAmount, domain.ColWeightTons}

type workbook struct {
	r      *Renderer
	f      *excelize.File
	header int
	cell   int
	alert  int
	first  bool
}

func (r *Renderer) writeWorkbook(path string, fill func(w *workbook) error) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := &workbook{r: r, f: f, first: true}
	if err := w.styles(); err != nil {
		return err
	}
	if err := fill(w); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func (w *workbook) styles() error {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	var err error
	w.header, err = w.f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#B8CCE4"}, Pattern: 1},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	w.cell, err = w.f.NewStyle(&excelize.Style{Border: border})
	if err != nil {
		return fmt.Errorf("failed to create cell style: %w", err)
	}
	w.alert, err = w.f.NewConditionalStyle(&excelize.Style{
		Font:   &excelize.Font{Color: "#9C0006"},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
		Border: border,
	})
	if err != nil {
		return fmt.Errorf("failed to create alert style: %w", err)
	}
	return nil
}

// cohortSheet writes one table with header styling, borders, column widths
// of min(longest value + 2, 50) and the aging highlight on Pending Days.
func (w *workbook) cohortSheet(name string, header []string, rows [][]any) error {
	if w.first {
		if err := w.f.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("failed to name sheet %s: %w", name, err)
		}
		w.first = false
	} else if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}

	widths := make([]int, len(header))
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := w.f.SetSheetRow(name, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", name, err)
	}

	for i, row := range rows {
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = w.value(v)
			if n := utf8.RuneCountInString(w.r.Text(v)); j < len(widths) && n > widths[j] {
				widths[j] = n
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := w.f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+2, name, err)
		}
	}

	if len(header) == 0 {
		return nil
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := w.f.SetCellStyle(name, "A1", lastCol+"1", w.header); err != nil {
		return fmt.Errorf("failed to style header of %s: %w", name, err)
	}
	if len(rows) > 0 {
		last := lastCol + strconv.Itoa(len(rows)+1)
		if err := w.f.SetCellStyle(name, "A2", last, w.cell); err != nil {
			return fmt.Errorf("failed to style cells of %s: %w", name, err)
		}
	}
	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := w.f.SetColWidth(name, col, col, float64(min(width+2, maxColumnWidth))); err != nil {
			return fmt.Errorf("failed to size column %s of %s: %w", col, name, err)
		}
	}

	for i, h := range header {
		if h != domain.ColPendingDays || len(rows) == 0 {
			continue
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		ref := fmt.Sprintf("%s2:%s%d", col, col, len(rows)+1)
		alert := w.alert
		err := w.f.SetConditionalFormat(name, ref, []excelize.ConditionalFormatOptions{{
			Type:     "cell",
			Criteria: ">",
			Format:   &alert,
			Value:    strconv.Itoa(w.r.opts.CriticalDays),
		}})
		if err != nil {
			return fmt.Errorf("failed to highlight %s of %s: %w", h, name, err)
		}
	}
	return nil
}

// value keeps numbers numeric in the sheet; dates become text in the
// configured layout.
func (w *workbook) value(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.Format(w.r.opts.DateLayout)
	case decimal.Decimal:
		return x.InexactFloat64()
	default:
		return x
	}
}

// tableCells projects a cohort table onto its visible columns.
func tableCells[R interface{ Cell(string) any }](t domain.Table[R]) [][]any {
	out := make([][]any, 0, t.Len())
	for _, row := range t.Rows {
		values := make([]any, len(t.Columns))
		for i, col := range t.Columns {
			values[i] = row.Cell(col)
		}
		out = append(out, values)
	}
	return out
}

func rollupCells(ro pipeline.Rollup) [][]any {
	all := ro.All()
	out := make([][]any, 0, len(all))
	for _, row := range all {
		out = append(out, []any{row.Location, row.InvoiceCount, row.BillAmount, row.WeightTons})
	}
	return out
}

func crossTabCells(ct pipeline.CrossTab) ([]string, [][]any) {
	header := append([]string{domain.ColRM, domain.ColLocation}, ct.Months...)
	header = append(header, domain.GrandTotal)

	line := func(rm, location string, counts []int, total int) []any {
		row := []any{rm, location}
		for _, n := range counts {
			row = append(row, n)
		}
		return append(row, total)
	}

	rows := make([][]any, 0, len(ct.Rows)+1)
	for _, r := range ct.Rows {
		rows = append(rows, line(r.RM, r.Location, r.Counts, r.Total))
	}
	rows = append(rows, line(domain.GrandTotal, "", ct.ColumnTotals, ct.GrandTotal))
	return header, rows
}
