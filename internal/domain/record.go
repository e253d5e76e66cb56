package domain

import (
	"time"

	"github.com/aarondl/null/v8"
	"github.com/shopspring/decimal"
)

// Record is one row of the dispatch extract after enrichment.
type Record struct {
	Row int // 1-based data row in the extract, used for stable ordering

	Plant      string
	PlantName  string
	Location   null.String
	Zone       null.String
	RM         null.String
	RSMName    string
	BillingDoc string

	BillingDate  null.Time
	DispatchDate null.Time
	BillAmount   decimal.NullDecimal
	GrossWeight  decimal.NullDecimal // kilograms

	PriorRemark         string
	PriorStandardRemark string

	// Text holds pass-through columns (see TextColumns) keyed by header.
	Text map[string]string
}

// Pending reports whether the record has not been dispatched yet.
func (r Record) Pending() bool {
	return !r.DispatchDate.Valid
}

// Cell returns the value of a base column, or nil when it is missing.
// Dates stay time.Time; amounts stay decimal.Decimal.
func (r Record) Cell(col string) any {
	switch col {
	case ColPlant:
		return r.Plant
	case ColPlantName:
		return r.PlantName
	case ColLocation:
		return nullString(r.Location)
	case ColZone:
		return nullString(r.Zone)
	case ColRM:
		return nullString(r.RM)
	case ColRSMName:
		return r.RSMName
	case ColBillingDoc:
		return r.BillingDoc
	case ColBillingDate:
		return nullTime(r.BillingDate)
	case ColDispatchDate:
		return nullTime(r.DispatchDate)
	case ColBillAmount:
		return nullDecimal(r.BillAmount)
	case ColGrossWeight:
		return nullDecimal(r.GrossWeight)
	case ColPriorRemark:
		return r.PriorRemark
	case ColPriorStandardRemark:
		return r.PriorStandardRemark
	}
	if v, ok := r.Text[col]; ok {
		return v
	}
	return nil
}

// PendingRow is a record of the pending cohort with its derived columns.
type PendingRow struct {
	Record
	PendingDays null.Int
	WeightTons  decimal.NullDecimal
}

func (r PendingRow) Cell(col string) any {
	switch col {
	case ColPendingDays:
		if !r.PendingDays.Valid {
			return nil
		}
		return r.PendingDays.Int
	case ColWeightTons:
		return nullDecimal(r.WeightTons)
	}
	return r.Record.Cell(col)
}

// Critical reports whether the row has aged beyond threshold days.
func (r PendingRow) Critical(threshold int) bool {
	return r.PendingDays.Valid && r.PendingDays.Int > threshold
}

// DeliveredRow is a record of the POD cohort.
type DeliveredRow struct {
	Record
	Month string // three-letter billing month, empty without a billing date
}

func (r DeliveredRow) Cell(col string) any {
	if col == ColMonth {
		if r.Month == "" {
			return nil
		}
		return r.Month
	}
	return r.Record.Cell(col)
}

// Table is a projected cohort: the visible column order plus its rows.
type Table[R interface{ Cell(string) any }] struct {
	Columns []string
	Rows    []R
}

// Len returns the number of rows.
func (t Table[R]) Len() int { return len(t.Rows) }

// Filter returns an independent table holding the rows that satisfy keep.
func (t Table[R]) Filter(keep func(R) bool) Table[R] {
	out := Table[R]{Columns: append([]string(nil), t.Columns...)}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

type (
	PendingTable   = Table[PendingRow]
	DeliveredTable = Table[DeliveredRow]
)

func nullString(s null.String) any {
	if !s.Valid {
		return nil
	}
	return s.String
}

func nullTime(t null.Time) any {
	if !t.Valid {
		return nil
	}
	return t.Time
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
