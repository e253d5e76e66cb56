package pipeline

import (
	"sort"
	"strings"

	"github.com/aarondl/null/v8"
	"github.com/shopspring/decimal"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/sheet"
)

// Enriched is the extract after the mapping join, the business-unit filter
// and the snapshot backfill.
type Enriched struct {
	Records     []domain.Record
	Present     map[string]bool // columns available for projection
	TotalRows   int
	FilteredOut int
	Warnings    []domain.ParseWarning
}

// Enrich left-joins the extract to the mapping, keeps the configured business
// unit, parses dates and amounts, and attaches prior-day remarks. Records are
// sorted stably by (location, billing date) with missing values last.
func Enrich(n *Normalized, cfg Config) Enriched {
	raw := n.Raw
	out := Enriched{
		Records:   make([]domain.Record, 0, raw.Len()),
		Present:   presentColumns(n),
		TotalRows: raw.Len(),
	}
	unit := strings.ToUpper(strings.TrimSpace(cfg.BusinessUnit))

	idx := struct {
		plant, plantName, rm, rsm, doc, billDate, dispDate, amount, weight int
	}{
		plant:     raw.Col(domain.ColPlant),
		plantName: raw.Col(domain.ColPlantName),
		rm:        raw.Col(domain.ColRM),
		rsm:       raw.Col(domain.ColRSMName),
		doc:       raw.Col(domain.ColBillingDoc),
		billDate:  raw.Col(domain.ColBillingDate),
		dispDate:  raw.Col(domain.ColDispatchDate),
		amount:    raw.Col(domain.ColBillAmount),
		weight:    raw.Col(domain.ColGrossWeight),
	}
	textIdx := make(map[string]int)
	for _, col := range domain.TextColumns {
		if i := raw.Col(col); i >= 0 {
			textIdx[col] = i
		}
	}

	warn := func(row int, col, value, reason string) {
		out.Warnings = append(out.Warnings, domain.ParseWarning{
			Table: raw.Name, Row: row, Column: col, Value: value, Reason: reason,
		})
	}

	for i := range raw.Rows {
		rowNo := i + 1
		plant := sheet.NormalizeKey(raw.At(i, idx.plant))
		entry := n.Mapping[PlantKey(plant)]

		plantName := textOrEmpty(raw.At(i, idx.plantName))
		if plantName == "" && entry.PlantName.Valid {
			plantName = entry.PlantName.String
		}
		if !strings.Contains(strings.ToUpper(plantName), unit) {
			out.FilteredOut++
			continue
		}

		rec := domain.Record{
			Row:        rowNo,
			Plant:      plant,
			PlantName:  plantName,
			Location:   entry.Location,
			Zone:       entry.Zone,
			RM:         entry.RM,
			RSMName:    textOrEmpty(raw.At(i, idx.rsm)),
			BillingDoc: sheet.NormalizeKey(raw.At(i, idx.doc)),
			Text:       make(map[string]string, len(textIdx)),
		}
		if n.RMFromRaw {
			rec.RM = textOrNull(raw.At(i, idx.rm))
		}

		var ok bool
		if rec.BillingDate, ok = parseDateCell(raw.At(i, idx.billDate)); !ok {
			warn(rowNo, domain.ColBillingDate, raw.At(i, idx.billDate), "unparseable date")
		}
		if rec.DispatchDate, ok = parseDateCell(raw.At(i, idx.dispDate)); !ok {
			warn(rowNo, domain.ColDispatchDate, raw.At(i, idx.dispDate), "unparseable date")
		}
		if rec.BillAmount, ok = parseDecimalCell(raw.At(i, idx.amount)); !ok {
			warn(rowNo, domain.ColBillAmount, raw.At(i, idx.amount), "not a number")
		}
		if rec.GrossWeight, ok = parseDecimalCell(raw.At(i, idx.weight)); !ok {
			warn(rowNo, domain.ColGrossWeight, raw.At(i, idx.weight), "not a number")
		}

		for col, ci := range textIdx {
			rec.Text[col] = textOrEmpty(raw.At(i, ci))
		}

		if n.Snapshot != nil {
			rec.PriorRemark = n.Snapshot.Remarks[rec.BillingDoc]
			rec.PriorStandardRemark = n.Snapshot.Standard[rec.BillingDoc]
		}

		out.Records = append(out.Records, rec)
	}

	sort.SliceStable(out.Records, func(a, b int) bool {
		return lessByLocationDate(out.Records[a], out.Records[b])
	})

	return out
}

func lessByLocationDate(a, b domain.Record) bool {
	if c := compareNullString(a.Location, b.Location); c != 0 {
		return c < 0
	}
	switch {
	case a.BillingDate.Valid && b.BillingDate.Valid:
		return a.BillingDate.Time.Before(b.BillingDate.Time)
	case a.BillingDate.Valid:
		return true
	default:
		return false
	}
}

// compareNullString orders valid strings lexically and nulls last.
func compareNullString(a, b null.String) int {
	switch {
	case a.Valid && b.Valid:
		return strings.Compare(a.String, b.String)
	case a.Valid:
		return -1
	case b.Valid:
		return 1
	}
	return 0
}

// parseDateCell returns ok=false only for a non-empty value that failed to parse.
func parseDateCell(raw string) (null.Time, bool) {
	if sheet.IsMissing(raw) {
		return null.Time{}, true
	}
	t, ok := sheet.ParseDate(raw)
	if !ok {
		return null.Time{}, false
	}
	return null.TimeFrom(t), true
}

func parseDecimalCell(raw string) (decimal.NullDecimal, bool) {
	if sheet.IsMissing(raw) {
		return decimal.NullDecimal{}, true
	}
	d, ok := sheet.ParseDecimal(raw)
	if !ok {
		return decimal.NullDecimal{}, false
	}
	return decimal.NewNullDecimal(d), true
}

func presentColumns(n *Normalized) map[string]bool {
	present := map[string]bool{
		domain.ColPlant:               true,
		domain.ColPlantName:           true,
		domain.ColLocation:            true,
		domain.ColRM:                  true,
		domain.ColRSMName:             true,
		domain.ColBillingDoc:          true,
		domain.ColBillingDate:         true,
		domain.ColDispatchDate:        true,
		domain.ColBillAmount:          true,
		domain.ColGrossWeight:         true,
		domain.ColPriorRemark:         true,
		domain.ColPriorStandardRemark: true,
		domain.ColPendingDays:         true,
		domain.ColWeightTons:          true,
		domain.ColMonth:               true,
		domain.ColZone:                n.HasZone,
	}
	for _, col := range domain.TextColumns {
		if n.Raw.Has(col) {
			present[col] = true
		}
	}
	return present
}
