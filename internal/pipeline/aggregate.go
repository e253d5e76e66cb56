package pipeline

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
)

// RollupRow is one location of the pending rollup.
type RollupRow struct {
	Location     string          `json:"location"`
	InvoiceCount int             `json:"invoice_count"`
	BillAmount   decimal.Decimal `json:"bill_amount"`
	WeightTons   decimal.Decimal `json:"weight_tons"`
}

// Rollup is the pending cohort grouped by location, plus its Grand Total.
type Rollup struct {
	Rows  []RollupRow `json:"rows"`
	Total RollupRow   `json:"total"`
}

// All returns the location rows followed by the Grand Total row.
func (r Rollup) All() []RollupRow {
	return append(append([]RollupRow(nil), r.Rows...), r.Total)
}

// BuildRollup groups pending rows by location in first-appearance order.
// The Grand Total sums the grouped rows, not the cohort.
func BuildRollup(p domain.PendingTable) Rollup {
	var out Rollup
	pos := make(map[string]int)
	for _, row := range p.Rows {
		key := labelOf(row.Location.String, row.Location.Valid)
		i, ok := pos[key]
		if !ok {
			i = len(out.Rows)
			pos[key] = i
			out.Rows = append(out.Rows, RollupRow{Location: key})
		}
		g := &out.Rows[i]
		g.InvoiceCount++
		if row.BillAmount.Valid {
			g.BillAmount = g.BillAmount.Add(row.BillAmount.Decimal)
		}
		if row.WeightTons.Valid {
			g.WeightTons = g.WeightTons.Add(row.WeightTons.Decimal)
		}
	}

	out.Total = RollupRow{Location: domain.GrandTotal}
	for _, g := range out.Rows {
		out.Total.InvoiceCount += g.InvoiceCount
		out.Total.BillAmount = out.Total.BillAmount.Add(g.BillAmount)
		out.Total.WeightTons = out.Total.WeightTons.Add(g.WeightTons)
	}
	return out
}

// CrossTabRow is one (RM, Location) row of the POD cross-tab.
type CrossTabRow struct {
	RM       string `json:"rm"`
	Location string `json:"location"`
	Counts   []int  `json:"counts"` // aligned with CrossTab.Months
	Total    int    `json:"total"`
}

// CrossTab counts delivered billing documents by (RM, Location) and month,
// dense over every combination, with margins.
type CrossTab struct {
	Months       []string      `json:"months"`
	Rows         []CrossTabRow `json:"rows"`
	ColumnTotals []int         `json:"column_totals"`
	GrandTotal   int           `json:"grand_total"`
}

// For returns the rows owned by target, cut on the target's dimension.
func (c CrossTab) For(target domain.Target) []CrossTabRow {
	var out []CrossTabRow
	for _, row := range c.Rows {
		key := row.Location
		if target.Dimension == domain.ByManager {
			key = row.RM
		}
		if key == target.Name {
			out = append(out, row)
		}
	}
	return out
}

// Slice returns the target's rows over the full month axis, with margins
// recomputed for those rows.
func (c CrossTab) Slice(target domain.Target) CrossTab {
	out := CrossTab{
		Months:       append([]string(nil), c.Months...),
		Rows:         c.For(target),
		ColumnTotals: make([]int, len(c.Months)),
	}
	for _, row := range out.Rows {
		for j, n := range row.Counts {
			out.ColumnTotals[j] += n
		}
		out.GrandTotal += row.Total
	}
	return out
}

type crossKey struct{ rm, location string }

// BuildCrossTab pivots the delivered cohort. Months are ordered by their
// earliest billing date, rows by (RM, Location); missing keys are "(blank)".
func BuildCrossTab(d domain.DeliveredTable) CrossTab {
	firstSeen := make(map[string]time.Time)
	counts := make(map[crossKey]map[string]int)
	var keys []crossKey

	for _, row := range d.Rows {
		month := labelOf(row.Month, row.Month != "")
		if row.BillingDate.Valid {
			if t, ok := firstSeen[month]; !ok || row.BillingDate.Time.Before(t) {
				firstSeen[month] = row.BillingDate.Time
			}
		}
		k := crossKey{
			rm:       labelOf(row.RM.String, row.RM.Valid),
			location: labelOf(row.Location.String, row.Location.Valid),
		}
		if counts[k] == nil {
			counts[k] = make(map[string]int)
			keys = append(keys, k)
		}
		counts[k][month]++
	}

	months := make([]string, 0, len(firstSeen)+1)
	for m := range firstSeen {
		months = append(months, m)
	}
	sort.Slice(months, func(a, b int) bool {
		return firstSeen[months[a]].Before(firstSeen[months[b]])
	})
	for _, k := range keys {
		if _, ok := counts[k][domain.BlankLabel]; ok {
			months = append(months, domain.BlankLabel)
			break
		}
	}

	sort.Slice(keys, func(a, b int) bool {
		if keys[a].rm != keys[b].rm {
			return blankLast(keys[a].rm, keys[b].rm)
		}
		return blankLast(keys[a].location, keys[b].location)
	})

	out := CrossTab{Months: months, ColumnTotals: make([]int, len(months))}
	for _, k := range keys {
		row := CrossTabRow{RM: k.rm, Location: k.location, Counts: make([]int, len(months))}
		for j, m := range months {
			n := counts[k][m]
			row.Counts[j] = n
			row.Total += n
			out.ColumnTotals[j] += n
		}
		out.GrandTotal += row.Total
		out.Rows = append(out.Rows, row)
	}
	return out
}

func labelOf(s string, valid bool) string {
	if !valid || s == "" {
		return domain.BlankLabel
	}
	return s
}

func blankLast(a, b string) bool {
	switch {
	case a == domain.BlankLabel:
		return false
	case b == domain.BlankLabel:
		return true
	}
	return a < b
}
