package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
)

var kgPerTon = decimal.NewFromInt(1000)

// Cohorts is the enriched extract partitioned on the dispatch date.
type Cohorts struct {
	Pending   domain.PendingTable
	Delivered domain.DeliveredTable
	Excluded  int
	Warnings  []domain.ParseWarning
}

// Split sends every enriched record to exactly one cohort: pending when it
// has no dispatch date, delivered otherwise. Delivered records whose RSM_Name
// matches a POD exclusion are then dropped.
func Split(e Enriched, cfg Config) Cohorts {
	asOf := dayUTC(cfg.AsOf)
	exclusions := lo.FilterMap(cfg.PODExclusions, func(s string, _ int) (string, bool) {
		s = strings.ToUpper(strings.TrimSpace(s))
		return s, s != ""
	})

	out := Cohorts{
		Pending:   domain.PendingTable{Columns: project(domain.PendingColumns, e.Present)},
		Delivered: domain.DeliveredTable{Columns: project(domain.DeliveredColumns, e.Present)},
	}

	for _, rec := range e.Records {
		if rec.Pending() {
			row := domain.PendingRow{Record: rec}
			if rec.BillingDate.Valid {
				days := daysBetween(rec.BillingDate.Time, asOf)
				if days < 0 {
					out.Warnings = append(out.Warnings, domain.ParseWarning{
						Table:  "pending",
						Row:    rec.Row,
						Column: domain.ColPendingDays,
						Value:  strconv.Itoa(days),
						Reason: "billing date after processing date, clamped to 0",
					})
					days = 0
				}
				row.PendingDays = null.IntFrom(days)
			}
			if rec.GrossWeight.Valid {
				row.WeightTons = decimal.NewNullDecimal(rec.GrossWeight.Decimal.Div(kgPerTon).Round(3))
			}
			out.Pending.Rows = append(out.Pending.Rows, row)
			continue
		}

		if excluded(rec.RSMName, exclusions) {
			out.Excluded++
			continue
		}
		row := domain.DeliveredRow{Record: rec}
		if rec.BillingDate.Valid {
			row.Month = rec.BillingDate.Time.Format("Jan")
		}
		out.Delivered.Rows = append(out.Delivered.Rows, row)
	}

	return out
}

func excluded(rsm string, exclusions []string) bool {
	name := strings.ToUpper(rsm)
	return lo.SomeBy(exclusions, func(ex string) bool {
		return strings.Contains(name, ex)
	})
}

// project keeps the fixed column order, omitting columns the input lacks.
func project(order []string, present map[string]bool) []string {
	return lo.Filter(order, func(col string, _ int) bool { return present[col] })
}

// Today is the default processing date: the local calendar day, as UTC midnight.
func Today() time.Time {
	return dayUTC(time.Time{})
}

func dayUTC(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(dayUTC(to).Sub(dayUTC(from)).Hours() / 24)
}
