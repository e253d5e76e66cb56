package pipeline

import "github.com/andresuchdata/dispatch-hub/internal/domain"

// Compute runs normalize, enrich, split, aggregate and partition once over
// the inputs. A *domain.SchemaError is returned before any stage runs when a
// required column is missing.
func Compute(in Inputs, cfg Config) (*Result, error) {
	n, err := Normalize(in)
	if err != nil {
		return nil, err
	}
	cfg.AsOf = dayUTC(cfg.AsOf)

	enriched := Enrich(n, cfg)
	cohorts := Split(enriched, cfg)
	crossTab := BuildCrossTab(cohorts.Delivered)

	res := &Result{
		AsOf:        cfg.AsOf,
		Pending:     cohorts.Pending,
		Delivered:   cohorts.Delivered,
		TotalRows:   enriched.TotalRows,
		FilteredOut: enriched.FilteredOut,
		Excluded:    cohorts.Excluded,
		Rollup:      BuildRollup(cohorts.Pending),
		CrossTab:    crossTab,
		Warnings:    append(enriched.Warnings, cohorts.Warnings...),
	}
	res.Assignments, res.Misses = Partition(
		cohorts.Pending, cohorts.Delivered, crossTab, n.Recipients, cfg.CriticalDays,
	)
	return res, nil
}

// Summarize returns the headline metrics of a computed result.
func Summarize(res *Result, criticalDays int) domain.Summary {
	s := domain.Summary{
		AsOf:              res.AsOf.Format("2006-01-02"),
		PendingInvoices:   res.Pending.Len(),
		PendingAmount:     res.Rollup.Total.BillAmount,
		PendingWeightTons: res.Rollup.Total.WeightTons,
		DeliveredCount:    res.Delivered.Len(),
		ExcludedDelivered: res.Excluded,
		FilteredOut:       res.FilteredOut,
	}
	for _, row := range res.Pending.Rows {
		if row.Critical(criticalDays) {
			s.CriticalPending++
		}
	}
	return s
}
