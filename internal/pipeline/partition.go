package pipeline

import (
	"github.com/samber/lo"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
)

// Assignment is one addressable target with its independent slices.
type Assignment struct {
	Target    domain.Target
	Recipient domain.Recipient
	Pending   domain.PendingTable
	Critical  domain.PendingTable // pending rows above the critical threshold
	Delivered domain.DeliveredTable
	CrossTab  CrossTab
}

// Targets returns the target universe: pending locations in first-appearance
// order, then delivered RMs not already listed. Each name is resolved once,
// as a location when either cohort carries it as a location, else as a manager.
func Targets(p domain.PendingTable, d domain.DeliveredTable) []domain.Target {
	locations := make(map[string]bool)
	for _, r := range p.Rows {
		if r.Location.Valid {
			locations[r.Location.String] = true
		}
	}
	for _, r := range d.Rows {
		if r.Location.Valid {
			locations[r.Location.String] = true
		}
	}

	names := lo.FilterMap(p.Rows, func(r domain.PendingRow, _ int) (string, bool) {
		return r.Location.String, r.Location.Valid && r.Location.String != ""
	})
	names = append(names, lo.FilterMap(d.Rows, func(r domain.DeliveredRow, _ int) (string, bool) {
		return r.RM.String, r.RM.Valid && r.RM.String != ""
	})...)

	return lo.Map(lo.Uniq(names), func(name string, _ int) domain.Target {
		if locations[name] {
			return domain.LocationTarget(name)
		}
		return domain.ManagerTarget(name)
	})
}

// Partition slices both cohorts for every target that has a recipient.
// Targets without one are reported as LookupMiss and skipped.
func Partition(p domain.PendingTable, d domain.DeliveredTable, ct CrossTab, recipients []domain.Recipient, criticalDays int) ([]Assignment, []domain.LookupMiss) {
	// later rows of the recipient table override earlier ones
	byTarget := lo.SliceToMap(recipients, func(r domain.Recipient) (string, domain.Recipient) {
		return r.Target, r
	})

	var (
		assignments []Assignment
		misses      []domain.LookupMiss
	)
	for _, target := range Targets(p, d) {
		recipient, ok := byTarget[target.Name]
		if !ok {
			misses = append(misses, domain.LookupMiss{Target: target})
			continue
		}
		pending := p.Filter(func(r domain.PendingRow) bool { return target.Owns(r.Record) })
		assignments = append(assignments, Assignment{
			Target:    target,
			Recipient: recipient,
			Pending:   pending,
			Critical:  pending.Filter(func(r domain.PendingRow) bool { return r.Critical(criticalDays) }),
			Delivered: d.Filter(func(r domain.DeliveredRow) bool { return target.Owns(r.Record) }),
			CrossTab:  ct.Slice(target),
		})
	}
	return assignments, misses
}
