// Package pipeline turns one dispatch extract plus its reference tables into
// the pending and POD cohorts, their aggregates and the per-target slices.
package pipeline

import (
	"time"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/sheet"
)

// Config parameterizes one evaluation of the pipeline.
type Config struct {
	BusinessUnit  string    // substring the resolved plant name must contain
	PODExclusions []string  // RSM_Name substrings dropped from the POD cohort
	CriticalDays  int       // pending days above this are critical
	AsOf          time.Time // processing date; zero means today
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BusinessUnit:  "DROOLS PET FOOD",
		PODExclusions: []string{"ECOM & MT", "ESPT", "VET PHARMA", "EXPORT", "AQUA"},
		CriticalDays:  5,
	}
}

// Inputs are the tables supplied by the trigger. Snapshot is optional.
type Inputs struct {
	Raw        *sheet.Table
	Mapping    *sheet.Table
	Recipients *sheet.Table
	Snapshot   *sheet.Table
}

// Result is everything computed once per run, before any rendering.
type Result struct {
	AsOf time.Time

	Pending   domain.PendingTable
	Delivered domain.DeliveredTable

	TotalRows   int // data rows in the raw extract
	FilteredOut int // rows dropped by the business-unit filter
	Excluded    int // delivered rows dropped by the POD exclusions

	Rollup   Rollup
	CrossTab CrossTab

	Assignments []Assignment
	Misses      []domain.LookupMiss
	Warnings    []domain.ParseWarning
}

// RunStatus is the lifecycle state of one report run.
type RunStatus string

const (
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusPartial    RunStatus = "partial" // finished with at least one failed send
	StatusFailed     RunStatus = "failed"
)
