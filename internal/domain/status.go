package domain

import (
	"fmt"
	"strings"
)

// OutcomeStatus is the result of handling one addressee during a run.
type OutcomeStatus int

const (
	OutcomeSent OutcomeStatus = iota
	OutcomeFailed
	OutcomeSkipped
	OutcomeRendered
)

var outcomeLabels = map[OutcomeStatus]string{
	OutcomeSent:     "sent",
	OutcomeFailed:   "failed",
	OutcomeSkipped:  "skipped",
	OutcomeRendered: "rendered",
}

var outcomeCodes = map[string]OutcomeStatus{
	"sent":     OutcomeSent,
	"failed":   OutcomeFailed,
	"skipped":  OutcomeSkipped,
	"rendered": OutcomeRendered,
}

// String returns a human-readable label for an outcome.
func (s OutcomeStatus) String() string {
	if label, ok := outcomeLabels[s]; ok {
		return label
	}

	return "unknown"
}

// MarshalText encodes the outcome as its label.
func (s OutcomeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a label produced by MarshalText.
func (s *OutcomeStatus) UnmarshalText(text []byte) error {
	code, ok := ParseOutcomeStatus(string(text))
	if !ok {
		return fmt.Errorf("unknown outcome status %q", text)
	}
	*s = code
	return nil
}

// ParseOutcomeStatus returns the status for a given label (case-insensitive).
func ParseOutcomeStatus(label string) (OutcomeStatus, bool) {
	code, ok := outcomeCodes[strings.ToLower(strings.TrimSpace(label))]

	return code, ok
}
