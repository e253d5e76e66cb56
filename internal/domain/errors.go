package domain

import "fmt"

// SchemaError reports a required column missing from an input table.
// It is fatal for the run and must surface before anything is sent.
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: table %q is missing required column %q", e.Table, e.Column)
}

// ParseWarning records a value that could not be parsed and was treated as missing.
type ParseWarning struct {
	Table  string `json:"table"`
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("%s row %d %s=%q: %s", w.Table, w.Row, w.Column, w.Value, w.Reason)
}

// SendFailure wraps a transport error for one target's message.
type SendFailure struct {
	Target string
	Err    error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Target, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }

// LookupMiss is a target present in a cohort but absent from the recipient table.
type LookupMiss struct {
	Target Target
}

func (m LookupMiss) String() string {
	return "no recipient for " + m.Target.String()
}
