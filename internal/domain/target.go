package domain

import "fmt"

// Dimension tells which column a target's slice is cut on.
type Dimension int

const (
	ByLocation Dimension = iota + 1
	ByManager
)

func (d Dimension) String() string {
	switch d {
	case ByLocation:
		return "location"
	case ByManager:
		return "manager"
	default:
		return "unknown"
	}
}

// Column is the cohort column the dimension partitions on.
func (d Dimension) Column() string {
	if d == ByManager {
		return ColRM
	}
	return ColLocation
}

// Target is a report addressee: either a location or a regional manager.
// The dimension is resolved once by explicit membership tests.
type Target struct {
	Dimension Dimension
	Name      string
}

func LocationTarget(name string) Target { return Target{Dimension: ByLocation, Name: name} }
func ManagerTarget(name string) Target  { return Target{Dimension: ByManager, Name: name} }

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Dimension, t.Name)
}

// Owns reports whether a record belongs to the target's slice.
func (t Target) Owns(r Record) bool {
	switch t.Dimension {
	case ByLocation:
		return r.Location.Valid && r.Location.String == t.Name
	case ByManager:
		return r.RM.Valid && r.RM.String == t.Name
	}
	return false
}

// Recipient is one row of the recipient table.
type Recipient struct {
	Target string
	Email  string
	CC     []string
}
