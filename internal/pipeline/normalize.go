package pipeline

import (
	"fmt"
	"strings"

	"github.com/aarondl/null/v8"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/sheet"
)

// MappingEntry is the reference data attached to one plant code.
type MappingEntry struct {
	Location  null.String
	Zone      null.String
	RM        null.String
	PlantName null.String
}

// Snapshot is the previous day's remarks keyed by billing document.
type Snapshot struct {
	Remarks  map[string]string
	Standard map[string]string
}

// Normalized holds the inputs validated and keyed for exact-match joins.
type Normalized struct {
	Raw        *sheet.Table
	Mapping    map[string]MappingEntry // upper-cased plant code -> entry
	HasZone    bool
	RMFromRaw  bool // no RM column in the mapping; RM is read from the extract
	Recipients []domain.Recipient
	Snapshot   *Snapshot // nil when no snapshot was supplied
}

// Normalize checks every required column and builds the join indexes. Any
// missing column fails with a *domain.SchemaError before anything else runs.
func Normalize(in Inputs) (*Normalized, error) {
	if in.Raw == nil || in.Mapping == nil {
		return nil, fmt.Errorf("raw extract and mapping table are required")
	}
	if err := in.Raw.Require(domain.RequiredRawColumns...); err != nil {
		return nil, err
	}
	if err := in.Mapping.Require(domain.MapPlant, domain.MapLocation); err != nil {
		return nil, err
	}

	n := &Normalized{
		Raw:       in.Raw,
		Mapping:   make(map[string]MappingEntry, in.Mapping.Len()),
		HasZone:   in.Mapping.Has(domain.MapZone),
		RMFromRaw: !in.Mapping.Has(domain.MapRM),
	}
	if n.RMFromRaw && !in.Raw.Has(domain.ColRM) {
		return nil, &domain.SchemaError{Table: in.Mapping.Name, Column: domain.MapRM}
	}

	idxPlant := in.Mapping.Col(domain.MapPlant)
	idxLocation := in.Mapping.Col(domain.MapLocation)
	idxZone := in.Mapping.Col(domain.MapZone)
	idxRM := in.Mapping.Col(domain.MapRM)
	idxPlantName := in.Mapping.Col(domain.MapPlantName)

	for i := range in.Mapping.Rows {
		key := PlantKey(in.Mapping.At(i, idxPlant))
		if key == "" {
			continue
		}
		// first row wins so a duplicated plant never multiplies extract rows
		if _, dup := n.Mapping[key]; dup {
			continue
		}
		n.Mapping[key] = MappingEntry{
			Location:  textOrNull(in.Mapping.At(i, idxLocation)),
			Zone:      textOrNull(in.Mapping.At(i, idxZone)),
			RM:        textOrNull(in.Mapping.At(i, idxRM)),
			PlantName: textOrNull(in.Mapping.At(i, idxPlantName)),
		}
	}

	if in.Recipients != nil {
		recipients, err := normalizeRecipients(in.Recipients)
		if err != nil {
			return nil, err
		}
		n.Recipients = recipients
	}

	if in.Snapshot != nil {
		snap, err := normalizeSnapshot(in.Snapshot)
		if err != nil {
			return nil, err
		}
		n.Snapshot = snap
	}

	return n, nil
}

func normalizeRecipients(t *sheet.Table) ([]domain.Recipient, error) {
	if err := t.Require(domain.RecipientTarget, domain.RecipientEmail); err != nil {
		return nil, err
	}
	idxTarget := t.Col(domain.RecipientTarget)
	idxEmail := t.Col(domain.RecipientEmail)
	idxCC := t.Col(domain.RecipientCC)

	out := make([]domain.Recipient, 0, t.Len())
	for i := range t.Rows {
		target := t.At(i, idxTarget)
		email := t.At(i, idxEmail)
		if sheet.IsMissing(target) || sheet.IsMissing(email) {
			continue
		}
		out = append(out, domain.Recipient{
			Target: target,
			Email:  email,
			CC:     SplitCC(t.At(i, idxCC)),
		})
	}
	return out, nil
}

// SplitCC splits a semicolon-delimited CC cell, dropping blanks and null markers.
func SplitCC(raw string) []string {
	if sheet.IsMissing(raw) {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if sheet.IsMissing(part) {
			continue
		}
		out = append(out, part)
	}
	return out
}

func normalizeSnapshot(t *sheet.Table) (*Snapshot, error) {
	if err := t.Require(domain.ColBillingDoc, domain.ColDispatchRemark); err != nil {
		return nil, err
	}
	idxDoc := t.Col(domain.ColBillingDoc)
	idxRemark := t.Col(domain.ColDispatchRemark)
	idxStandard := -1
	if header, ok := t.FindHeader(domain.SnapshotStandardMarker); ok {
		idxStandard = t.Col(header)
	}

	snap := &Snapshot{
		Remarks:  make(map[string]string, t.Len()),
		Standard: make(map[string]string, t.Len()),
	}
	for i := range t.Rows {
		doc := sheet.NormalizeKey(t.At(i, idxDoc))
		if doc == "" {
			continue
		}
		// later rows overwrite earlier ones for the same document
		snap.Remarks[doc] = textOrEmpty(t.At(i, idxRemark))
		if idxStandard >= 0 {
			snap.Standard[doc] = textOrEmpty(t.At(i, idxStandard))
		}
	}
	return snap, nil
}

// PlantKey is the join key for plant codes on both sides of the mapping join.
func PlantKey(raw string) string {
	return strings.ToUpper(sheet.NormalizeKey(raw))
}

func textOrNull(raw string) null.String {
	if sheet.IsMissing(raw) {
		return null.String{}
	}
	return null.StringFrom(strings.TrimSpace(raw))
}

func textOrEmpty(raw string) string {
	if sheet.IsMissing(raw) {
		return ""
	}
	return strings.TrimSpace(raw)
}
