package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/dispatch-hub/internal/pipeline"
	"github.com/andresuchdata/dispatch-hub/internal/sheet"
	"github.com/andresuchdata/dispatch-hub/internal/source"
	"github.com/andresuchdata/dispatch-hub/pkg/logger"
)

// Sources are the input references of one run. The mapping workbook carries
// both the plant mapping and the recipient sheet. Previous is optional.
type Sources struct {
	Raw      string
	Mapping  string
	Previous string
}

// SheetNames names the sheets read from each workbook. An empty name means
// the first sheet.
type SheetNames struct {
	Raw        string
	Mapping    string
	Recipients string
	Snapshot   string
}

// InputLoader fetches and parses the input tables.
type InputLoader struct {
	resolver *source.Resolver
	sheets   SheetNames
}

func NewInputLoader(resolver *source.Resolver, sheets SheetNames) *InputLoader {
	return &InputLoader{resolver: resolver, sheets: sheets}
}

// Load resolves every reference into dir and reads the tables.
func (l *InputLoader) Load(ctx context.Context, src Sources, dir string) (pipeline.Inputs, error) {
	var in pipeline.Inputs
	if src.Raw == "" || src.Mapping == "" {
		return in, errors.New("raw extract and mapping workbook are required")
	}

	rawPath, err := l.resolver.Fetch(ctx, src.Raw, dir)
	if err != nil {
		return in, fmt.Errorf("raw extract: %w", err)
	}
	if in.Raw, err = sheet.ReadFile(rawPath, l.sheets.Raw); err != nil {
		return in, fmt.Errorf("raw extract: %w", err)
	}

	mappingPath, err := l.resolver.Fetch(ctx, src.Mapping, dir)
	if err != nil {
		return in, fmt.Errorf("mapping workbook: %w", err)
	}
	if in.Mapping, err = sheet.ReadFile(mappingPath, l.sheets.Mapping); err != nil {
		return in, fmt.Errorf("mapping workbook: %w", err)
	}
	if in.Recipients, err = sheet.ReadFile(mappingPath, l.sheets.Recipients); err != nil {
		return in, fmt.Errorf("recipient sheet: %w", err)
	}

	if src.Previous == "" {
		return in, nil
	}
	prevPath, err := l.resolver.Fetch(ctx, src.Previous, dir)
	if err != nil {
		return in, fmt.Errorf("previous report: %w", err)
	}
	in.Snapshot, err = sheet.ReadFile(prevPath, l.sheets.Snapshot)
	if errors.Is(err, sheet.ErrSheetNotFound) {
		logger.Log.Warn().Str("sheet", l.sheets.Snapshot).Msg("snapshot sheet not found, using first sheet")
		in.Snapshot, err = sheet.ReadFile(prevPath, "")
	}
	if err != nil {
		return in, fmt.Errorf("previous report: %w", err)
	}
	return in, nil
}

// fingerprint identifies the inputs and parameters of a summary.
func fingerprint(in pipeline.Inputs, cfg pipeline.Config) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s\x1e",
		cfg.BusinessUnit, strings.Join(cfg.PODExclusions, ","), cfg.CriticalDays, cfg.AsOf.Format("2006-01-02"))
	for _, t := range []*sheet.Table{in.Raw, in.Mapping, in.Recipients, in.Snapshot} {
		if t == nil {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte(strings.Join(t.Header, "\x1f")))
		for _, row := range t.Rows {
			h.Write([]byte{'\x1e'})
			h.Write([]byte(strings.Join(row, "\x1f")))
		}
		h.Write([]byte{'\x1d'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
