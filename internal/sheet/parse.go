package sheet

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// dateLayouts are tried in order for textual dates; slash dates are day-first.
// Single-digit layout fields also accept zero-padded values.
var dateLayouts = []string{
	"2006-1-2",
	"2006-1-2 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2.1.2006",
	"2-1-2006",
	"2/1/2006",
	"2/1/2006 15:04:05",
	"2006/1/2",
	"2-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// ParseDate parses an Excel serial date or a textual date. The result is
// truncated to the calendar day.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		// serials before 1900-03-01 are not plausible billing dates
		if serial < 61 {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return truncateDay(t), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDecimal parses a numeric cell, accepting thousands separators.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var floatIntegral = regexp.MustCompile(`^(\d+)\.0+$`)

// NormalizeKey trims a join key and drops a ".0" suffix that numeric
// cells pick up when a workbook stores codes as floats.
func NormalizeKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := floatIntegral.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}

// IsMissing reports whether a cell is empty or holds a textual null marker.
func IsMissing(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "nan", "nat", "none", "null", "#n/a":
		return true
	}
	return false
}
