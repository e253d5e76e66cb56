// Package report renders computed cohorts into mail bodies and workbooks.
package report

import (
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
)

// Options control presentation only; nothing here changes computed values.
type Options struct {
	CriticalDays    int
	DateLayout      string   // applied to date cells at render time
	Locale          string   // BCP 47 tag used for summary numbers
	Signature       string   // mail sign-off
	MailBodyColumns []string // pending columns shown in the mail body; empty means all
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		CriticalDays: 5,
		DateLayout:   "02-01-2006",
		Locale:       "en-IN",
		Signature:    "Drools Automation System",
	}
}

// Renderer produces HTML bodies and xlsx workbooks for a run.
type Renderer struct {
	opts    Options
	printer *message.Printer
}

func New(opts Options) *Renderer {
	if opts.DateLayout == "" {
		opts.DateLayout = DefaultOptions().DateLayout
	}
	tag, err := language.Parse(opts.Locale)
	if err != nil {
		tag = language.English
	}
	return &Renderer{opts: opts, printer: message.NewPrinter(tag)}
}

// Options returns the renderer's settings.
func (r *Renderer) Options() Options { return r.opts }

// Text formats a cell value for display. Dates use the configured layout.
func (r *Renderer) Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(r.opts.DateLayout)
	case decimal.Decimal:
		return x.String()
	case int:
		return strconv.Itoa(x)
	default:
		return ""
	}
}

// Amount formats a currency amount with locale grouping and no decimals.
func (r *Renderer) Amount(d decimal.Decimal) string {
	return "₹" + r.printer.Sprintf("%d", d.Round(0).IntPart())
}

// Count formats an integer with locale grouping.
func (r *Renderer) Count(n int) string {
	return r.printer.Sprintf("%d", n)
}

// Tons formats a weight in tons with three decimals.
func (r *Renderer) Tons(d decimal.Decimal) string {
	return r.printer.Sprintf("%.3f", d.InexactFloat64())
}

// Display returns the locale-formatted headline metrics.
func (r *Renderer) Display(s domain.Summary) map[string]string {
	return map[string]string{
		"pending_invoices":    r.Count(s.PendingInvoices),
		"pending_amount":      r.Amount(s.PendingAmount),
		"pending_weight_tons": r.Tons(s.PendingWeightTons),
		"critical_pending":    r.Count(s.CriticalPending),
		"delivered_count":     r.Count(s.DeliveredCount),
	}
}

// bodyColumns narrows the pending columns to the configured mail body set.
func (r *Renderer) bodyColumns(columns []string) []string {
	if len(r.opts.MailBodyColumns) == 0 {
		return columns
	}
	want := lo.Associate(r.opts.MailBodyColumns, func(c string) (string, bool) { return c, true })
	return lo.Filter(columns, func(c string, _ int) bool { return want[c] })
}
