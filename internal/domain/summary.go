package domain

import "github.com/shopspring/decimal"

// Summary holds the headline metrics shown before a run is triggered.
type Summary struct {
	AsOf              string          `json:"as_of"`
	PendingInvoices   int             `json:"pending_invoices"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	PendingWeightTons decimal.Decimal `json:"pending_weight_tons"`
	CriticalPending   int             `json:"critical_pending"`
	DeliveredCount    int             `json:"delivered_count"`
	ExcludedDelivered int             `json:"excluded_delivered"`
	FilteredOut       int             `json:"filtered_out"`

	// Display holds locale-formatted values for the dashboard.
	Display map[string]string `json:"display,omitempty"`
}
