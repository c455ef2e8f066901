package models

import (
	"encoding/json"
	"time"
)

// Canonical accounting event types published by the SaralBooks domain layers.
// Endpoints may also subscribe with suffix wildcards ("invoice.*") or "*".
const (
	EventInvoiceCreated    = "invoice.created"
	EventInvoiceUpdated    = "invoice.updated"
	EventInvoicePaid       = "invoice.paid"
	EventInvoiceCancelled  = "invoice.cancelled"
	EventPaymentReceived   = "payment.received"
	EventPaymentRefunded   = "payment.refunded"
	EventLedgerEntryPosted = "ledger.entry_posted"
	EventInventoryStockLow = "inventory.stock_low"
	EventInventoryAdjusted = "inventory.adjusted"
	EventGSTReturnFiled    = "gst.return_filed"
	EventGSTReturnDue      = "gst.return_due"
)

// EventMetadata travels with every event and is delivered verbatim to
// endpoints. TenantID scopes endpoint resolution.
type EventMetadata struct {
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	Environment string    `json:"environment"`
	Source      string    `json:"source"`
}

// Event is an immutable record of a business occurrence. It is never mutated
// after publish; the bytes delivered to an endpoint are exactly the bytes
// that were enqueued.
type Event struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Metadata EventMetadata   `json:"metadata"`
}
