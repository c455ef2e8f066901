package models

import "time"

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRetrying  DeliveryStatus = "retrying"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// Delivery tracks the attempts for one (event, endpoint) pair. NextRetryAt
// is non-nil if and only if Status is retrying; a delivered or failed
// delivery never has a pending retry. TenantID is copied from the endpoint
// at creation so the record stays attributable after the endpoint is
// deleted.
type Delivery struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenant_id"`
	EndpointID      string            `json:"endpoint_id"`
	EventID         string            `json:"event_id"`
	Status          DeliveryStatus    `json:"status"`
	Attempts        int               `json:"attempts"`
	LastAttemptAt   *time.Time        `json:"last_attempt_at,omitempty"`
	NextRetryAt     *time.Time        `json:"next_retry_at,omitempty"`
	ResponseStatus  *int              `json:"response_status,omitempty"`
	ResponseBody    *string           `json:"response_body,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Stats aggregates delivery outcomes for an endpoint or a tenant.
type Stats struct {
	Total       int64   `json:"total"`
	Delivered   int64   `json:"delivered"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	Retrying    int64   `json:"retrying"`
	SuccessRate float64 `json:"success_rate"`
}
