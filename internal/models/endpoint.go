package models

import (
	"strings"
	"time"
)

// Endpoint is a tenant-configured webhook subscription. Secret is the HMAC
// key for deliveries to this endpoint and is only returned in plaintext on
// creation. TimeoutMs and RetryAttempts, when > 0, override the global
// delivery config for this endpoint.
type Endpoint struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	URL           string            `json:"url"`
	Description   string            `json:"description"`
	Secret        string            `json:"secret,omitempty"`
	EventTypes    []string          `json:"event_types"`
	Headers       map[string]string `json:"headers,omitempty"`
	TimeoutMs     int               `json:"timeout_ms,omitempty"`
	RetryAttempts int               `json:"retry_attempts,omitempty"`
	Active        bool              `json:"active"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Subscribed reports whether the endpoint's event type set matches eventType.
// An empty set matches nothing; "*" matches everything; "invoice.*" matches
// any event under the invoice prefix.
func (e *Endpoint) Subscribed(eventType string) bool {
	for _, sub := range e.EventTypes {
		if sub == eventType || sub == "*" {
			return true
		}
		if strings.HasSuffix(sub, ".*") {
			prefix := strings.TrimSuffix(sub, ".*")
			if strings.HasPrefix(eventType, prefix+".") {
				return true
			}
		}
	}
	return false
}
