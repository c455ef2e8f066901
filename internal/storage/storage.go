// Package storage defines the persistence contracts consumed by the webhook
// subsystem and provides a durable SQLite implementation plus an in-memory
// reference implementation for tests.
package storage

import (
	"context"
	"time"

	"github.com/saralbooks/ledgerhooks/internal/models"
)

// EventStore is the durable, append-only record of published events. Events
// must be stored before they are enqueued so every delivered payload is
// auditable.
type EventStore interface {
	StoreEvent(ctx context.Context, ev *models.Event) error
	StoreEvents(ctx context.Context, evs []*models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	// ListEventsByType returns events newest-first. An empty tenantID
	// matches all tenants.
	ListEventsByType(ctx context.Context, eventType, tenantID string) ([]models.Event, error)
}

// EventQueue is the FIFO handoff between publish time and processing time.
// Dequeue returns (nil, nil) when the queue is empty.
type EventQueue interface {
	Enqueue(ctx context.Context, ev *models.Event) error
	EnqueueBatch(ctx context.Context, evs []*models.Event) error
	Dequeue(ctx context.Context) (*models.Event, error)
	Peek(ctx context.Context) (*models.Event, error)
	QueueSize(ctx context.Context) (int, error)
}

// EndpointRepository owns tenant webhook subscriptions.
type EndpointRepository interface {
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	// FindEndpointsByEventType returns the tenant's active endpoints whose
	// subscriptions match eventType.
	FindEndpointsByEventType(ctx context.Context, tenantID, eventType string) ([]models.Endpoint, error)
}

// DeliveryRepository owns per-(event, endpoint) delivery attempt records.
type DeliveryRepository interface {
	CreateDelivery(ctx context.Context, d *models.Delivery) error
	UpdateDelivery(ctx context.Context, d *models.Delivery) error
	GetDelivery(ctx context.Context, id string) (*models.Delivery, error)
	ListDeliveriesByEndpoint(ctx context.Context, endpointID string, limit int) ([]models.Delivery, error)
	// FindDueRetries returns retrying deliveries whose next_retry_at has
	// elapsed, oldest first, capped at limit.
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]models.Delivery, error)
	GetEndpointStats(ctx context.Context, endpointID string) (*models.Stats, error)
	GetTenantStats(ctx context.Context, tenantID string) (*models.Stats, error)
}

// TenantStore owns the tenant accounts and their API keys.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
	UpdateTenantAPIKey(ctx context.Context, id, newKey string) error
}

// Store is the full persistence surface a deployment provides.
type Store interface {
	EventStore
	EventQueue
	EndpointRepository
	DeliveryRepository
	TenantStore

	Migrate(ctx context.Context) error
	Close() error
}
