package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saralbooks/ledgerhooks/internal/models"
)

// Memory is the reference in-process Store. It backs the unit tests; a
// production deployment supplies a durable adapter such as SQLiteStore.
type Memory struct {
	mu         sync.Mutex
	events     map[string]*models.Event
	eventOrder []string
	queue      []*models.Event
	endpoints  map[string]*models.Endpoint
	deliveries map[string]*models.Delivery
	tenants    map[string]*models.Tenant
}

func NewMemory() *Memory {
	return &Memory{
		events:     make(map[string]*models.Event),
		endpoints:  make(map[string]*models.Endpoint),
		deliveries: make(map[string]*models.Delivery),
		tenants:    make(map[string]*models.Tenant),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Migrate(ctx context.Context) error { return nil }
func (m *Memory) Close() error                      { return nil }

// --- Events ---

func (m *Memory) StoreEvent(ctx context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = ev
	m.eventOrder = append(m.eventOrder, ev.ID)
	return nil
}

func (m *Memory) StoreEvents(ctx context.Context, evs []*models.Event) error {
	for _, ev := range evs {
		if err := m.StoreEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id], nil
}

func (m *Memory) ListEventsByType(ctx context.Context, eventType, tenantID string) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Event
	for _, id := range m.eventOrder {
		ev := m.events[id]
		if ev.Type != eventType {
			continue
		}
		if tenantID != "" && ev.Metadata.TenantID != tenantID {
			continue
		}
		out = append(out, *ev)
	}
	// Newest first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.Timestamp.After(out[j].Metadata.Timestamp)
	})
	return out, nil
}

// --- Queue ---

func (m *Memory) Enqueue(ctx context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, ev)
	return nil
}

func (m *Memory) EnqueueBatch(ctx context.Context, evs []*models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, evs...)
	return nil
}

func (m *Memory) Dequeue(ctx context.Context) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, nil
	}
	ev := m.queue[0]
	m.queue = m.queue[1:]
	return ev, nil
}

func (m *Memory) Peek(ctx context.Context) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, nil
	}
	return m.queue[0], nil
}

func (m *Memory) QueueSize(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue), nil
}

// --- Endpoints ---

func (m *Memory) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ep
	m.endpoints[ep.ID] = &cp
	return nil
}

func (m *Memory) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[id]
	if !ok {
		return nil, nil
	}
	cp := *ep
	return &cp, nil
}

func (m *Memory) ListEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Endpoint
	for _, ep := range m.endpoints {
		if ep.TenantID == tenantID {
			out = append(out, *ep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ep
	cp.UpdatedAt = time.Now().UTC()
	m.endpoints[ep.ID] = &cp
	return nil
}

func (m *Memory) DeleteEndpoint(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.endpoints, id)
	return nil
}

func (m *Memory) FindEndpointsByEventType(ctx context.Context, tenantID, eventType string) ([]models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Endpoint
	for _, ep := range m.endpoints {
		if ep.TenantID == tenantID && ep.Active && ep.Subscribed(eventType) {
			out = append(out, *ep)
		}
	}
	return out, nil
}

// --- Deliveries ---

func (m *Memory) CreateDelivery(ctx context.Context, d *models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.deliveries[d.ID] = &cp
	return nil
}

func (m *Memory) UpdateDelivery(ctx context.Context, d *models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	cp.UpdatedAt = time.Now().UTC()
	m.deliveries[d.ID] = &cp
	return nil
}

func (m *Memory) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *Memory) ListDeliveriesByEndpoint(ctx context.Context, endpointID string, limit int) ([]models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Delivery
	for _, d := range m.deliveries {
		if d.EndpointID == endpointID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Delivery
	for _, d := range m.deliveries {
		if d.Status == models.DeliveryRetrying && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetEndpointStats(ctx context.Context, endpointID string) (*models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats models.Stats
	for _, d := range m.deliveries {
		if d.EndpointID == endpointID {
			tally(&stats, d.Status)
		}
	}
	finalize(&stats)
	return &stats, nil
}

func (m *Memory) GetTenantStats(ctx context.Context, tenantID string) (*models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats models.Stats
	for _, d := range m.deliveries {
		if d.TenantID == tenantID {
			tally(&stats, d.Status)
		}
	}
	finalize(&stats)
	return &stats, nil
}

func tally(stats *models.Stats, status models.DeliveryStatus) {
	stats.Total++
	switch status {
	case models.DeliveryDelivered:
		stats.Delivered++
	case models.DeliveryFailed:
		stats.Failed++
	case models.DeliveryPending:
		stats.Pending++
	case models.DeliveryRetrying:
		stats.Retrying++
	}
}

func finalize(stats *models.Stats) {
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Delivered) / float64(stats.Total)
	}
}

// --- Tenants ---

func (m *Memory) CreateTenant(ctx context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *Memory) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.APIKey == apiKey {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Tenant
	for _, t := range m.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteTenant(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, id)
	return nil
}

func (m *Memory) UpdateTenantAPIKey(ctx context.Context, id, newKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		t.APIKey = newKey
		t.UpdatedAt = time.Now().UTC()
	}
	return nil
}
