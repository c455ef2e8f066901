package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saralbooks/ledgerhooks/internal/models"
)

func testEvent(id, eventType, tenantID string) *models.Event {
	return &models.Event{
		ID:   id,
		Type: eventType,
		Data: json.RawMessage(`{}`),
		Metadata: models.EventMetadata{
			TenantID:  tenantID,
			Timestamp: time.Now().UTC(),
		},
	}
}

func TestQueueFIFO(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, mem.Enqueue(ctx, testEvent(fmt.Sprintf("evt_%d", i), models.EventInvoiceCreated, "tnt_1")))
	}

	size, err := mem.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	head, err := mem.Peek(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "evt_0", head.ID)

	for i := 0; i < 3; i++ {
		ev, err := mem.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, fmt.Sprintf("evt_%d", i), ev.ID)
	}

	// Empty queue signals with a nil event, not an error.
	ev, err := mem.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestListEventsByType(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.StoreEvent(ctx, testEvent("evt_a", models.EventInvoiceCreated, "tnt_1")))
	require.NoError(t, mem.StoreEvent(ctx, testEvent("evt_b", models.EventInvoicePaid, "tnt_1")))
	require.NoError(t, mem.StoreEvent(ctx, testEvent("evt_c", models.EventInvoiceCreated, "tnt_2")))

	evs, err := mem.ListEventsByType(ctx, models.EventInvoiceCreated, "tnt_1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "evt_a", evs[0].ID)

	// Empty tenant matches all tenants.
	evs, err = mem.ListEventsByType(ctx, models.EventInvoiceCreated, "")
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestFindEndpointsByEventType(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	eps := []*models.Endpoint{
		{ID: "ep_exact", TenantID: "tnt_1", Active: true, EventTypes: []string{models.EventInvoiceCreated}},
		{ID: "ep_wild", TenantID: "tnt_1", Active: true, EventTypes: []string{"invoice.*"}},
		{ID: "ep_all", TenantID: "tnt_1", Active: true, EventTypes: []string{"*"}},
		{ID: "ep_off", TenantID: "tnt_1", Active: false, EventTypes: []string{"*"}},
		{ID: "ep_other", TenantID: "tnt_2", Active: true, EventTypes: []string{"*"}},
		{ID: "ep_gst", TenantID: "tnt_1", Active: true, EventTypes: []string{models.EventGSTReturnFiled}},
	}
	for _, ep := range eps {
		require.NoError(t, mem.CreateEndpoint(ctx, ep))
	}

	found, err := mem.FindEndpointsByEventType(ctx, "tnt_1", models.EventInvoiceCreated)
	require.NoError(t, err)

	ids := make([]string, 0, len(found))
	for _, ep := range found {
		ids = append(ids, ep.ID)
	}
	assert.ElementsMatch(t, []string{"ep_exact", "ep_wild", "ep_all"}, ids)
}

func TestFindDueRetries(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	earlier := now.Add(-2 * time.Minute)
	future := now.Add(time.Minute)

	deliveries := []*models.Delivery{
		{ID: "dlv_due", Status: models.DeliveryRetrying, NextRetryAt: &past},
		{ID: "dlv_earlier", Status: models.DeliveryRetrying, NextRetryAt: &earlier},
		{ID: "dlv_future", Status: models.DeliveryRetrying, NextRetryAt: &future},
		{ID: "dlv_done", Status: models.DeliveryDelivered, NextRetryAt: &past},
	}
	for _, d := range deliveries {
		require.NoError(t, mem.CreateDelivery(ctx, d))
	}

	due, err := mem.FindDueRetries(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	// Oldest first.
	assert.Equal(t, "dlv_earlier", due[0].ID)
	assert.Equal(t, "dlv_due", due[1].ID)

	capped, err := mem.FindDueRetries(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func TestStats(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.CreateEndpoint(ctx, &models.Endpoint{ID: "ep_1", TenantID: "tnt_1", Active: true}))
	require.NoError(t, mem.CreateEndpoint(ctx, &models.Endpoint{ID: "ep_2", TenantID: "tnt_2", Active: true}))

	statuses := []models.DeliveryStatus{
		models.DeliveryDelivered,
		models.DeliveryDelivered,
		models.DeliveryDelivered,
		models.DeliveryFailed,
	}
	for i, st := range statuses {
		require.NoError(t, mem.CreateDelivery(ctx, &models.Delivery{
			ID:         fmt.Sprintf("dlv_%d", i),
			TenantID:   "tnt_1",
			EndpointID: "ep_1",
			Status:     st,
		}))
	}
	// Another tenant's delivery must not leak into tnt_1 stats.
	require.NoError(t, mem.CreateDelivery(ctx, &models.Delivery{
		ID:         "dlv_other",
		TenantID:   "tnt_2",
		EndpointID: "ep_2",
		Status:     models.DeliveryFailed,
	}))

	stats, err := mem.GetEndpointStats(ctx, "ep_1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Delivered)
	assert.Equal(t, int64(1), stats.Failed)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)

	tenantStats, err := mem.GetTenantStats(ctx, "tnt_1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), tenantStats.Total)
}

func TestUpdateDeliveryCopies(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	d := &models.Delivery{ID: "dlv_1", EndpointID: "ep_1", Status: models.DeliveryPending}
	require.NoError(t, mem.CreateDelivery(ctx, d))

	// Mutating the caller's struct after the write must not change the store.
	d.Status = models.DeliveryFailed

	got, err := mem.GetDelivery(ctx, "dlv_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.DeliveryPending, got.Status)
}

func TestTenantAPIKeyRotation(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	tenant := &models.Tenant{ID: "tnt_1", Name: "Acme", APIKey: "sk_old"}
	require.NoError(t, mem.CreateTenant(ctx, tenant))

	require.NoError(t, mem.UpdateTenantAPIKey(ctx, "tnt_1", "sk_new"))

	byOld, err := mem.GetTenantByAPIKey(ctx, "sk_old")
	require.NoError(t, err)
	assert.Nil(t, byOld)

	byNew, err := mem.GetTenantByAPIKey(ctx, "sk_new")
	require.NoError(t, err)
	require.NotNil(t, byNew)
	assert.Equal(t, "tnt_1", byNew.ID)
}
