package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saralbooks/ledgerhooks/internal/config"
	"github.com/saralbooks/ledgerhooks/internal/models"
	"github.com/saralbooks/ledgerhooks/internal/storage"
	"github.com/saralbooks/ledgerhooks/internal/webhook"
)

type testEnv struct {
	mem     *storage.Memory
	handler http.Handler
	tenant  *models.Tenant
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := storage.NewMemory()
	manager, err := webhook.New(config.DefaultWebhook(), mem, &http.Client{Timeout: time.Second}, "test", "test", zerolog.Nop())
	require.NoError(t, err)
	srv := NewServer(config.ServerConfig{}, mem, manager, zerolog.Nop())

	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID:        models.NewID("tnt"),
		Name:      "Acme Traders",
		APIKey:    models.NewAPIKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, mem.CreateTenant(context.Background(), tenant))

	return &testEnv{mem: mem, handler: srv.Handler(), tenant: tenant}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.tenant.APIKey)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTenant(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/tenants", map[string]string{"name": "Bharat Stores"}, false)
	require.Equal(t, http.StatusCreated, rec.Code)

	var tenant models.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Contains(t, tenant.ID, "tnt_")
	assert.Contains(t, tenant.APIKey, "sk_")
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/endpoints", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/endpoints", nil)
	req.Header.Set("Authorization", "Bearer sk_bogus")
	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)
}

func TestEndpointLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/endpoints", map[string]any{
		"url":         "https://example.com/hooks",
		"event_types": []string{models.EventInvoiceCreated},
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Contains(t, created.Secret, "whsec_", "secret is visible exactly once, on creation")
	assert.True(t, created.Active)

	// Secret is redacted on every later read.
	rec = env.do(t, http.MethodGet, "/api/v1/endpoints/"+created.ID, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched models.Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Empty(t, fetched.Secret)

	rec = env.do(t, http.MethodPatch, "/api/v1/endpoints/"+created.ID+"/toggle", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled models.Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.False(t, toggled.Active)

	rec = env.do(t, http.MethodDelete, "/api/v1/endpoints/"+created.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/endpoints/"+created.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/endpoints", map[string]any{
		"url":         "ftp://example.com",
		"event_types": []string{"*"},
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/endpoints", map[string]any{
		"url": "https://example.com/hooks",
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndpointIsolationAcrossTenants(t *testing.T) {
	env := newTestEnv(t)

	// Endpoint owned by a different tenant.
	other := &models.Endpoint{
		ID:       models.NewID("ep"),
		TenantID: "tnt_other",
		URL:      "https://example.com",
		Active:   true,
	}
	require.NoError(t, env.mem.CreateEndpoint(context.Background(), other))

	rec := env.do(t, http.MethodGet, "/api/v1/endpoints/"+other.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishEventEnqueues(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"event_type": models.EventInvoiceCreated,
		"data":       map[string]string{"invoice_id": "inv_7"},
	}, true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ev models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, env.tenant.ID, ev.Metadata.TenantID)

	size, err := env.mem.QueueSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	stored, err := env.mem.GetEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestPublishBatch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/events/batch", []map[string]any{
		{"event_type": models.EventInvoiceCreated, "data": map[string]string{"n": "1"}},
		{"event_type": models.EventInvoicePaid, "data": map[string]string{"n": "2"}},
	}, true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	size, _ := env.mem.QueueSize(context.Background())
	assert.Equal(t, 2, size)
}

func TestPublishEventValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/events", map[string]any{"data": map[string]string{}}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/events", map[string]any{"event_type": "x"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDeliveryDeniedAcrossTenants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ep := &models.Endpoint{ID: models.NewID("ep"), TenantID: "tnt_victim", URL: "https://example.com", Active: true}
	require.NoError(t, env.mem.CreateEndpoint(ctx, ep))

	body := "account balance: 42"
	d := &models.Delivery{
		ID:           models.NewID("dlv"),
		TenantID:     "tnt_victim",
		EndpointID:   ep.ID,
		EventID:      "evt_x",
		Status:       models.DeliveryDelivered,
		ResponseBody: &body,
	}
	require.NoError(t, env.mem.CreateDelivery(ctx, d))

	rec := env.do(t, http.MethodGet, "/api/v1/deliveries/"+d.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting the endpoint must not strip ownership off the audit record.
	require.NoError(t, env.mem.DeleteEndpoint(ctx, ep.ID))
	rec = env.do(t, http.MethodGet, "/api/v1/deliveries/"+d.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDeliverySurvivesEndpointDeletionForOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ep := &models.Endpoint{ID: models.NewID("ep"), TenantID: env.tenant.ID, URL: "https://example.com", Active: true}
	require.NoError(t, env.mem.CreateEndpoint(ctx, ep))

	d := &models.Delivery{
		ID:         models.NewID("dlv"),
		TenantID:   env.tenant.ID,
		EndpointID: ep.ID,
		EventID:    "evt_x",
		Status:     models.DeliveryFailed,
	}
	require.NoError(t, env.mem.CreateDelivery(ctx, d))

	require.NoError(t, env.mem.DeleteEndpoint(ctx, ep.ID))

	rec := env.do(t, http.MethodGet, "/api/v1/deliveries/"+d.ID, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Delivery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, d.ID, got.ID)
}

func TestTenantStats(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/stats", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.Total)
}

func TestRotateKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tenants/%s/rotate-key", env.tenant.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated models.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEqual(t, env.tenant.APIKey, rotated.APIKey)

	// Old key no longer authenticates.
	rec = env.do(t, http.MethodGet, "/api/v1/endpoints", nil, true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
