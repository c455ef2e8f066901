package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saralbooks/ledgerhooks/internal/config"
	"github.com/saralbooks/ledgerhooks/internal/models"
	"github.com/saralbooks/ledgerhooks/internal/signing"
)

func testEvent() *models.Event {
	return &models.Event{
		ID:   models.NewID("evt"),
		Type: models.EventInvoiceCreated,
		Data: json.RawMessage(`{"invoice_id":"inv_42"}`),
		Metadata: models.EventMetadata{
			TenantID:  "tnt_1",
			Timestamp: time.Now().UTC(),
			Version:   "1.0.0",
			Source:    "saralbooks",
		},
	}
}

func TestSenderSignedRequest(t *testing.T) {
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.Header().Set("X-Request-Id", "req_1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	cfg := config.DefaultWebhook()
	sender := NewSender(srv.Client(), cfg, "test")

	ev := testEvent()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	ep := &models.Endpoint{
		ID:      models.NewID("ep"),
		URL:     srv.URL,
		Secret:  "whsec_test",
		Headers: map[string]string{"X-Custom": "ledger"},
	}

	result := sender.Send(context.Background(), ep, ev, payload)
	require.NoError(t, result.Err)
	assert.True(t, result.Success())
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "ok", result.Body)
	assert.Equal(t, "req_1", result.Headers["X-Request-Id"])

	// Body is the serialized event exactly as enqueued.
	assert.JSONEq(t, string(payload), string(gotBody))

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "saralbooks-ledgerhooks/test", gotHeaders.Get("User-Agent"))
	assert.Equal(t, "ledger", gotHeaders.Get("X-Custom"))
	assert.Equal(t, ev.ID, gotHeaders.Get("X-Webhook-Event-Id"))

	sig := gotHeaders.Get(cfg.SignatureHeader)
	require.NotEmpty(t, sig)
	require.NoError(t, signing.Verify(gotBody, sig, ep.Secret, cfg.TimestampTolerance))

	ts, err := strconv.ParseInt(gotHeaders.Get(cfg.TimestampHeader), 10, 64)
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Unix(), ts, 5)
}

func TestSenderSignatureDisabled(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
	}))
	defer srv.Close()

	cfg := config.DefaultWebhook()
	cfg.EnableSignatureVerification = false
	sender := NewSender(srv.Client(), cfg, "test")

	ev := testEvent()
	payload, _ := json.Marshal(ev)
	result := sender.Send(context.Background(), &models.Endpoint{URL: srv.URL, Secret: "whsec_test"}, ev, payload)

	require.NoError(t, result.Err)
	assert.Empty(t, gotHeaders.Get(cfg.SignatureHeader))
	assert.Empty(t, gotHeaders.Get(cfg.TimestampHeader))
}

func TestSenderEndpointTimeoutOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := config.DefaultWebhook()
	sender := NewSender(srv.Client(), cfg, "test")

	ev := testEvent()
	payload, _ := json.Marshal(ev)
	ep := &models.Endpoint{URL: srv.URL, Secret: "whsec_test", TimeoutMs: 50}

	result := sender.Send(context.Background(), ep, ev, payload)
	require.Error(t, result.Err)
	assert.False(t, result.Success())
	assert.Zero(t, result.StatusCode)
}

func TestSenderTransportError(t *testing.T) {
	cfg := config.DefaultWebhook()
	sender := NewSender(&http.Client{Timeout: time.Second}, cfg, "test")

	ev := testEvent()
	payload, _ := json.Marshal(ev)
	result := sender.Send(context.Background(), &models.Endpoint{URL: "http://127.0.0.1:1", Secret: "s"}, ev, payload)

	require.Error(t, result.Err)
	assert.False(t, result.Success())
}

func TestResultSuccessPredicate(t *testing.T) {
	assert.True(t, (&Result{StatusCode: 200}).Success())
	assert.True(t, (&Result{StatusCode: 204}).Success())
	assert.False(t, (&Result{StatusCode: 301}).Success())
	assert.False(t, (&Result{StatusCode: 500}).Success())
	assert.False(t, (&Result{StatusCode: 200, Err: context.DeadlineExceeded}).Success())
}
