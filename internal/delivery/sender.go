package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/saralbooks/ledgerhooks/internal/config"
	"github.com/saralbooks/ledgerhooks/internal/models"
	"github.com/saralbooks/ledgerhooks/internal/signing"
)

// Response bodies recorded on the delivery are capped at this many bytes.
const maxResponseBody = 4096

// Doer is the outbound transport seam, satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of one outbound request. Err is non-nil for
// transport-level failures (connect, timeout); HTTP responses of any status
// come back with Err nil and the status recorded.
type Result struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	LatencyMs  int64
	Err        error
}

// Success is the delivery success predicate: a transport-clean 2xx response.
func (r *Result) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender builds and executes signed webhook requests.
type Sender struct {
	client    Doer
	cfg       config.WebhookConfig
	userAgent string
}

func NewSender(client Doer, cfg config.WebhookConfig, version string) *Sender {
	if client == nil {
		client = &http.Client{}
	}
	return &Sender{
		client:    client,
		cfg:       cfg,
		userAgent: fmt.Sprintf("saralbooks-ledgerhooks/%s", version),
	}
}

// Send POSTs the serialized event to the endpoint. The per-endpoint timeout
// overrides the global one; a timed-out request surfaces as a transport
// error in Result.Err.
func (s *Sender) Send(ctx context.Context, ep *models.Endpoint, ev *models.Event, payload []byte) *Result {
	timeout := s.cfg.Timeout
	if ep.TimeoutMs > 0 {
		timeout = time.Duration(ep.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return &Result{Err: fmt.Errorf("build request: %w", err), LatencyMs: time.Since(start).Milliseconds()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-Webhook-Event-Id", ev.ID)
	req.Header.Set("X-Webhook-Event-Type", ev.Type)
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}
	if s.cfg.EnableSignatureVerification {
		ts := time.Now().Unix()
		req.Header.Set(s.cfg.SignatureHeader, signing.Sign(payload, ep.Secret, ts))
		req.Header.Set(s.cfg.TimestampHeader, fmt.Sprintf("%d", ts))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &Result{Err: fmt.Errorf("request failed: %w", err), LatencyMs: time.Since(start).Milliseconds()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Headers:    headers,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
}
