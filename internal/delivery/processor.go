// Package delivery implements the webhook delivery engine: concurrent
// fan-out to subscribed endpoints, the per-delivery state machine, and
// retry scheduling with capped exponential backoff.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/saralbooks/ledgerhooks/internal/config"
	"github.com/saralbooks/ledgerhooks/internal/metrics"
	"github.com/saralbooks/ledgerhooks/internal/models"
	"github.com/saralbooks/ledgerhooks/internal/storage"
)

type Processor struct {
	cfg        config.WebhookConfig
	endpoints  storage.EndpointRepository
	deliveries storage.DeliveryRepository
	events     storage.EventStore
	sender     *Sender
	log        zerolog.Logger
}

func NewProcessor(cfg config.WebhookConfig, endpoints storage.EndpointRepository, deliveries storage.DeliveryRepository, events storage.EventStore, sender *Sender, log zerolog.Logger) *Processor {
	return &Processor{
		cfg:        cfg,
		endpoints:  endpoints,
		deliveries: deliveries,
		events:     events,
		sender:     sender,
		log:        log,
	}
}

// ProcessEvent fans the event out to every active subscribed endpoint of its
// tenant. Deliveries run concurrently, at most cfg.Concurrency at a time;
// one endpoint's failure never affects its siblings — each outcome lands on
// its own Delivery record. The returned error covers endpoint resolution
// only.
func (p *Processor) ProcessEvent(ctx context.Context, ev *models.Event) error {
	endpoints, err := p.endpoints.FindEndpointsByEventType(ctx, ev.Metadata.TenantID, ev.Type)
	if err != nil {
		return fmt.Errorf("resolve endpoints: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	fanout := pool.New().WithMaxGoroutines(p.cfg.Concurrency)
	for _, ep := range endpoints {
		// Adapters may return a superset; enforce the subscription filter here.
		if !ep.Active || !ep.Subscribed(ev.Type) {
			continue
		}
		ep := ep
		fanout.Go(func() {
			p.deliverToEndpoint(ctx, ev, &ep, payload)
		})
	}
	fanout.Wait()
	return nil
}

// RetryDue re-attempts deliveries whose backoff window has elapsed, capped
// at cfg.BatchSize per sweep. Returns the number of deliveries picked up.
func (p *Processor) RetryDue(ctx context.Context) (int, error) {
	due, err := p.deliveries.FindDueRetries(ctx, time.Now().UTC(), p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find due retries: %w", err)
	}

	fanout := pool.New().WithMaxGoroutines(p.cfg.Concurrency)
	for _, d := range due {
		d := d
		fanout.Go(func() {
			p.retryOne(ctx, &d)
		})
	}
	fanout.Wait()
	return len(due), nil
}

func (p *Processor) deliverToEndpoint(ctx context.Context, ev *models.Event, ep *models.Endpoint, payload []byte) {
	now := time.Now().UTC()
	d := &models.Delivery{
		ID:         models.NewID("dlv"),
		TenantID:   ep.TenantID,
		EndpointID: ep.ID,
		EventID:    ev.ID,
		Status:     models.DeliveryPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.deliveries.CreateDelivery(ctx, d); err != nil {
		p.log.Error().Err(err).Str("endpoint_id", ep.ID).Str("event_id", ev.ID).Msg("failed to create delivery record")
		return
	}
	p.attempt(ctx, d, ev, ep, payload)
}

func (p *Processor) retryOne(ctx context.Context, d *models.Delivery) {
	// Adapters may hand back records that already reached a terminal state;
	// those admit no further transitions.
	if d.Status.Terminal() {
		return
	}

	ev, err := p.events.GetEvent(ctx, d.EventID)
	if err != nil {
		p.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to load event for retry")
		return
	}
	if ev == nil {
		p.fail(ctx, d, "event no longer exists")
		return
	}

	ep, err := p.endpoints.GetEndpoint(ctx, d.EndpointID)
	if err != nil {
		p.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to load endpoint for retry")
		return
	}
	if ep == nil || !ep.Active {
		// An endpoint deactivated between scheduling and the retry gets a
		// terminal record rather than a silently re-scanned one.
		p.fail(ctx, d, "endpoint inactive or deleted")
		metrics.Deliveries.WithLabelValues(ev.Type, string(models.DeliveryFailed)).Inc()
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to marshal event for retry")
		return
	}
	p.attempt(ctx, d, ev, ep, payload)
}

// attempt runs one outbound request and advances the delivery state machine:
// pending/retrying -> delivered on success, -> retrying while attempts remain,
// -> failed once the retry budget is spent. NextRetryAt is set exactly when
// the resulting status is retrying.
func (p *Processor) attempt(ctx context.Context, d *models.Delivery, ev *models.Event, ep *models.Endpoint, payload []byte) {
	result := p.sender.Send(ctx, ep, ev, payload)

	now := time.Now().UTC()
	d.Attempts++
	d.LastAttemptAt = &now

	if result.StatusCode != 0 {
		d.ResponseStatus = &result.StatusCode
		d.ResponseBody = &result.Body
		d.ResponseHeaders = result.Headers
	} else {
		// A transport-level failure produced no response; a response left
		// over from an earlier attempt must not masquerade as this one.
		d.ResponseStatus = nil
		d.ResponseBody = nil
		d.ResponseHeaders = nil
	}

	if result.Success() {
		d.Status = models.DeliveryDelivered
		d.NextRetryAt = nil
		d.ErrorMessage = nil
		p.log.Info().
			Str("delivery_id", d.ID).
			Str("endpoint_id", ep.ID).
			Str("event_type", ev.Type).
			Int("status_code", result.StatusCode).
			Int64("latency_ms", result.LatencyMs).
			Int("attempts", d.Attempts).
			Msg("delivery succeeded")
	} else {
		derr := &Error{EndpointID: ep.ID, EventID: ev.ID, StatusCode: result.StatusCode, Err: result.Err}
		msg := derr.Error()
		d.ErrorMessage = &msg

		maxAttempts := p.cfg.MaxRetryAttempts
		if ep.RetryAttempts > 0 {
			maxAttempts = ep.RetryAttempts
		}

		if d.Attempts < maxAttempts {
			d.Status = models.DeliveryRetrying
			next := now.Add(Backoff(d.Attempts, p.cfg.InitialRetryDelay, p.cfg.MaxRetryDelay, p.cfg.BackoffMultiplier))
			d.NextRetryAt = &next
			p.log.Warn().
				Str("delivery_id", d.ID).
				Str("endpoint_id", ep.ID).
				Int("attempt", d.Attempts).
				Time("next_retry", next).
				Str("error", msg).
				Msg("delivery scheduled for retry")
		} else {
			d.Status = models.DeliveryFailed
			d.NextRetryAt = nil
			p.log.Error().
				Str("delivery_id", d.ID).
				Str("endpoint_id", ep.ID).
				Int("attempts", d.Attempts).
				Str("error", msg).
				Msg("delivery permanently failed")
		}
	}

	metrics.Deliveries.WithLabelValues(ev.Type, string(d.Status)).Inc()
	metrics.DeliveryLatency.WithLabelValues(ev.Type).Observe(float64(result.LatencyMs))

	if err := p.deliveries.UpdateDelivery(ctx, d); err != nil {
		p.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to update delivery")
	}
}

func (p *Processor) fail(ctx context.Context, d *models.Delivery, reason string) {
	d.Status = models.DeliveryFailed
	d.NextRetryAt = nil
	d.ErrorMessage = &reason
	if err := p.deliveries.UpdateDelivery(ctx, d); err != nil {
		p.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to mark delivery failed")
	}
	p.log.Warn().Str("delivery_id", d.ID).Str("reason", reason).Msg("delivery dropped")
}
