// Package webhook wires the event publisher, delivery processor, and
// persistence adapters into a single lifecycle-owning Manager.
package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/saralbooks/ledgerhooks/internal/config"
	"github.com/saralbooks/ledgerhooks/internal/delivery"
	"github.com/saralbooks/ledgerhooks/internal/event"
	"github.com/saralbooks/ledgerhooks/internal/metrics"
	"github.com/saralbooks/ledgerhooks/internal/models"
	"github.com/saralbooks/ledgerhooks/internal/storage"
)

// Manager owns the webhook subsystem. The owning process constructs one at
// startup, calls Start, and calls Stop from its shutdown path (signal
// handling stays with the host process, not here).
type Manager struct {
	cfg        config.WebhookConfig
	publisher  *event.Publisher
	processor  *delivery.Processor
	endpoints  storage.EndpointRepository
	deliveries storage.DeliveryRepository
	queue      storage.EventQueue
	log        zerolog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	// drainMu keeps at most one queue drain active so a tick firing while
	// the previous one still runs cannot double-process an event.
	drainMu sync.Mutex
}

// New validates cfg and wires the subsystem. client may be nil, in which
// case a default HTTP client is used.
func New(cfg config.WebhookConfig, store storage.Store, client delivery.Doer, environment, version string, log zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics.Register()

	sender := delivery.NewSender(client, cfg, version)
	return &Manager{
		cfg:        cfg,
		publisher:  event.NewPublisher(store, store, environment, log),
		processor:  delivery.NewProcessor(cfg, store, store, store, sender, log),
		endpoints:  store,
		deliveries: store,
		queue:      store,
		log:        log,
	}, nil
}

// --- Publishing ---

func (m *Manager) PublishEvent(ctx context.Context, in event.Input) (*models.Event, error) {
	ev, err := m.publisher.Publish(ctx, in)
	if err != nil {
		return nil, err
	}
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	return ev, nil
}

func (m *Manager) PublishBatch(ctx context.Context, ins []event.Input) ([]*models.Event, error) {
	evs, err := m.publisher.PublishBatch(ctx, ins)
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	}
	return evs, nil
}

// --- Endpoint CRUD ---

// CreateEndpoint assigns the id, secret, and timestamps; the secret is only
// visible in the returned value.
func (m *Manager) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	now := time.Now().UTC()
	ep.ID = models.NewID("ep")
	ep.Secret = models.NewSecret()
	ep.Active = true
	ep.CreatedAt = now
	ep.UpdatedAt = now
	if ep.EventTypes == nil {
		ep.EventTypes = []string{}
	}
	if err := m.endpoints.CreateEndpoint(ctx, ep); err != nil {
		return fmt.Errorf("create endpoint: %w", err)
	}
	return nil
}

func (m *Manager) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	return m.endpoints.GetEndpoint(ctx, id)
}

func (m *Manager) ListEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error) {
	return m.endpoints.ListEndpoints(ctx, tenantID)
}

func (m *Manager) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	return m.endpoints.UpdateEndpoint(ctx, ep)
}

func (m *Manager) DeleteEndpoint(ctx context.Context, id string) error {
	return m.endpoints.DeleteEndpoint(ctx, id)
}

func (m *Manager) EndpointStats(ctx context.Context, endpointID string) (*models.Stats, error) {
	return m.deliveries.GetEndpointStats(ctx, endpointID)
}

func (m *Manager) TenantStats(ctx context.Context, tenantID string) (*models.Stats, error) {
	return m.deliveries.GetTenantStats(ctx, tenantID)
}

// --- Processing ---

// ProcessPending drains up to batchSize events from the queue and fans each
// one out. A failure on one event is logged and the drain continues. If a
// drain is already in progress the call is a no-op.
func (m *Manager) ProcessPending(ctx context.Context) (int, error) {
	if !m.drainMu.TryLock() {
		return 0, nil
	}
	defer m.drainMu.Unlock()

	processed := 0
	for processed < m.cfg.BatchSize {
		ev, err := m.queue.Dequeue(ctx)
		if err != nil {
			return processed, fmt.Errorf("dequeue: %w", err)
		}
		if ev == nil {
			break
		}
		if err := m.processor.ProcessEvent(ctx, ev); err != nil {
			m.log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to process event")
		}
		processed++
	}

	if size, err := m.queue.QueueSize(ctx); err == nil {
		metrics.QueueDepth.Set(float64(size))
	}
	return processed, nil
}

// RetryFailedDeliveries re-attempts deliveries whose backoff has elapsed.
func (m *Manager) RetryFailedDeliveries(ctx context.Context) (int, error) {
	return m.processor.RetryDue(ctx)
}

// --- Lifecycle ---

// Start launches the processing and retry loops. Calling Start on a running
// Manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})

	m.log.Info().
		Dur("process_interval", m.cfg.ProcessInterval).
		Dur("retry_interval", m.cfg.RetryInterval).
		Int("concurrency", m.cfg.Concurrency).
		Msg("webhook manager started")

	m.wg.Add(2)
	go m.loop(ctx, m.stop, m.cfg.ProcessInterval, "process", func(ctx context.Context) error {
		_, err := m.ProcessPending(ctx)
		return err
	})
	go m.loop(ctx, m.stop, m.cfg.RetryInterval, "retry", func(ctx context.Context) error {
		_, err := m.RetryFailedDeliveries(ctx)
		return err
	})
}

// Stop halts both loops, then runs one final drain so events enqueued just
// before shutdown still get a delivery attempt. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()

	if _, err := m.ProcessPending(context.Background()); err != nil {
		m.log.Error().Err(err).Msg("final drain failed")
	}
	m.log.Info().Msg("webhook manager stopped")
}

// loop ticks until stopped; a failing tick is logged and the loop goes on.
func (m *Manager) loop(ctx context.Context, stop <-chan struct{}, interval time.Duration, name string, fn func(context.Context) error) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				m.log.Error().Err(err).Str("loop", name).Msg("loop tick failed")
			}
		}
	}
}
