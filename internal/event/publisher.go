// Package event publishes business events into the webhook pipeline.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/saralbooks/ledgerhooks/internal/models"
	"github.com/saralbooks/ledgerhooks/internal/storage"
)

// Metadata defaults merged under any caller-supplied overrides.
const (
	DefaultTenantID = "system"
	DefaultVersion  = "1.0.0"
	DefaultSource   = "saralbooks"
)

// Input is one event to publish. Metadata fields left zero are filled with
// defaults.
type Input struct {
	Type     string
	Data     json.RawMessage
	Metadata models.EventMetadata
}

// Publisher builds events and hands them to the pipeline. The ordering
// contract is store-then-enqueue: an event that cannot be durably recorded
// is never enqueued, so no delivery can happen without an audit record.
type Publisher struct {
	store       storage.EventStore
	queue       storage.EventQueue
	environment string
	log         zerolog.Logger
}

func NewPublisher(store storage.EventStore, queue storage.EventQueue, environment string, log zerolog.Logger) *Publisher {
	if environment == "" {
		environment = "production"
	}
	return &Publisher{store: store, queue: queue, environment: environment, log: log}
}

// Publish stores and enqueues a single event. If storage fails the error is
// returned to the caller and nothing is enqueued.
func (p *Publisher) Publish(ctx context.Context, in Input) (*models.Event, error) {
	ev := p.build(in)

	if err := p.store.StoreEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("store event: %w", err)
	}
	if err := p.queue.Enqueue(ctx, ev); err != nil {
		return nil, fmt.Errorf("enqueue event: %w", err)
	}

	p.log.Debug().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("tenant_id", ev.Metadata.TenantID).
		Msg("event published")
	return ev, nil
}

// PublishBatch stores the whole batch, then enqueues it. A storage failure
// aborts before any enqueue; events stored before the failure stay stored
// and remain auditable.
func (p *Publisher) PublishBatch(ctx context.Context, ins []Input) ([]*models.Event, error) {
	if len(ins) == 0 {
		return nil, nil
	}

	evs := make([]*models.Event, len(ins))
	for i, in := range ins {
		evs[i] = p.build(in)
	}

	if err := p.store.StoreEvents(ctx, evs); err != nil {
		return nil, fmt.Errorf("store event batch: %w", err)
	}
	if err := p.queue.EnqueueBatch(ctx, evs); err != nil {
		return nil, fmt.Errorf("enqueue event batch: %w", err)
	}

	p.log.Debug().Int("count", len(evs)).Msg("event batch published")
	return evs, nil
}

func (p *Publisher) build(in Input) *models.Event {
	meta := in.Metadata
	if meta.TenantID == "" {
		meta.TenantID = DefaultTenantID
	}
	if meta.Version == "" {
		meta.Version = DefaultVersion
	}
	if meta.Source == "" {
		meta.Source = DefaultSource
	}
	if meta.Environment == "" {
		meta.Environment = p.environment
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}

	return &models.Event{
		ID:       models.NewID("evt"),
		Type:     in.Type,
		Data:     in.Data,
		Metadata: meta,
	}
}
