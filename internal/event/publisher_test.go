package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saralbooks/ledgerhooks/internal/models"
	"github.com/saralbooks/ledgerhooks/internal/storage"
)

type failingStore struct {
	storage.EventStore
}

func (f *failingStore) StoreEvent(ctx context.Context, ev *models.Event) error {
	return errors.New("disk full")
}

func (f *failingStore) StoreEvents(ctx context.Context, evs []*models.Event) error {
	return errors.New("disk full")
}

func newTestPublisher(store storage.Store) *Publisher {
	return NewPublisher(store, store, "test", zerolog.Nop())
}

func TestPublishStoresAndEnqueues(t *testing.T) {
	mem := storage.NewMemory()
	p := newTestPublisher(mem)
	ctx := context.Background()

	ev, err := p.Publish(ctx, Input{
		Type: models.EventInvoiceCreated,
		Data: json.RawMessage(`{"invoice_id":"inv_1"}`),
		Metadata: models.EventMetadata{
			TenantID: "tnt_1",
			UserID:   "usr_1",
		},
	})
	require.NoError(t, err)

	stored, err := mem.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	size, err := mem.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	assert.Equal(t, "tnt_1", ev.Metadata.TenantID)
	assert.Equal(t, "usr_1", ev.Metadata.UserID)
	assert.Equal(t, DefaultVersion, ev.Metadata.Version)
	assert.Equal(t, DefaultSource, ev.Metadata.Source)
	assert.Equal(t, "test", ev.Metadata.Environment)
	assert.False(t, ev.Metadata.Timestamp.IsZero())
}

func TestPublishDefaultsTenant(t *testing.T) {
	mem := storage.NewMemory()
	p := newTestPublisher(mem)

	ev, err := p.Publish(context.Background(), Input{Type: models.EventLedgerEntryPosted, Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, DefaultTenantID, ev.Metadata.TenantID)
}

func TestPublishStorageFailureNothingEnqueued(t *testing.T) {
	mem := storage.NewMemory()
	p := NewPublisher(&failingStore{}, mem, "test", zerolog.Nop())

	_, err := p.Publish(context.Background(), Input{Type: models.EventInvoiceCreated, Data: json.RawMessage(`{}`)})
	require.Error(t, err)

	size, err := mem.QueueSize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, size, "a storage failure must not enqueue the event")
}

func TestPublishBatchOrderingAndFailure(t *testing.T) {
	mem := storage.NewMemory()
	p := newTestPublisher(mem)
	ctx := context.Background()

	evs, err := p.PublishBatch(ctx, []Input{
		{Type: models.EventInvoiceCreated, Data: json.RawMessage(`{"n":1}`)},
		{Type: models.EventInvoicePaid, Data: json.RawMessage(`{"n":2}`)},
	})
	require.NoError(t, err)
	require.Len(t, evs, 2)

	size, _ := mem.QueueSize(ctx)
	assert.Equal(t, 2, size)

	// FIFO: the first published event dequeues first.
	first, err := mem.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, evs[0].ID, first.ID)

	// Batch storage failure aborts before any enqueue.
	failing := NewPublisher(&failingStore{}, mem, "test", zerolog.Nop())
	_, err = failing.PublishBatch(ctx, []Input{{Type: models.EventInvoicePaid, Data: json.RawMessage(`{}`)}})
	require.Error(t, err)
	size, _ = mem.QueueSize(ctx)
	assert.Equal(t, 1, size, "failed batch must not enqueue")
}

func TestConcurrentPublishUniqueIDs(t *testing.T) {
	mem := storage.NewMemory()
	p := newTestPublisher(mem)

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, err := p.Publish(context.Background(), Input{Type: models.EventPaymentReceived, Data: json.RawMessage(`{}`)})
			if err == nil {
				ids <- ev.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate event id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
