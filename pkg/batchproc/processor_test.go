package batchproc_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-catalog/pkg/batchproc"
	"github.com/illmade-knight/go-catalog/pkg/catalog"
	"github.com/illmade-knight/go-catalog/pkg/notify"
	"github.com/illmade-knight/go-catalog/pkg/productstore"
	"github.com/illmade-knight/go-catalog/pkg/types"
)

// settleCounter tracks acks and nacks across a batch.
type settleCounter struct {
	mu    sync.Mutex
	acks  int
	nacks int
}

func (c *settleCounter) message(id, body string) types.ConsumedMessage {
	return types.ConsumedMessage{
		ID:      id,
		Payload: []byte(body),
		Ack:     func() { c.mu.Lock(); c.acks++; c.mu.Unlock() },
		Nack:    func() { c.mu.Lock(); c.nacks++; c.mu.Unlock() },
	}
}

func (c *settleCounter) counts() (acks, nacks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acks, c.nacks
}

// failingStore wraps the in-memory store and fails on demand.
type failingStore struct {
	*productstore.InMemoryEntryStore
	failAll bool
}

func (s *failingStore) CreateEntry(ctx context.Context, entry catalog.CatalogEntry) error {
	if s.failAll {
		return errors.New("store unavailable")
	}
	return s.InMemoryEntryStore.CreateEntry(ctx, entry)
}

func newProcessor(t *testing.T, store productstore.EntryStore, publisher notify.Publisher) *batchproc.Processor {
	t.Helper()
	processor, err := batchproc.NewProcessor(store, publisher, nil, zerolog.Nop())
	require.NoError(t, err)
	return processor
}

const (
	widgetBody = `{"title":"Widget","description":"a widget","price":"9.99","count":5}`
	gadgetBody = `{"title":"Gadget","description":"a gadget","price":"150","count":2}`
)

func notificationsBySubject(published []notify.Notification, subject string) []notify.Notification {
	var out []notify.Notification
	for _, n := range published {
		if n.Subject == subject {
			out = append(out, n)
		}
	}
	return out
}

func TestHandleBatch_TwoWellFormedMessages(t *testing.T) {
	ctx := context.Background()
	store := productstore.NewInMemoryEntryStore()
	publisher := notify.NewCapturePublisher()
	processor := newProcessor(t, store, publisher)

	counter := &settleCounter{}
	processor.HandleBatch(ctx, []types.ConsumedMessage{
		counter.message("m1", widgetBody),
		counter.message("m2", gadgetBody),
	})

	// Two pairs persisted with distinct generated ids.
	entries, err := store.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].Product.ID, entries[1].Product.ID)
	for _, entry := range entries {
		assert.Equal(t, entry.Product.ID, entry.Stock.ProductID)
	}

	// Exactly one success notification listing both, no failure notification.
	published := publisher.Published()
	successes := notificationsBySubject(published, batchproc.SubjectCreated)
	require.Len(t, successes, 1)
	assert.Empty(t, notificationsBySubject(published, batchproc.SubjectFailed))

	var payload struct {
		Products []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"products"`
	}
	require.NoError(t, json.Unmarshal(successes[0].Body, &payload))
	assert.Len(t, payload.Products, 2)
	assert.Equal(t, "2", successes[0].Attributes["product_count"])
	assert.Equal(t, "150", successes[0].Attributes["price"], "the representative price is the batch maximum")

	acks, nacks := counter.counts()
	assert.Equal(t, 2, acks)
	assert.Equal(t, 0, nacks)
}

func TestHandleBatch_MixedWellFormedAndMalformed(t *testing.T) {
	ctx := context.Background()
	store := productstore.NewInMemoryEntryStore()
	publisher := notify.NewCapturePublisher()
	processor := newProcessor(t, store, publisher)

	counter := &settleCounter{}
	processor.HandleBatch(ctx, []types.ConsumedMessage{
		counter.message("m1", widgetBody),
		counter.message("m2", `{"description":"no title, no price"}`),
	})

	entries, err := store.ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the well-formed record is persisted")

	published := publisher.Published()
	successes := notificationsBySubject(published, batchproc.SubjectCreated)
	failures := notificationsBySubject(published, batchproc.SubjectFailed)
	require.Len(t, successes, 1)
	require.Len(t, failures, 1, "the failure notification must not replace the success one")

	var failurePayload struct {
		FailureCount int                     `json:"failure_count"`
		Failures     []catalog.RecordFailure `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(failures[0].Body, &failurePayload))
	assert.Equal(t, 1, failurePayload.FailureCount)
	require.Len(t, failurePayload.Failures, 1)
	assert.Equal(t, catalog.ReasonMalformedMessage, failurePayload.Failures[0].Reason)
	assert.Equal(t, "m2", failurePayload.Failures[0].MessageID)

	// The invocation still succeeds: everything is acked.
	acks, nacks := counter.counts()
	assert.Equal(t, 2, acks)
	assert.Equal(t, 0, nacks)
}

func TestHandleBatch_AllFailedNacksWholeBatch(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{InMemoryEntryStore: productstore.NewInMemoryEntryStore(), failAll: true}
	publisher := notify.NewCapturePublisher()
	processor := newProcessor(t, store, publisher)

	counter := &settleCounter{}
	processor.HandleBatch(ctx, []types.ConsumedMessage{
		counter.message("m1", widgetBody),
		counter.message("m2", gadgetBody),
	})

	published := publisher.Published()
	assert.Empty(t, notificationsBySubject(published, batchproc.SubjectCreated))
	require.Len(t, notificationsBySubject(published, batchproc.SubjectFailed), 1)

	acks, nacks := counter.counts()
	assert.Equal(t, 0, acks)
	assert.Equal(t, 2, nacks, "a fully failed batch is redelivered")
}

func TestProcessBatch_AccountsForEveryMessage(t *testing.T) {
	ctx := context.Background()
	store := productstore.NewInMemoryEntryStore()
	publisher := notify.NewCapturePublisher()
	processor := newProcessor(t, store, publisher)

	batch := []types.ConsumedMessage{
		{ID: "m1", Payload: []byte(widgetBody)},
		{ID: "m2", Payload: []byte(`not json`)},
		{ID: "m3", Payload: []byte(gadgetBody)},
		{ID: "m4", Payload: []byte(`{"title":"Bad","description":"","price":"-1","count":1}`)},
	}
	outcome := processor.ProcessBatch(ctx, batch)

	assert.Equal(t, len(batch), outcome.Size(), "successes plus failures must equal the batch size")
	assert.Len(t, outcome.Successes, 2)
	assert.Len(t, outcome.Failures, 2)
	for _, f := range outcome.Failures {
		assert.Equal(t, catalog.ReasonMalformedMessage, f.Reason)
	}
}

func TestProcessBatch_PersistedEntryRereadsIdentically(t *testing.T) {
	ctx := context.Background()
	store := productstore.NewInMemoryEntryStore()
	publisher := notify.NewCapturePublisher()
	processor := newProcessor(t, store, publisher)

	outcome := processor.ProcessBatch(ctx, []types.ConsumedMessage{{ID: "m1", Payload: []byte(widgetBody)}})
	require.Len(t, outcome.Successes, 1)

	persisted := outcome.Successes[0]
	got, err := store.GetEntry(ctx, persisted.Product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Product.Title)
	assert.Equal(t, "a widget", got.Product.Description)
	assert.True(t, got.Product.Price.Equal(persisted.Product.Price))
	assert.Equal(t, 5, got.Stock.Count)
}

func TestProcessBatch_PersistenceErrorReason(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{InMemoryEntryStore: productstore.NewInMemoryEntryStore(), failAll: true}
	publisher := notify.NewCapturePublisher()
	processor := newProcessor(t, store, publisher)

	outcome := processor.ProcessBatch(ctx, []types.ConsumedMessage{{ID: "m1", Payload: []byte(widgetBody)}})

	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, catalog.ReasonPersistenceError, outcome.Failures[0].Reason)
}

// archiveRecorder records archived outcomes.
type archiveRecorder struct {
	mu       sync.Mutex
	outcomes []catalog.BatchOutcome
	err      error
}

func (a *archiveRecorder) ArchiveOutcome(_ context.Context, outcome catalog.BatchOutcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.outcomes = append(a.outcomes, outcome)
	return nil
}

func TestHandleBatch_ArchivesOutcome(t *testing.T) {
	ctx := context.Background()
	store := productstore.NewInMemoryEntryStore()
	publisher := notify.NewCapturePublisher()
	archiver := &archiveRecorder{}
	processor, err := batchproc.NewProcessor(store, publisher, archiver, zerolog.Nop())
	require.NoError(t, err)

	counter := &settleCounter{}
	processor.HandleBatch(ctx, []types.ConsumedMessage{counter.message("m1", widgetBody)})

	require.Len(t, archiver.outcomes, 1)
	assert.Len(t, archiver.outcomes[0].Successes, 1)
}

func TestHandleBatch_ArchiveFailureDoesNotChangeSettlement(t *testing.T) {
	ctx := context.Background()
	store := productstore.NewInMemoryEntryStore()
	publisher := notify.NewCapturePublisher()
	archiver := &archiveRecorder{err: errors.New("archive bucket unavailable")}
	processor, err := batchproc.NewProcessor(store, publisher, archiver, zerolog.Nop())
	require.NoError(t, err)

	counter := &settleCounter{}
	processor.HandleBatch(ctx, []types.ConsumedMessage{counter.message("m1", widgetBody)})

	acks, nacks := counter.counts()
	assert.Equal(t, 1, acks)
	assert.Equal(t, 0, nacks)
}
