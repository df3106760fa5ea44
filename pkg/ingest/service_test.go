package ingest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
	"github.com/illmade-knight/go-catalog/pkg/dedupe"
	"github.com/illmade-knight/go-catalog/pkg/ingest"
	"github.com/illmade-knight/go-catalog/pkg/types"
)

// --- Test fakes ---

// fakeConsumer satisfies pipeline.MessageConsumer for tests that drive
// ProcessObject directly and never start the consumer.
type fakeConsumer struct {
	messages chan types.ConsumedMessage
	done     chan struct{}
	stopOnce sync.Once
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{
		messages: make(chan types.ConsumedMessage, 16),
		done:     make(chan struct{}),
	}
}

func (c *fakeConsumer) Messages() <-chan types.ConsumedMessage { return c.messages }
func (c *fakeConsumer) Start(_ context.Context) error          { return nil }
func (c *fakeConsumer) Stop() error {
	c.stopOnce.Do(func() {
		close(c.messages)
		close(c.done)
	})
	return nil
}
func (c *fakeConsumer) Done() <-chan struct{} { return c.done }

// fakeObjectStore is an in-memory ObjectStore keyed by "bucket/object".
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	readErr error
	copyErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) put(bucket, object string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+object] = data
}

func (s *fakeObjectStore) has(bucket, object string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+object]
	return ok
}

func (s *fakeObjectStore) NewReader(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+object]
	if !ok {
		return nil, fmt.Errorf("object %s/%s does not exist", bucket, object)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeObjectStore) Copy(_ context.Context, bucket, srcObject, dstObject string) error {
	if s.copyErr != nil {
		return s.copyErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+srcObject]
	if !ok {
		return fmt.Errorf("object %s/%s does not exist", bucket, srcObject)
	}
	s.objects[bucket+"/"+dstObject] = data
	return nil
}

func (s *fakeObjectStore) Delete(_ context.Context, bucket, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+object)
	return nil
}

// fakePublisher captures published rows; Flush can be made to fail.
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedRow
	flushErr  error
	flushed   int
}

type publishedRow struct {
	body       []byte
	attributes map[string]string
}

func (p *fakePublisher) Publish(_ context.Context, body []byte, attributes map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedRow{body: body, attributes: attributes})
}

func (p *fakePublisher) Flush(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushed++
	return p.flushErr
}

func (p *fakePublisher) Stop() {}

func (p *fakePublisher) rows() []publishedRow {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedRow, len(p.published))
	copy(out, p.published)
	return out
}

func newTestService(t *testing.T, store *fakeObjectStore, publisher *fakePublisher, registry dedupe.Registry) *ingest.Service {
	t.Helper()
	service, err := ingest.NewService(
		ingest.ServiceConfig{NumWorkers: 1},
		newFakeConsumer(),
		store,
		publisher,
		registry,
		zerolog.Nop(),
	)
	require.NoError(t, err)
	return service
}

// --- ProcessObject tests ---

func TestService_ProcessObject_AllValidRows(t *testing.T) {
	store := newFakeObjectStore()
	store.put("catalog-bucket", "uploaded/catalog.csv", []byte(
		"title,description,price,count\n"+
			"Widget,a widget,9.99,5\n"+
			"Gadget,a gadget,150,2\n"))
	publisher := &fakePublisher{}
	service := newTestService(t, store, publisher, dedupe.NewInMemoryRegistry())

	summary, err := service.ProcessObject(context.Background(), "catalog-bucket", "uploaded/catalog.csv")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Published, "every valid row is enqueued exactly once")
	assert.Equal(t, 0, summary.Malformed)
	assert.True(t, summary.Relocated)

	rows := publisher.rows()
	require.Len(t, rows, 2)
	var record catalog.RawRecord
	require.NoError(t, json.Unmarshal(rows[0].body, &record))
	assert.Equal(t, "Widget", record.Title)
	assert.Equal(t, "9.99", record.Price.String())
	assert.Equal(t, "uploaded/catalog.csv", rows[0].attributes[ingest.AttrSourceObject])
	assert.NotEmpty(t, rows[0].attributes[ingest.AttrDedupeKey])

	// The file was relocated exactly once: present in parsed/, gone from uploaded/.
	assert.True(t, store.has("catalog-bucket", "parsed/catalog.csv"))
	assert.False(t, store.has("catalog-bucket", "uploaded/catalog.csv"))
}

func TestService_ProcessObject_MalformedRowScenario(t *testing.T) {
	// The second data row has empty required fields: only one message is
	// enqueued and the file still relocates.
	store := newFakeObjectStore()
	store.put("catalog-bucket", "uploaded/catalog.csv", []byte(
		"title,description,price,count\nWidget,a widget,9.99,5\n,,,\n"))
	publisher := &fakePublisher{}
	service := newTestService(t, store, publisher, dedupe.NewInMemoryRegistry())

	summary, err := service.ProcessObject(context.Background(), "catalog-bucket", "uploaded/catalog.csv")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Published)
	assert.Equal(t, 1, summary.Malformed)
	assert.Len(t, publisher.rows(), 1, "malformed rows are never enqueued")
	assert.True(t, store.has("catalog-bucket", "parsed/catalog.csv"))
}

func TestService_ProcessObject_DuplicateRowsSkipped(t *testing.T) {
	registry := dedupe.NewInMemoryRegistry()
	content := []byte("title,description,price,count\nWidget,a widget,9.99,5\n")

	store := newFakeObjectStore()
	store.put("catalog-bucket", "uploaded/catalog.csv", content)
	publisher := &fakePublisher{}
	service := newTestService(t, store, publisher, registry)

	_, err := service.ProcessObject(context.Background(), "catalog-bucket", "uploaded/catalog.csv")
	require.NoError(t, err)

	// Simulate redelivery after a crash between copy and delete: the file is
	// back under uploaded/ with identical content.
	store.put("catalog-bucket", "uploaded/catalog.csv", content)
	summary, err := service.ProcessObject(context.Background(), "catalog-bucket", "uploaded/catalog.csv")
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Published, "the replayed row must not be enqueued twice")
	assert.Equal(t, 1, summary.Duplicates)
	assert.Len(t, publisher.rows(), 1)
}

func TestService_ProcessObject_MissingObjectFailsInvocation(t *testing.T) {
	store := newFakeObjectStore()
	publisher := &fakePublisher{}
	service := newTestService(t, store, publisher, dedupe.NewInMemoryRegistry())

	_, err := service.ProcessObject(context.Background(), "catalog-bucket", "uploaded/missing.csv")
	assert.Error(t, err)
	assert.Empty(t, publisher.rows())
}

func TestService_ProcessObject_FlushFailureLeavesFileInPlace(t *testing.T) {
	store := newFakeObjectStore()
	store.put("catalog-bucket", "uploaded/catalog.csv", []byte(
		"title,description,price,count\nWidget,a widget,9.99,5\n"))
	publisher := &fakePublisher{flushErr: errors.New("queue unreachable")}
	service := newTestService(t, store, publisher, dedupe.NewInMemoryRegistry())

	_, err := service.ProcessObject(context.Background(), "catalog-bucket", "uploaded/catalog.csv")

	require.Error(t, err)
	assert.True(t, store.has("catalog-bucket", "uploaded/catalog.csv"),
		"the object must stay in uploaded/ for retry")
	assert.False(t, store.has("catalog-bucket", "parsed/catalog.csv"))
}

func TestService_ProcessObject_CopyFailureLeavesFileInPlace(t *testing.T) {
	store := newFakeObjectStore()
	store.put("catalog-bucket", "uploaded/catalog.csv", []byte(
		"title,description,price,count\nWidget,a widget,9.99,5\n"))
	store.copyErr = errors.New("storage unavailable")
	publisher := &fakePublisher{}
	service := newTestService(t, store, publisher, dedupe.NewInMemoryRegistry())

	_, err := service.ProcessObject(context.Background(), "catalog-bucket", "uploaded/catalog.csv")

	require.Error(t, err)
	assert.True(t, store.has("catalog-bucket", "uploaded/catalog.csv"))
}

func TestService_ProcessObject_RegistryErrorDoesNotBlockIngestion(t *testing.T) {
	store := newFakeObjectStore()
	store.put("catalog-bucket", "uploaded/catalog.csv", []byte(
		"title,description,price,count\nWidget,a widget,9.99,5\n"))
	publisher := &fakePublisher{}
	service := newTestService(t, store, publisher, &erroringRegistry{})

	summary, err := service.ProcessObject(context.Background(), "catalog-bucket", "uploaded/catalog.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Published, "at-least-once wins over dedupe")
}

func TestService_EventLoop(t *testing.T) {
	store := newFakeObjectStore()
	store.put("catalog-bucket", "uploaded/catalog.csv", []byte(
		"title,description,price,count\nWidget,a widget,9.99,5\n"))
	publisher := &fakePublisher{}
	consumer := newFakeConsumer()

	service, err := ingest.NewService(
		ingest.ServiceConfig{NumWorkers: 1},
		consumer,
		store,
		publisher,
		dedupe.NewInMemoryRegistry(),
		zerolog.Nop(),
	)
	require.NoError(t, err)
	require.NoError(t, service.Start())

	acked := make(chan struct{})
	consumer.messages <- types.ConsumedMessage{
		ID: "evt-1",
		Attributes: map[string]string{
			"eventType": "OBJECT_FINALIZE",
			"bucketId":  "catalog-bucket",
			"objectId":  "uploaded/catalog.csv",
		},
		Ack:  func() { close(acked) },
		Nack: func() { t.Error("event should not be nacked") },
	}

	select {
	case <-acked:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event to be acked")
	}
	service.Stop()

	assert.Len(t, publisher.rows(), 1)
	assert.True(t, store.has("catalog-bucket", "parsed/catalog.csv"))
}

type erroringRegistry struct{}

func (r *erroringRegistry) FirstSeen(context.Context, string) (bool, error) {
	return false, errors.New("registry unavailable")
}
func (r *erroringRegistry) Close() error { return nil }
