package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
)

// --- In-memory GCS fake ---

type memGCSClient struct {
	mu      sync.Mutex
	objects map[string]*bytes.Buffer // "bucket/object" -> contents
	failOn  string
}

func newMemGCSClient() *memGCSClient {
	return &memGCSClient{objects: make(map[string]*bytes.Buffer)}
}

func (c *memGCSClient) Bucket(name string) GCSBucketHandle {
	return &memBucket{client: c, bucket: name}
}

type memBucket struct {
	client *memGCSClient
	bucket string
}

func (b *memBucket) Object(name string) GCSObjectHandle {
	return &memObject{client: b.client, key: b.bucket + "/" + name}
}

type memObject struct {
	client *memGCSClient
	key    string
}

func (o *memObject) NewWriter(_ context.Context) GCSWriter {
	return &memWriter{client: o.client, key: o.key}
}

type memWriter struct {
	client *memGCSClient
	key    string
	buf    bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.client.mu.Lock()
	defer w.client.mu.Unlock()
	if w.client.failOn == w.key {
		return errors.New("upload failed")
	}
	w.client.objects[w.key] = bytes.NewBuffer(w.buf.Bytes())
	return nil
}

func (c *memGCSClient) object(key string) (*bytes.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.objects[key]
	return buf, ok
}

// ---

func sampleOutcome() catalog.BatchOutcome {
	price := decimal.RequireFromString("9.99")
	return catalog.BatchOutcome{
		BatchID: "batch-1",
		Successes: []catalog.CatalogEntry{
			{
				Product: catalog.Product{ID: "p1", Title: "Widget", Description: "a widget", Price: price},
				Stock:   catalog.StockRecord{ProductID: "p1", Count: 5},
			},
		},
		Failures: []catalog.RecordFailure{
			{MessageID: "m2", Reason: catalog.ReasonMalformedMessage, Detail: "required fields absent"},
		},
	}
}

func newTestUploader(t *testing.T, client GCSClient) *ReportUploader {
	t.Helper()
	uploader, err := NewReportUploader(client, ReportUploaderConfig{BucketName: "catalog-bucket"}, zerolog.Nop())
	require.NoError(t, err)
	uploader.now = func() time.Time {
		return time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
	}
	return uploader
}

func TestNewReportUploader_Validation(t *testing.T) {
	_, err := NewReportUploader(nil, ReportUploaderConfig{BucketName: "b"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewReportUploader(newMemGCSClient(), ReportUploaderConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestArchiveOutcome_WritesDatedGzipObject(t *testing.T) {
	client := newMemGCSClient()
	uploader := newTestUploader(t, client)

	require.NoError(t, uploader.ArchiveOutcome(context.Background(), sampleOutcome()))

	buf, ok := client.object("catalog-bucket/reports/2024/06/15/batch-1.jsonl.gz")
	require.True(t, ok, "report object name carries the prefix, date and batch id")

	gz, err := gzip.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	var lines []reportLine
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		var line reportLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2, "one line per record in the batch")
	assert.Equal(t, "persisted", lines[0].State)
	assert.Equal(t, "p1", lines[0].ProductID)
	assert.Equal(t, "9.99", lines[0].Price)
	assert.Equal(t, 5, lines[0].Count)
	assert.Equal(t, "failed", lines[1].State)
	assert.Equal(t, "m2", lines[1].MessageID)
	assert.Equal(t, string(catalog.ReasonMalformedMessage), lines[1].Reason)
}

func TestArchiveOutcome_UploadFailure(t *testing.T) {
	client := newMemGCSClient()
	client.failOn = "catalog-bucket/reports/2024/06/15/batch-1.jsonl.gz"
	uploader := newTestUploader(t, client)

	err := uploader.ArchiveOutcome(context.Background(), sampleOutcome())
	assert.Error(t, err)
}
