package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Registry answers whether a dedupe key has been seen before. It guards the
// file ingestor against re-enqueuing rows when a crash between the copy and
// delete of file relocation causes a file to be redelivered.
//
// Registry errors must never fail ingestion: callers treat an errored lookup
// as "first seen" so at-least-once delivery wins over deduplication.
type Registry interface {
	// FirstSeen registers the key and reports whether this was its first
	// registration.
	FirstSeen(ctx context.Context, key string) (bool, error)
	// Close releases any underlying resources.
	Close() error
}

// RowKey derives the stable dedupe key for one row: a hash over the source
// object's identity and the row's content. The same row of the same file
// always produces the same key, across retries and process restarts.
func RowKey(bucket, object string, row []byte) string {
	h := sha256.New()
	h.Write([]byte(bucket))
	h.Write([]byte{0})
	h.Write([]byte(object))
	h.Write([]byte{0})
	h.Write(row)
	return fmt.Sprintf("row:%s", hex.EncodeToString(h.Sum(nil)))
}

// InMemoryRegistry is a map-backed Registry for tests and single-process
// runs. It never expires keys.
type InMemoryRegistry struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{seen: make(map[string]struct{})}
}

func (r *InMemoryRegistry) FirstSeen(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[key]; ok {
		return false, nil
	}
	r.seen[key] = struct{}{}
	return true, nil
}

func (r *InMemoryRegistry) Close() error { return nil }
