package productstore

import (
	"context"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
)

// EntryStore is the record store boundary for the pipeline. Implementations
// must make CreateEntry atomic across the product and stock tables: a
// Product without its StockRecord, or the reverse, is never observable.
type EntryStore interface {
	// CreateEntry persists the Product and StockRecord of one catalog entry
	// as a single all-or-nothing write.
	CreateEntry(ctx context.Context, entry catalog.CatalogEntry) error
	// GetEntry reads one catalog entry by its generated product id. Returns
	// catalog.ErrNotFound when no product with that id exists.
	GetEntry(ctx context.Context, id string) (*catalog.CatalogEntry, error)
	// ListEntries returns all catalog entries, products joined with their
	// stock counts. A product missing its stock record reports count 0.
	ListEntries(ctx context.Context) ([]catalog.CatalogEntry, error)
	// Close releases any underlying client resources owned by the store.
	Close() error
}
