package productstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
)

// InMemoryEntryStore is a map-backed EntryStore for tests and local runs.
// It honours the same atomicity contract as the Firestore implementation:
// the product and stock maps are updated under one lock, together or not at
// all.
type InMemoryEntryStore struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
	stocks   map[string]catalog.StockRecord
}

// NewInMemoryEntryStore creates an empty in-memory store.
func NewInMemoryEntryStore() *InMemoryEntryStore {
	return &InMemoryEntryStore{
		products: make(map[string]catalog.Product),
		stocks:   make(map[string]catalog.StockRecord),
	}
}

func (s *InMemoryEntryStore) CreateEntry(_ context.Context, entry catalog.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[entry.Product.ID]; exists {
		return fmt.Errorf("product %s already exists", entry.Product.ID)
	}
	s.products[entry.Product.ID] = entry.Product
	s.stocks[entry.Stock.ProductID] = entry.Stock
	return nil
}

func (s *InMemoryEntryStore) GetEntry(_ context.Context, id string) (*catalog.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	entry := &catalog.CatalogEntry{
		Product: product,
		Stock:   catalog.StockRecord{ProductID: id},
	}
	if stock, ok := s.stocks[id]; ok {
		entry.Stock = stock
	}
	return entry, nil
}

func (s *InMemoryEntryStore) ListEntries(_ context.Context) ([]catalog.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]catalog.CatalogEntry, 0, len(s.products))
	for id, product := range s.products {
		entry := catalog.CatalogEntry{
			Product: product,
			Stock:   catalog.StockRecord{ProductID: id},
		}
		if stock, ok := s.stocks[id]; ok {
			entry.Stock = stock
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Product.ID < entries[j].Product.ID
	})
	return entries, nil
}

func (s *InMemoryEntryStore) Close() error {
	return nil
}
