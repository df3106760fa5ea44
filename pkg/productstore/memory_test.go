package productstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
	"github.com/illmade-knight/go-catalog/pkg/productstore"
)

func newEntry(id, title, price string, count int) catalog.CatalogEntry {
	return catalog.NewCatalogEntry(id, catalog.RawRecord{
		Title:       title,
		Description: "a " + title,
		Price:       decimal.RequireFromString(price),
		Count:       count,
	})
}

func TestInMemoryEntryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := productstore.NewInMemoryEntryStore()

	entry := newEntry("id-1", "Widget", "9.99", 5)
	require.NoError(t, store.CreateEntry(ctx, entry))

	// Re-reading by the generated id returns the same attributes.
	got, err := store.GetEntry(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Product.Title)
	assert.Equal(t, "a Widget", got.Product.Description)
	assert.True(t, got.Product.Price.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, 5, got.Stock.Count)
	assert.Equal(t, "id-1", got.Stock.ProductID)
}

func TestInMemoryEntryStore_GetEntry_NotFound(t *testing.T) {
	store := productstore.NewInMemoryEntryStore()
	_, err := store.GetEntry(context.Background(), "missing")
	assert.True(t, errors.Is(err, catalog.ErrNotFound))
}

func TestInMemoryEntryStore_CreateEntry_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := productstore.NewInMemoryEntryStore()

	require.NoError(t, store.CreateEntry(ctx, newEntry("id-1", "Widget", "9.99", 5)))
	err := store.CreateEntry(ctx, newEntry("id-1", "Other", "1.00", 1))
	assert.Error(t, err, "generated ids must never be reused")
}

func TestInMemoryEntryStore_ListEntries(t *testing.T) {
	ctx := context.Background()
	store := productstore.NewInMemoryEntryStore()

	require.NoError(t, store.CreateEntry(ctx, newEntry("id-b", "Widget", "9.99", 5)))
	require.NoError(t, store.CreateEntry(ctx, newEntry("id-a", "Gadget", "150", 2)))

	entries, err := store.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "id-a", entries[0].Product.ID)
	assert.Equal(t, 2, entries[0].Stock.Count)
	assert.Equal(t, "id-b", entries[1].Product.ID)
}
