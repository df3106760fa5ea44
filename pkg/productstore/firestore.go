package productstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
)

// FirestoreStoreConfig holds configuration for the Firestore-backed store.
type FirestoreStoreConfig struct {
	ProjectID          string
	ProductsCollection string // e.g. "products"
	StocksCollection   string // e.g. "stocks"
}

// LoadFirestoreStoreConfigFromEnv loads the store configuration, defaulting
// the collection names to "products" and "stocks".
func LoadFirestoreStoreConfigFromEnv() (*FirestoreStoreConfig, error) {
	cfg := &FirestoreStoreConfig{
		ProjectID:          os.Getenv("GCP_PROJECT_ID"),
		ProductsCollection: os.Getenv("FIRESTORE_COLLECTION_PRODUCTS"),
		StocksCollection:   os.Getenv("FIRESTORE_COLLECTION_STOCKS"),
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP_PROJECT_ID environment variable not set for Firestore")
	}
	if cfg.ProductsCollection == "" {
		cfg.ProductsCollection = "products"
	}
	if cfg.StocksCollection == "" {
		cfg.StocksCollection = "stocks"
	}
	return cfg, nil
}

// productDoc is the Firestore document shape for a product. The price is
// stored in its canonical decimal string form, never a binary float.
type productDoc struct {
	Title       string `firestore:"title"`
	Description string `firestore:"description"`
	Price       string `firestore:"price"`
}

// stockDoc is the Firestore document shape for a stock record. The document
// id doubles as the product id; the field is kept for queryability.
type stockDoc struct {
	ProductID string `firestore:"product_id"`
	Count     int    `firestore:"count"`
}

// FirestoreEntryStore implements EntryStore on Google Cloud Firestore. The
// two collections act as the product and stock tables; a transaction over
// both gives the atomic pair write.
type FirestoreEntryStore struct {
	client   *firestore.Client
	products string
	stocks   string
	logger   zerolog.Logger
}

// NewFirestoreEntryStore creates a store around an existing *firestore.Client.
// The caller owns the client's lifecycle; Close does not close it. Empty
// collection names fall back to "products" and "stocks"; a Collection call
// with an empty name would return a nil ref and panic on first use.
func NewFirestoreEntryStore(client *firestore.Client, cfg *FirestoreStoreConfig, logger zerolog.Logger) (*FirestoreEntryStore, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg.ProductsCollection == "" {
		cfg.ProductsCollection = "products"
	}
	if cfg.StocksCollection == "" {
		cfg.StocksCollection = "stocks"
	}
	logger.Info().
		Str("project_id", cfg.ProjectID).
		Str("products_collection", cfg.ProductsCollection).
		Str("stocks_collection", cfg.StocksCollection).
		Msg("FirestoreEntryStore initialized")
	return &FirestoreEntryStore{
		client:   client,
		products: cfg.ProductsCollection,
		stocks:   cfg.StocksCollection,
		logger:   logger.With().Str("component", "FirestoreEntryStore").Logger(),
	}, nil
}

// CreateEntry writes the product and stock documents in one transaction.
// Both documents are keyed by the generated product id; Create fails the
// transaction if either already exists, so ids are never silently reused.
func (s *FirestoreEntryStore) CreateEntry(ctx context.Context, entry catalog.CatalogEntry) error {
	productRef := s.client.Collection(s.products).Doc(entry.Product.ID)
	stockRef := s.client.Collection(s.stocks).Doc(entry.Stock.ProductID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(productRef, productDoc{
			Title:       entry.Product.Title,
			Description: entry.Product.Description,
			Price:       entry.Product.Price.String(),
		}); err != nil {
			return err
		}
		return tx.Create(stockRef, stockDoc{
			ProductID: entry.Stock.ProductID,
			Count:     entry.Stock.Count,
		})
	})
	if err != nil {
		return fmt.Errorf("firestore create for entry %s: %w", entry.Product.ID, err)
	}

	s.logger.Debug().Str("product_id", entry.Product.ID).Msg("Catalog entry persisted")
	return nil
}

// GetEntry reads one entry by product id, joining the stock document.
func (s *FirestoreEntryStore) GetEntry(ctx context.Context, id string) (*catalog.CatalogEntry, error) {
	productSnap, err := s.client.Collection(s.products).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("firestore get product %s: %w", id, err)
	}

	var pd productDoc
	if err := productSnap.DataTo(&pd); err != nil {
		return nil, fmt.Errorf("firestore product %s mapping: %w", id, err)
	}
	price, err := decimal.NewFromString(pd.Price)
	if err != nil {
		return nil, fmt.Errorf("firestore product %s has unparseable price %q: %w", id, pd.Price, err)
	}

	entry := &catalog.CatalogEntry{
		Product: catalog.Product{
			ID:          id,
			Title:       pd.Title,
			Description: pd.Description,
			Price:       price,
		},
		Stock: catalog.StockRecord{ProductID: id},
	}

	stockSnap, err := s.client.Collection(s.stocks).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// The pair write should make this impossible; report count 0
			// rather than failing the read.
			s.logger.Warn().Str("product_id", id).Msg("Product has no stock record")
			return entry, nil
		}
		return nil, fmt.Errorf("firestore get stock %s: %w", id, err)
	}

	var sd stockDoc
	if err := stockSnap.DataTo(&sd); err != nil {
		return nil, fmt.Errorf("firestore stock %s mapping: %w", id, err)
	}
	entry.Stock.Count = sd.Count
	return entry, nil
}

// ListEntries scans both collections and joins them on the product id.
func (s *FirestoreEntryStore) ListEntries(ctx context.Context) ([]catalog.CatalogEntry, error) {
	counts := make(map[string]int)
	stockIter := s.client.Collection(s.stocks).Documents(ctx)
	defer stockIter.Stop()
	for {
		snap, err := stockIter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore list stocks: %w", err)
		}
		var sd stockDoc
		if err := snap.DataTo(&sd); err != nil {
			return nil, fmt.Errorf("firestore stock %s mapping: %w", snap.Ref.ID, err)
		}
		counts[snap.Ref.ID] = sd.Count
	}

	var entries []catalog.CatalogEntry
	productIter := s.client.Collection(s.products).Documents(ctx)
	defer productIter.Stop()
	for {
		snap, err := productIter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore list products: %w", err)
		}
		var pd productDoc
		if err := snap.DataTo(&pd); err != nil {
			return nil, fmt.Errorf("firestore product %s mapping: %w", snap.Ref.ID, err)
		}
		price, err := decimal.NewFromString(pd.Price)
		if err != nil {
			return nil, fmt.Errorf("firestore product %s has unparseable price %q: %w", snap.Ref.ID, pd.Price, err)
		}
		entries = append(entries, catalog.CatalogEntry{
			Product: catalog.Product{
				ID:          snap.Ref.ID,
				Title:       pd.Title,
				Description: pd.Description,
				Price:       price,
			},
			Stock: catalog.StockRecord{
				ProductID: snap.Ref.ID,
				Count:     counts[snap.Ref.ID],
			},
		})
	}
	return entries, nil
}

// Close is a no-op: the Firestore client is injected and owned by the caller.
func (s *FirestoreEntryStore) Close() error {
	return nil
}
