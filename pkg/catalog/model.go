package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RawRecord is one row of an uploaded catalog file, or the decoded body of
// one queued message. It only exists between parsing and persistence.
type RawRecord struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Count       int             `json:"count"`
}

// Validate checks the field constraints shared by the file parser and the
// batch processor: a non-empty title, a strictly positive price and a
// non-negative count.
func (r RawRecord) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRecord)
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("%w: price must be greater than zero, got %s", ErrInvalidRecord, r.Price)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: count must not be negative, got %d", ErrInvalidRecord, r.Count)
	}
	return nil
}

// Product is the persisted catalog item. ID is generated once and never
// reused; the price is carried as an exact decimal, never a binary float.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// StockRecord holds the available count for one product. It shares the
// product's generated id and is only ever written together with it.
type StockRecord struct {
	ProductID string `json:"product_id"`
	Count     int    `json:"count"`
}

// CatalogEntry is the atomic persistence unit: a Product paired with its
// StockRecord. Partial pairs must never be observable in the record store.
type CatalogEntry struct {
	Product Product     `json:"product"`
	Stock   StockRecord `json:"stock"`
}

// NewCatalogEntry builds an entry from a validated RawRecord and a freshly
// generated id.
func NewCatalogEntry(id string, r RawRecord) CatalogEntry {
	return CatalogEntry{
		Product: Product{
			ID:          id,
			Title:       r.Title,
			Description: r.Description,
			Price:       r.Price,
		},
		Stock: StockRecord{
			ProductID: id,
			Count:     r.Count,
		},
	}
}

// FailureReason classifies why a single queued record could not be persisted.
type FailureReason string

const (
	// ReasonMalformedMessage marks a queue body that could not be decoded
	// into a valid RawRecord.
	ReasonMalformedMessage FailureReason = "MalformedMessage"
	// ReasonPersistenceError marks a record whose atomic store write failed.
	ReasonPersistenceError FailureReason = "PersistenceError"
)

// RecordFailure is the terminal state of one message that did not make it
// into the record store during a batch.
type RecordFailure struct {
	MessageID string        `json:"message_id"`
	Reason    FailureReason `json:"reason"`
	Detail    string        `json:"detail,omitempty"`
}

// BatchOutcome aggregates one Batch Processor invocation: the ordered
// successfully persisted entries and the per-record failures. It lives only
// long enough to build the downstream notifications and the archived report.
type BatchOutcome struct {
	BatchID   string          `json:"batch_id"`
	Successes []CatalogEntry  `json:"successes"`
	Failures  []RecordFailure `json:"failures"`
}

// Size returns the number of records the batch accounted for. It always
// equals the delivered batch size: every message ends up on exactly one side.
func (o BatchOutcome) Size() int {
	return len(o.Successes) + len(o.Failures)
}

// MaxPrice returns the highest price among the batch's successes, for use as
// the representative filterable attribute on the success notification. The
// boolean is false when the batch had no successes.
func (o BatchOutcome) MaxPrice() (decimal.Decimal, bool) {
	if len(o.Successes) == 0 {
		return decimal.Decimal{}, false
	}
	max := o.Successes[0].Product.Price
	for _, e := range o.Successes[1:] {
		if e.Product.Price.GreaterThan(max) {
			max = e.Product.Price
		}
	}
	return max, true
}
