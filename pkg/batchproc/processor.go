package batchproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
	"github.com/illmade-knight/go-catalog/pkg/notify"
	"github.com/illmade-knight/go-catalog/pkg/productstore"
	"github.com/illmade-knight/go-catalog/pkg/types"
)

// Notification subjects.
const (
	SubjectCreated = "Products Created Successfully"
	SubjectFailed  = "Error Creating Products"
)

// OutcomeArchiver persists one batch's outcome report. Archiving is best
// effort; failures are logged and never change the batch's result.
type OutcomeArchiver interface {
	ArchiveOutcome(ctx context.Context, outcome catalog.BatchOutcome) error
}

// Processor handles one delivered batch at a time: it decodes and persists
// each record independently, aggregates the outcome, and publishes the
// batch's notifications. Its HandleBatch method is a pipeline.BatchHandler.
type Processor struct {
	store     productstore.EntryStore
	publisher notify.Publisher
	archiver  OutcomeArchiver // optional
	logger    zerolog.Logger
	// newID is swapped in tests for deterministic ids.
	newID func() string
}

// NewProcessor creates a batch processor. The archiver may be nil.
func NewProcessor(store productstore.EntryStore, publisher notify.Publisher, archiver OutcomeArchiver, logger zerolog.Logger) (*Processor, error) {
	if store == nil {
		return nil, errors.New("entry store cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("notification publisher cannot be nil")
	}
	return &Processor{
		store:     store,
		publisher: publisher,
		archiver:  archiver,
		logger:    logger.With().Str("component", "BatchProcessor").Logger(),
		newID:     uuid.NewString,
	}, nil
}

// queuedRecord is the wire shape of one work queue body. Pointer fields
// distinguish absent from zero-valued.
type queuedRecord struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Count       *int             `json:"count"`
}

// HandleBatch processes one batch sequentially and settles every message.
// Settlement policy: if at least one record succeeded the whole batch is
// acked, with failures surfaced through the failure notification and logs;
// if zero records succeeded everything is nacked so the platform redelivers
// the batch.
func (p *Processor) HandleBatch(ctx context.Context, batch []types.ConsumedMessage) {
	outcome := p.ProcessBatch(ctx, batch)

	p.publishNotifications(ctx, outcome)

	if p.archiver != nil {
		if err := p.archiver.ArchiveOutcome(ctx, outcome); err != nil {
			p.logger.Error().Err(err).Str("batch_id", outcome.BatchID).Msg("Failed to archive batch outcome")
		}
	}

	if len(outcome.Successes) > 0 {
		for _, msg := range batch {
			if msg.Ack != nil {
				msg.Ack()
			}
		}
	} else {
		p.logger.Warn().Str("batch_id", outcome.BatchID).Int("batch_size", len(batch)).
			Msg("No records succeeded, Nacking whole batch for redelivery")
		for _, msg := range batch {
			if msg.Nack != nil {
				msg.Nack()
			}
		}
	}
}

// ProcessBatch runs the per-record state machine over one batch and returns
// the aggregated outcome. Each record is independent: one bad message never
// aborts the rest, and successes plus failures always account for every
// delivered message.
func (p *Processor) ProcessBatch(ctx context.Context, batch []types.ConsumedMessage) catalog.BatchOutcome {
	outcome := catalog.BatchOutcome{BatchID: p.newID()}

	for _, msg := range batch {
		record, err := decodeRecord(msg.Payload)
		if err != nil {
			p.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Malformed queue message")
			outcome.Failures = append(outcome.Failures, catalog.RecordFailure{
				MessageID: msg.ID,
				Reason:    catalog.ReasonMalformedMessage,
				Detail:    err.Error(),
			})
			continue
		}

		entry := catalog.NewCatalogEntry(p.newID(), record)
		if err := p.store.CreateEntry(ctx, entry); err != nil {
			p.logger.Error().Err(err).Str("msg_id", msg.ID).Str("product_id", entry.Product.ID).
				Msg("Failed to persist catalog entry")
			outcome.Failures = append(outcome.Failures, catalog.RecordFailure{
				MessageID: msg.ID,
				Reason:    catalog.ReasonPersistenceError,
				Detail:    err.Error(),
			})
			continue
		}

		p.logger.Debug().Str("product_id", entry.Product.ID).Msg("Catalog entry created")
		outcome.Successes = append(outcome.Successes, entry)
	}

	p.logger.Info().
		Str("batch_id", outcome.BatchID).
		Int("batch_size", len(batch)).
		Int("succeeded", len(outcome.Successes)).
		Int("failed", len(outcome.Failures)).
		Msg("Batch processed")
	return outcome
}

// decodeRecord turns one queue body into a validated RawRecord.
func decodeRecord(payload []byte) (catalog.RawRecord, error) {
	var qr queuedRecord
	if err := json.Unmarshal(payload, &qr); err != nil {
		return catalog.RawRecord{}, fmt.Errorf("%w: %v", catalog.ErrInvalidRecord, err)
	}
	if qr.Title == nil || qr.Price == nil || qr.Count == nil {
		return catalog.RawRecord{}, fmt.Errorf("%w: required fields absent", catalog.ErrInvalidRecord)
	}
	record := catalog.RawRecord{
		Title: *qr.Title,
		Price: *qr.Price,
		Count: *qr.Count,
	}
	if qr.Description != nil {
		record.Description = *qr.Description
	}
	if err := record.Validate(); err != nil {
		return catalog.RawRecord{}, err
	}
	return record, nil
}

// publishNotifications emits the batch's downstream messages: exactly one
// success notification when anything succeeded, and one separate failure
// notification when anything failed. Neither blocks or replaces the other;
// a bus error is logged because the records themselves are already durable.
func (p *Processor) publishNotifications(ctx context.Context, outcome catalog.BatchOutcome) {
	if len(outcome.Successes) > 0 {
		n, err := successNotification(outcome)
		if err != nil {
			p.logger.Error().Err(err).Str("batch_id", outcome.BatchID).Msg("Failed to build success notification")
		} else if err := p.publisher.Publish(ctx, n); err != nil {
			p.logger.Error().Err(err).Str("batch_id", outcome.BatchID).Msg("Failed to publish success notification")
		}
	}
	if len(outcome.Failures) > 0 {
		n, err := failureNotification(outcome)
		if err != nil {
			p.logger.Error().Err(err).Str("batch_id", outcome.BatchID).Msg("Failed to build failure notification")
		} else if err := p.publisher.Publish(ctx, n); err != nil {
			p.logger.Error().Err(err).Str("batch_id", outcome.BatchID).Msg("Failed to publish failure notification")
		}
	}
}

// notifiedProduct is the flattened catalog entry carried in the success
// notification body.
type notifiedProduct struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Count       int             `json:"count"`
}

func successNotification(outcome catalog.BatchOutcome) (notify.Notification, error) {
	products := make([]notifiedProduct, 0, len(outcome.Successes))
	for _, entry := range outcome.Successes {
		products = append(products, notifiedProduct{
			ID:          entry.Product.ID,
			Title:       entry.Product.Title,
			Description: entry.Product.Description,
			Price:       entry.Product.Price,
			Count:       entry.Stock.Count,
		})
	}
	body, err := json.Marshal(struct {
		Message  string            `json:"message"`
		BatchID  string            `json:"batch_id"`
		Products []notifiedProduct `json:"products"`
	}{
		Message:  "Products were successfully created",
		BatchID:  outcome.BatchID,
		Products: products,
	})
	if err != nil {
		return notify.Notification{}, err
	}

	attributes := map[string]string{
		"product_count": strconv.Itoa(len(products)),
	}
	// A representative price lets subscribers apply numeric threshold
	// filters, e.g. routing high-value batches separately.
	if maxPrice, ok := outcome.MaxPrice(); ok {
		attributes["price"] = maxPrice.String()
	}

	return notify.Notification{
		Subject:    SubjectCreated,
		Body:       body,
		Attributes: attributes,
	}, nil
}

func failureNotification(outcome catalog.BatchOutcome) (notify.Notification, error) {
	body, err := json.Marshal(struct {
		Message      string                  `json:"message"`
		BatchID      string                  `json:"batch_id"`
		FailureCount int                     `json:"failure_count"`
		Failures     []catalog.RecordFailure `json:"failures"`
	}{
		Message:      "Some records could not be processed",
		BatchID:      outcome.BatchID,
		FailureCount: len(outcome.Failures),
		Failures:     outcome.Failures,
	})
	if err != nil {
		return notify.Notification{}, err
	}

	return notify.Notification{
		Subject: SubjectFailed,
		Body:    body,
		Attributes: map[string]string{
			"failure_count": strconv.Itoa(len(outcome.Failures)),
		},
	}, nil
}
