package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-catalog/pkg/dedupe"
	"github.com/illmade-knight/go-catalog/pkg/pipeline"
	"github.com/illmade-knight/go-catalog/pkg/types"
	"github.com/illmade-knight/go-catalog/pkg/uploads"
)

// ParsedPrefix is the namespace processed files are relocated to.
const ParsedPrefix = "parsed/"

// Message attributes attached to each published row.
const (
	AttrSourceObject = "source_object"
	AttrDedupeKey    = "dedupe_key"
)

// Summary reports what one file ingestion did.
type Summary struct {
	Published  int
	Malformed  int
	Duplicates int
	Relocated  bool
}

// ServiceConfig holds the ingest service's settings.
type ServiceConfig struct {
	// NumWorkers is how many upload events are processed concurrently.
	// Concurrency is across files; within one file, rows stay ordered.
	NumWorkers int
}

// Service is the File Ingestor: it consumes object-created events, converts
// each uploaded file into a stream of validated work items, and relocates
// the file so it is not reprocessed.
type Service struct {
	config    ServiceConfig
	consumer  pipeline.MessageConsumer
	store     ObjectStore
	publisher RowPublisher
	registry  dedupe.Registry
	logger    zerolog.Logger

	wg           sync.WaitGroup
	shutdownCtx  context.Context
	shutdownFunc context.CancelFunc
}

// NewService creates the ingest service. All collaborators are injected; the
// service owns none of their lifecycles except the worker pool it starts.
func NewService(
	config ServiceConfig,
	consumer pipeline.MessageConsumer,
	store ObjectStore,
	publisher RowPublisher,
	registry dedupe.Registry,
	logger zerolog.Logger,
) (*Service, error) {
	if consumer == nil {
		return nil, errors.New("message consumer cannot be nil")
	}
	if store == nil {
		return nil, errors.New("object store cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("row publisher cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("dedupe registry cannot be nil")
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = 2
	}
	shutdownCtx, shutdownFunc := context.WithCancel(context.Background())
	return &Service{
		config:       config,
		consumer:     consumer,
		store:        store,
		publisher:    publisher,
		registry:     registry,
		logger:       logger.With().Str("service", "IngestService").Logger(),
		shutdownCtx:  shutdownCtx,
		shutdownFunc: shutdownFunc,
	}, nil
}

// Start begins consuming upload events.
func (s *Service) Start() error {
	s.logger.Info().Int("worker_count", s.config.NumWorkers).Msg("Starting ingest service...")
	if err := s.consumer.Start(s.shutdownCtx); err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}
	for i := 0; i < s.config.NumWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info().Msg("Ingest service started.")
	return nil
}

func (s *Service) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				return
			}
			s.handleEvent(msg)
		}
	}
}

// handleEvent settles one notification message: ack for events we handled or
// deliberately ignored, nack for processing failures so the platform
// redelivers and the object stays in uploaded/.
func (s *Service) handleEvent(msg types.ConsumedMessage) {
	event, process, err := ParseStorageEvent(msg)
	if err != nil {
		s.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Dropping malformed storage notification")
		if msg.Ack != nil {
			msg.Ack()
		}
		return
	}
	if !process {
		s.logger.Debug().Str("object", event.Object).Msg("Ignoring event outside the upload namespace")
		if msg.Ack != nil {
			msg.Ack()
		}
		return
	}

	summary, err := s.ProcessObject(s.shutdownCtx, event.Bucket, event.Object)
	if err != nil {
		s.logger.Error().Err(err).Str("object", event.Object).Msg("File ingestion failed, Nacking event")
		if msg.Nack != nil {
			msg.Nack()
		}
		return
	}

	s.logger.Info().
		Str("object", event.Object).
		Int("published", summary.Published).
		Int("malformed", summary.Malformed).
		Int("duplicates", summary.Duplicates).
		Msg("File ingested")
	if msg.Ack != nil {
		msg.Ack()
	}
}

// ProcessObject ingests one uploaded file: stream-parse, publish every valid
// non-duplicate row, then relocate the object to parsed/. A file-level error
// leaves the object in place and publishes nothing beyond what the queue has
// already accepted; redelivery is safe because rows carry stable dedupe keys.
func (s *Service) ProcessObject(ctx context.Context, bucket, object string) (*Summary, error) {
	reader, err := s.store.NewReader(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	rows, err := NewRowReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse %s/%s: %w", bucket, object, err)
	}

	summary := &Summary{}
	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			summary.Malformed++
			s.logger.Warn().Err(rowErr).Str("object", object).Int("line", rowErr.Line).Msg("Dropping malformed row")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s/%s: %w", bucket, object, err)
		}

		key := dedupe.RowKey(bucket, object, row.Raw)
		first, err := s.registry.FirstSeen(ctx, key)
		if err != nil {
			// Registry trouble must not stall ingestion; publish anyway.
			s.logger.Error().Err(err).Str("object", object).Msg("Dedupe registry lookup failed, treating row as first seen")
			first = true
		}
		if !first {
			summary.Duplicates++
			s.logger.Debug().Str("object", object).Int("line", row.Line).Msg("Skipping already-enqueued row")
			continue
		}

		body, err := json.Marshal(row.Record)
		if err != nil {
			return nil, fmt.Errorf("encode row %d of %s: %w", row.Line, object, err)
		}
		s.publisher.Publish(ctx, body, map[string]string{
			AttrSourceObject: object,
			AttrDedupeKey:    key,
		})
		summary.Published++
	}

	// Every accepted row must be durably enqueued before the file moves.
	if err := s.publisher.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush rows of %s/%s: %w", bucket, object, err)
	}

	if err := s.relocate(ctx, bucket, object); err != nil {
		return nil, err
	}
	summary.Relocated = true
	return summary, nil
}

// relocate moves the object from uploaded/ to parsed/ by copy then delete.
// Not atomic: a crash in between leaves the object in both places, which the
// dedupe registry makes harmless on reprocessing.
func (s *Service) relocate(ctx context.Context, bucket, object string) error {
	parsedObject := ParsedPrefix + strings.TrimPrefix(object, uploads.UploadPrefix)
	if err := s.store.Copy(ctx, bucket, object, parsedObject); err != nil {
		return fmt.Errorf("relocate copy: %w", err)
	}
	if err := s.store.Delete(ctx, bucket, object); err != nil {
		return fmt.Errorf("relocate delete: %w", err)
	}
	s.logger.Debug().Str("from", object).Str("to", parsedObject).Msg("Source file relocated")
	return nil
}

// Stop shuts the service down: consumer first, then the workers.
func (s *Service) Stop() {
	s.logger.Info().Msg("Stopping ingest service...")
	if err := s.consumer.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Error stopping event consumer")
	}
	<-s.consumer.Done()
	s.shutdownFunc()
	s.wg.Wait()
	s.publisher.Stop()
	s.logger.Info().Msg("Ingest service stopped.")
}
