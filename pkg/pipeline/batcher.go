package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-catalog/pkg/types"
)

// BatcherConfig holds the batch tuning parameters: a batch is handed off when
// it reaches BatchSize messages or when FlushTimeout elapses with a non-empty
// batch, whichever comes first.
type BatcherConfig struct {
	BatchSize    int
	FlushTimeout time.Duration
	// HandlerTimeout bounds a single handler invocation. Defaults to 30s.
	HandlerTimeout time.Duration
}

// Batcher collects consumed messages into bounded batches and hands each
// batch to a BatchHandler. Handling is sequential: at most one handler
// invocation runs at a time, which keeps outcome aggregation and the
// one-notification-per-batch guarantee simple.
type Batcher struct {
	config       BatcherConfig
	handler      BatchHandler
	logger       zerolog.Logger
	inputChan    chan types.ConsumedMessage
	wg           sync.WaitGroup
	shutdownCtx  context.Context
	shutdownFunc context.CancelFunc
}

// NewBatcher creates a Batcher for the given handler.
func NewBatcher(config BatcherConfig, handler BatchHandler, logger zerolog.Logger) *Batcher {
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownFunc := context.WithCancel(context.Background())
	return &Batcher{
		config:       config,
		handler:      handler,
		logger:       logger.With().Str("component", "Batcher").Logger(),
		inputChan:    make(chan types.ConsumedMessage, config.BatchSize*2),
		shutdownCtx:  shutdownCtx,
		shutdownFunc: shutdownFunc,
	}
}

// Input returns the channel to which consumed messages should be sent.
func (b *Batcher) Input() chan<- types.ConsumedMessage {
	return b.inputChan
}

// Start begins the batching worker.
func (b *Batcher) Start() {
	b.logger.Info().
		Int("batch_size", b.config.BatchSize).
		Dur("flush_timeout", b.config.FlushTimeout).
		Msg("Starting Batcher worker...")
	b.wg.Add(1)
	go b.worker()
}

// Stop shuts the Batcher down, flushing any buffered messages first.
func (b *Batcher) Stop() {
	b.logger.Info().Msg("Stopping Batcher...")
	b.shutdownFunc()
	close(b.inputChan)
	b.wg.Wait()
	b.logger.Info().Msg("Batcher stopped.")
}

// worker collects messages and flushes by size or timer.
func (b *Batcher) worker() {
	defer b.wg.Done()
	batch := make([]types.ConsumedMessage, 0, b.config.BatchSize)
	ticker := time.NewTicker(b.config.FlushTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-b.shutdownCtx.Done():
			b.drainAndFlush(batch)
			return

		case msg, ok := <-b.inputChan:
			if !ok {
				b.flush(batch)
				return
			}
			batch = append(batch, msg)
			if len(batch) >= b.config.BatchSize {
				b.flush(batch)
				batch = make([]types.ConsumedMessage, 0, b.config.BatchSize)
				// The next batch gets a full timeout window, not the
				// remainder of the previous tick.
				ticker.Reset(b.config.FlushTimeout)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(batch)
				batch = make([]types.ConsumedMessage, 0, b.config.BatchSize)
			}
		}
	}
}

// drainAndFlush empties whatever is already buffered on the input channel
// into the final batch so no accepted message is dropped on shutdown.
func (b *Batcher) drainAndFlush(batch []types.ConsumedMessage) {
	for {
		select {
		case msg, ok := <-b.inputChan:
			if !ok {
				b.flush(batch)
				return
			}
			batch = append(batch, msg)
		default:
			b.flush(batch)
			return
		}
	}
}

func (b *Batcher) flush(batch []types.ConsumedMessage) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.config.HandlerTimeout)
	defer cancel()

	b.logger.Debug().Int("batch_size", len(batch)).Msg("Dispatching batch to handler")
	b.handler(ctx, batch)
}
