package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Service wires a MessageConsumer to a Batcher: messages flow from the
// broker, through the consumer's channel, into the batcher, and on to the
// batch handler. One Service instance is one independently invocable
// pipeline stage; the platform scales by running more instances.
type Service struct {
	consumer     MessageConsumer
	batcher      *Batcher
	logger       zerolog.Logger
	wg           sync.WaitGroup
	shutdownCtx  context.Context
	shutdownFunc context.CancelFunc
}

// NewService creates a Service from a consumer and a batcher.
func NewService(consumer MessageConsumer, batcher *Batcher, logger zerolog.Logger) *Service {
	shutdownCtx, shutdownFunc := context.WithCancel(context.Background())
	return &Service{
		consumer:     consumer,
		batcher:      batcher,
		logger:       logger.With().Str("service", "PipelineService").Logger(),
		shutdownCtx:  shutdownCtx,
		shutdownFunc: shutdownFunc,
	}
}

// Start begins the batcher, then the consumer, then the forwarding loop.
func (s *Service) Start() error {
	s.logger.Info().Msg("Starting pipeline service...")

	s.batcher.Start()

	if err := s.consumer.Start(s.shutdownCtx); err != nil {
		s.batcher.Stop()
		return fmt.Errorf("failed to start message consumer: %w", err)
	}

	s.wg.Add(1)
	go s.forward()

	s.logger.Info().Msg("Pipeline service started.")
	return nil
}

// forward moves messages from the consumer to the batcher. A single
// forwarding goroutine preserves delivery order into the batch.
func (s *Service) forward() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				s.logger.Info().Msg("Consumer channel closed, forwarder exiting.")
				return
			}
			select {
			case s.batcher.Input() <- msg:
			case <-s.shutdownCtx.Done():
				s.logger.Warn().Str("msg_id", msg.ID).Msg("Shutdown in progress, Nacking message.")
				if msg.Nack != nil {
					msg.Nack()
				}
				return
			}
		}
	}
}

// Stop shuts the stage down in order: consumer first so no new messages
// arrive, then the forwarder, then the batcher so the final batch flushes.
func (s *Service) Stop() {
	s.logger.Info().Msg("Stopping pipeline service...")

	if err := s.consumer.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Error stopping consumer")
	}
	<-s.consumer.Done()

	s.shutdownFunc()
	s.wg.Wait()

	s.batcher.Stop()
	s.logger.Info().Msg("Pipeline service stopped.")
}
