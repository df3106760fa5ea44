package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// RowPublisher sends parsed rows to the work queue. Publishes may be
// buffered; Flush blocks until every accepted row has been confirmed by the
// queue, which is what lets the ingestor relocate the source file only after
// all of its rows are durably enqueued.
type RowPublisher interface {
	Publish(ctx context.Context, body []byte, attributes map[string]string)
	Flush(ctx context.Context) error
	Stop()
}

// GoogleRowPublisherConfig holds configuration for the work queue publisher.
type GoogleRowPublisherConfig struct {
	ProjectID     string
	TopicID       string
	ClientOptions []option.ClientOption
}

// GoogleRowPublisher implements RowPublisher on a Pub/Sub topic, relying on
// the client's batching to amortize publishes across a file's rows.
type GoogleRowPublisher struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	logger  zerolog.Logger
	mu      sync.Mutex
	pending []*pubsub.PublishResult
}

// NewGoogleRowPublisher creates a publisher with its own Pub/Sub client.
func NewGoogleRowPublisher(ctx context.Context, cfg *GoogleRowPublisherConfig, logger zerolog.Logger) (*GoogleRowPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	topic := client.Topic(cfg.TopicID)
	topic.PublishSettings.DelayThreshold = 50 * time.Millisecond
	topic.PublishSettings.CountThreshold = 100
	topic.PublishSettings.Timeout = 60 * time.Second

	logger.Info().Str("project_id", cfg.ProjectID).Str("topic_id", cfg.TopicID).Msg("GoogleRowPublisher initialized")
	return &GoogleRowPublisher{
		client: client,
		topic:  topic,
		logger: logger.With().Str("component", "GoogleRowPublisher").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

func (p *GoogleRowPublisher) Publish(ctx context.Context, body []byte, attributes map[string]string) {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       body,
		Attributes: attributes,
	})
	p.mu.Lock()
	p.pending = append(p.pending, result)
	p.mu.Unlock()
}

// Flush waits for every outstanding publish. The first failure is combined
// with any others and returned; the pending list is cleared either way.
func (p *GoogleRowPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	var combinedErr error
	for _, result := range pending {
		if _, err := result.Get(ctx); err != nil {
			if combinedErr == nil {
				combinedErr = err
			} else {
				combinedErr = fmt.Errorf("%v; %w", combinedErr, err)
			}
		}
	}
	if combinedErr != nil {
		return fmt.Errorf("flush row publishes: %w", combinedErr)
	}
	return nil
}

// Stop flushes the topic and closes the client.
func (p *GoogleRowPublisher) Stop() {
	p.logger.Info().Msg("Stopping GoogleRowPublisher...")
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Error closing Pub/Sub client")
		}
	}
	p.logger.Info().Msg("GoogleRowPublisher stopped.")
}

var _ RowPublisher = (*GoogleRowPublisher)(nil)
