package notify

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GooglePubsubPublisherConfig holds configuration for the Pub/Sub notification
// publisher.
type GooglePubsubPublisherConfig struct {
	ProjectID     string
	TopicID       string
	ClientOptions []option.ClientOption
}

// LoadGooglePubsubPublisherConfigFromEnv loads publisher configuration. The
// topic id is read from the environment variable named by topicIDVar so the
// same loader serves every outbound topic.
func LoadGooglePubsubPublisherConfigFromEnv(topicIDVar string) (*GooglePubsubPublisherConfig, error) {
	cfg := &GooglePubsubPublisherConfig{
		ProjectID: os.Getenv("GCP_PROJECT_ID"),
		TopicID:   os.Getenv(topicIDVar),
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP_PROJECT_ID environment variable not set for Pub/Sub")
	}
	if cfg.TopicID == "" {
		return nil, fmt.Errorf("%s environment variable not set for Pub/Sub", topicIDVar)
	}
	if credentialsFile := os.Getenv("GCP_PUBSUB_CREDENTIALS_FILE"); credentialsFile != "" {
		cfg.ClientOptions = []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
	}
	return cfg, nil
}

// GooglePubsubPublisher implements Publisher on a Google Cloud Pub/Sub topic.
// Publishes are confirmed synchronously: the batch processor must know the
// notification was accepted before it settles the batch.
type GooglePubsubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewGooglePubsubPublisher creates a publisher with its own Pub/Sub client.
func NewGooglePubsubPublisher(ctx context.Context, cfg *GooglePubsubPublisherConfig, logger zerolog.Logger) (*GooglePubsubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	topic := client.Topic(cfg.TopicID)

	logger.Info().Str("project_id", cfg.ProjectID).Str("topic_id", cfg.TopicID).Msg("GooglePubsubPublisher initialized")
	return &GooglePubsubPublisher{
		client: client,
		topic:  topic,
		logger: logger.With().Str("component", "GooglePubsubPublisher").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Publish sends the notification, folding the subject into the message
// attributes, and waits for the server's confirmation.
func (p *GooglePubsubPublisher) Publish(ctx context.Context, n Notification) error {
	if n.Body == nil {
		return errors.New("cannot publish a nil notification body")
	}

	attributes := make(map[string]string, len(n.Attributes)+1)
	for k, v := range n.Attributes {
		attributes[k] = v
	}
	attributes["subject"] = n.Subject

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       n.Body,
		Attributes: attributes,
	})

	msgID, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish notification %q: %w", n.Subject, err)
	}
	p.logger.Debug().Str("message_id", msgID).Str("subject", n.Subject).Msg("Notification published")
	return nil
}

// Stop flushes the topic and closes the client.
func (p *GooglePubsubPublisher) Stop() {
	p.logger.Info().Msg("Stopping GooglePubsubPublisher...")
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Error closing Pub/Sub client")
		}
	}
	p.logger.Info().Msg("GooglePubsubPublisher stopped.")
}
