package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/illmade-knight/go-catalog/pkg/config"
	"github.com/illmade-knight/go-catalog/pkg/dedupe"
	"github.com/illmade-knight/go-catalog/pkg/ingest"
	"github.com/illmade-knight/go-catalog/pkg/pipeline"
)

func main() {
	// 1. Setup logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// 2. Parse flags and load configuration
	configFile := flag.String("config", "pipeline.yaml", "Pipeline configuration file")
	workers := flag.Int("workers", 2, "Number of concurrent file workers")
	flag.Parse()

	cfg, err := config.LoadPipelineConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load pipeline configuration")
	}
	log.Info().Str("bucket", cfg.Storage.Bucket).
		Str("event_subscription", cfg.Messaging.StorageEventSubscription).
		Str("work_topic", cfg.Messaging.WorkTopic).
		Msg("Configuration loaded")

	ctx := context.Background()

	// 3. Connect to storage and messaging
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer storageClient.Close()

	consumer, err := pipeline.NewGooglePubsubConsumer(ctx, &pipeline.GooglePubsubConsumerConfig{
		ProjectID:              cfg.ProjectID,
		SubscriptionID:         cfg.Messaging.StorageEventSubscription,
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage event consumer")
	}

	publisher, err := ingest.NewGoogleRowPublisher(ctx, &ingest.GoogleRowPublisherConfig{
		ProjectID: cfg.ProjectID,
		TopicID:   cfg.Messaging.WorkTopic,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create work queue publisher")
	}

	// 4. Dedupe registry: Redis when configured, in-memory otherwise
	var registry dedupe.Registry
	if cfg.Dedupe.RedisAddr != "" {
		registry, err = dedupe.NewRedisRegistry(ctx, &dedupe.RedisConfig{
			Addr:   cfg.Dedupe.RedisAddr,
			KeyTTL: time.Duration(cfg.Dedupe.KeyTTL),
		}, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to dedupe registry")
		}
	} else {
		log.Warn().Msg("No Redis address configured, dedupe is per-process only")
		registry = dedupe.NewInMemoryRegistry()
	}
	defer registry.Close()

	// 5. Assemble and run the ingest service
	service, err := ingest.NewService(
		ingest.ServiceConfig{NumWorkers: *workers},
		consumer,
		ingest.NewGCSObjectStore(storageClient),
		publisher,
		registry,
		log.Logger,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ingest service")
	}
	if err := service.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start ingest service")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutdown signal received")

	service.Stop()
	log.Info().Msg("Ingestor stopped")
}
