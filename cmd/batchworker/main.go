package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/illmade-knight/go-catalog/pkg/archive"
	"github.com/illmade-knight/go-catalog/pkg/batchproc"
	"github.com/illmade-knight/go-catalog/pkg/config"
	"github.com/illmade-knight/go-catalog/pkg/notify"
	"github.com/illmade-knight/go-catalog/pkg/pipeline"
	"github.com/illmade-knight/go-catalog/pkg/productstore"
)

func main() {
	// 1. Setup logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// 2. Parse flags and load configuration
	configFile := flag.String("config", "pipeline.yaml", "Pipeline configuration file")
	flag.Parse()

	cfg, err := config.LoadPipelineConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load pipeline configuration")
	}
	log.Info().Str("work_subscription", cfg.Messaging.WorkSubscription).
		Str("notification_topic", cfg.Messaging.NotificationTopic).
		Int("batch_size", cfg.Batching.BatchSize).
		Msg("Configuration loaded")

	ctx := context.Background()

	// 3. Connect to Firestore
	firestoreClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Firestore client")
	}
	defer firestoreClient.Close()

	store, err := productstore.NewFirestoreEntryStore(firestoreClient, &productstore.FirestoreStoreConfig{
		ProjectID:          cfg.ProjectID,
		ProductsCollection: cfg.Catalog.ProductCollection,
		StocksCollection:   cfg.Catalog.StockCollection,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create entry store")
	}

	// 4. Notification publisher
	publisher, err := notify.NewGooglePubsubPublisher(ctx, &notify.GooglePubsubPublisherConfig{
		ProjectID: cfg.ProjectID,
		TopicID:   cfg.Messaging.NotificationTopic,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notification publisher")
	}
	defer publisher.Stop()

	// 5. Outcome report archiver
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer storageClient.Close()

	archiver, err := archive.NewReportUploader(
		archive.NewGCSClientAdapter(storageClient),
		archive.ReportUploaderConfig{
			BucketName:   cfg.Storage.Bucket,
			ObjectPrefix: cfg.Storage.ReportsPrefix,
		},
		log.Logger,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create report uploader")
	}

	// 6. Assemble the batch pipeline
	processor, err := batchproc.NewProcessor(store, publisher, archiver, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create batch processor")
	}

	consumer, err := pipeline.NewGooglePubsubConsumer(ctx, &pipeline.GooglePubsubConsumerConfig{
		ProjectID:              cfg.ProjectID,
		SubscriptionID:         cfg.Messaging.WorkSubscription,
		MaxOutstandingMessages: cfg.Batching.BatchSize * 4,
		NumGoroutines:          2,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create work queue consumer")
	}

	batcher := pipeline.NewBatcher(pipeline.BatcherConfig{
		BatchSize:    cfg.Batching.BatchSize,
		FlushTimeout: time.Duration(cfg.Batching.FlushTimeout),
	}, processor.HandleBatch, log.Logger)

	service := pipeline.NewService(consumer, batcher, log.Logger)
	if err := service.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start batch worker")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutdown signal received")

	service.Stop()
	log.Info().Msg("Batch worker stopped")
}
