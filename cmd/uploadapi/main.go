package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/illmade-knight/go-catalog/pkg/config"
	"github.com/illmade-knight/go-catalog/pkg/uploads"
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
	log.Info().Str("bucket", cfg.Storage.Bucket).Str("listen_addr", cfg.Uploads.ListenAddr).
		Msg("Configuration loaded")

	// 3. Connect to storage
	ctx := context.Background()
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer storageClient.Close()

	// 4. Build the issuer and its endpoint
	issuer, err := uploads.NewSignedURLIssuer(storageClient.Bucket(cfg.Storage.Bucket), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create upload URL issuer")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/uploads", uploads.Handler(issuer, log.Logger))
	server := &http.Server{Addr: cfg.Uploads.ListenAddr, Handler: mux}

	// 5. Serve until signalled
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Upload API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("Upload API stopped")
}
