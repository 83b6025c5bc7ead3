/**
 * CCCD Extraction Worker - Main Entry Point
 *
 * Go worker that extracts identity data from Vietnamese citizen identity cards.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed extraction queue
 * - QR-first pipeline: decode at increasing scales, parse the pipe-delimited payload
 * - OCR fallback: direct text recognition or detector-guided field extraction
 * - PostgreSQL persistence for extraction results (optional)
 * - Redis job status hashes and pub/sub events
 * - HTTP API for synchronous extraction, job submission and Prometheus metrics
 */

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/HenSanInDuty/ocr-cccd/internal/api"
	"github.com/HenSanInDuty/ocr-cccd/internal/app"
	"github.com/HenSanInDuty/ocr-cccd/internal/config"
	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
	"github.com/HenSanInDuty/ocr-cccd/internal/metrics"
	"github.com/HenSanInDuty/ocr-cccd/internal/queue"
	"github.com/HenSanInDuty/ocr-cccd/internal/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(".env.cccd"); err != nil {
		log.Printf("Warning: .env.cccd not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	log.Printf("CCCD Extraction Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Queue=%s, Detector=%s, OCR=%s, Workers=%d",
		cfg.RedisURL, cfg.QueueName, cfg.DetectorURL, cfg.OCRBackend, cfg.WorkerConcurrency)

	// Metrics registry (process and Go runtime collectors included)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Build the extraction pipeline
	log.Printf("Initializing extraction pipeline (scales=%v, fallback=%s)...", cfg.QRScales, cfg.FallbackMode)
	components, err := app.Build(cfg, m)
	if err != nil {
		log.Fatalf("Failed to initialize extraction pipeline: %v", err)
	}
	defer components.Close()
	log.Printf("Extraction pipeline initialized")

	healthChecks := map[string]api.HealthCheck{
		"detector": components.CheckDetector,
	}
	if cfg.OCRBackend == config.OCRBackendService {
		healthChecks["ocr"] = components.CheckRecognizer
	}
	stats := map[string]api.StatsSource{}

	// Optional PostgreSQL persistence
	var store queue.ResultStore
	var db *storage.PostgresClient
	if cfg.DatabaseURL != "" {
		log.Printf("Connecting to PostgreSQL...")
		db, err = storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to ensure database schema: %v", err)
		}
		store = db
		healthChecks["postgres"] = db.Ping
		stats["database"] = func(context.Context) (interface{}, error) {
			return db.GetStats(), nil
		}
		log.Printf("PostgreSQL initialized")
	} else {
		log.Printf("DATABASE_URL not set, extraction results will not be persisted")
	}

	// Job status events
	log.Printf("Connecting to Redis...")
	events, err := queue.NewEventPublisher(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}
	healthChecks["redis"] = events.Ping
	stats["jobs"] = func(ctx context.Context) (interface{}, error) {
		return events.GetStats(ctx)
	}

	enqueuer, err := queue.NewEnqueuer(cfg.RedisURL, cfg.QueueName, cfg.ProcessingTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize enqueuer: %v", err)
	}

	// Queue consumer
	handler, err := queue.NewHandler(&queue.HandlerConfig{
		Extractor:         components.Pipeline,
		Detector:          components.RegionDetector(),
		Store:             store,
		Publisher:         events,
		Metrics:           m,
		ProcessingTimeout: cfg.ProcessingTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize task handler: %v", err)
	}

	queueConsumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.QueueName,
		Concurrency: cfg.WorkerConcurrency,
		Handler:     handler,
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := queueConsumer.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}
	log.Printf("Queue consumer started successfully")
	stats["queue"] = func(context.Context) (interface{}, error) {
		return queueConsumer.GetStatistics(), nil
	}

	// HTTP API
	apiHandler, err := api.New(api.Config{
		Extractor:    components.Pipeline,
		Detector:     components.RegionDetector(),
		Queue:        enqueuer,
		Jobs:         events,
		Publisher:    events,
		Stats:        stats,
		Gatherer:     registry,
		HealthChecks: healthChecks,
		MaxImageSize: cfg.MaxImageSize,
		Timeout:      cfg.ProcessingTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize HTTP API: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Print startup summary
	log.Printf("===========================================")
	log.Printf("CCCD Extraction Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.QueueName)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("HTTP: %s", cfg.HTTPAddr)
	log.Printf("QR scales: %v (retry on decode error: %t)", cfg.QRScales, cfg.QRRetryOnDecodeError)
	log.Printf("Fallback: %s", cfg.FallbackMode)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for shutdown signal
	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Printf("Stopping HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}

	if err := queueConsumer.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	if err := enqueuer.Close(); err != nil {
		log.Printf("Error closing enqueuer: %v", err)
	}
	if err := events.Close(); err != nil {
		log.Printf("Error closing event publisher: %v", err)
	}

	if db != nil {
		log.Printf("Closing PostgreSQL...")
		if err := db.Close(); err != nil {
			log.Printf("Error closing PostgreSQL: %v", err)
		} else {
			log.Printf("PostgreSQL closed")
		}
	}

	log.Printf("Shutdown complete")
}
