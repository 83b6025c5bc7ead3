/**
 * Queue Consumer for the CCCD extraction worker
 *
 * Consumes extract-card tasks from Redis via Asynq, runs the extraction
 * pipeline, persists the result and publishes job status events.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
	"github.com/HenSanInDuty/ocr-cccd/internal/errors"
	"github.com/HenSanInDuty/ocr-cccd/internal/imagesource"
	"github.com/HenSanInDuty/ocr-cccd/internal/metrics"
	"github.com/HenSanInDuty/ocr-cccd/internal/processor"
	"github.com/HenSanInDuty/ocr-cccd/internal/storage"
)

// ResultStore persists extraction results.
type ResultStore interface {
	SaveExtraction(ctx context.Context, rec *storage.ExtractionRecord) (string, error)
}

// HandlerConfig holds task handler configuration
type HandlerConfig struct {
	Extractor         processor.Extractor
	Detector          processor.RegionDetector // optional; region fallback fails its precondition without it
	Store             ResultStore              // optional
	Publisher         StatusPublisher          // optional
	Metrics           *metrics.Metrics
	ProcessingTimeout time.Duration // default: 60s
}

// Handler processes extract-card tasks. It implements asynq.Handler.
type Handler struct {
	extractor processor.Extractor
	detector  processor.RegionDetector
	store     ResultStore
	publisher StatusPublisher
	metrics   *metrics.Metrics
	timeout   time.Duration
}

// NewHandler creates a task handler
func NewHandler(cfg *HandlerConfig) (*Handler, error) {
	if cfg == nil || cfg.Extractor == nil {
		return nil, fmt.Errorf("Extractor is required")
	}
	timeout := cfg.ProcessingTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Handler{
		extractor: cfg.Extractor,
		detector:  cfg.Detector,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		timeout:   timeout,
	}, nil
}

// ProcessTask runs one extraction job. Malformed payloads are not retried;
// timeouts, infrastructure failures and storage failures are.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		h.metrics.IncrementJob(StatusFailed)
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		h.metrics.IncrementJob(StatusFailed)
		return fmt.Errorf("job data has no jobId: %w", asynq.SkipRetry)
	}

	log.Printf("[Job %s] Processing card: variant=%s, mode=%s, front=%d bytes, back=%d bytes",
		payload.JobID, payload.Variant, payload.Mode, len(payload.Front), len(payload.Back))

	h.publish(ctx, payload.JobID, StatusProcessing, nil)

	req, err := h.buildRequest(&payload)
	if err != nil {
		log.Printf("[Job %s] Rejected: %v", payload.JobID, err)
		result := card.FailureResult(err)
		result.Variant = card.CanonicalVariant(payload.Variant)
		if storeErr := h.save(ctx, payload.JobID, result, time.Since(startTime)); storeErr != nil {
			return storeErr
		}
		h.finish(ctx, payload.JobID, result)
		return nil
	}

	// Bound the pipeline run
	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result := h.extractor.Run(processCtx, req)
	duration := time.Since(startTime)

	if processCtx.Err() == context.DeadlineExceeded {
		log.Printf("[Job %s] Processing timed out after %v (timeout: %v)", payload.JobID, duration, h.timeout)
		timeoutErr := errors.NewProcessingTimeoutError(payload.JobID, h.timeout, processCtx.Err())
		h.publish(ctx, payload.JobID, StatusFailed, timeoutErr.ToMap())
		h.metrics.IncrementJob(StatusFailed)
		return fmt.Errorf("processing timeout: %w", timeoutErr)
	}

	if err := h.save(ctx, payload.JobID, result, duration); err != nil {
		return err
	}

	if result.Failure != nil && result.Failure.Code == errors.ErrorInfrastructureFailed {
		log.Printf("[Job %s] Infrastructure failure after %v: %s", payload.JobID, duration, result.Failure.Reason)
		h.publish(ctx, payload.JobID, StatusFailed, result)
		h.metrics.IncrementJob(StatusFailed)
		return fmt.Errorf("extraction failed: %s", result.Failure.Reason)
	}

	log.Printf("[Job %s] Processing finished in %v: kind=%s, scales=%v", payload.JobID, duration, result.Kind, result.ScalesTried)
	h.finish(ctx, payload.JobID, result)
	return nil
}

func (h *Handler) buildRequest(payload *ExtractPayload) (*processor.Request, error) {
	variant, err := card.ParseCardVariant(payload.Variant)
	if err != nil {
		return nil, errors.NewPreconditionError(err.Error())
	}

	req := &processor.Request{
		JobID:    payload.JobID,
		Variant:  variant,
		Detector: h.detector,
	}
	if payload.Mode != "" {
		mode, err := card.ParseFallbackMode(payload.Mode)
		if err != nil {
			return nil, errors.NewPreconditionError(err.Error())
		}
		req.Mode = mode
	}

	if req.Front, err = imagesource.DecodeSide("front", payload.Front); err != nil {
		return nil, err
	}
	if req.Back, err = imagesource.DecodeSide("back", payload.Back); err != nil {
		return nil, err
	}
	return req, nil
}

func (h *Handler) save(ctx context.Context, jobID string, result card.ExtractionResult, elapsed time.Duration) error {
	if h.store == nil {
		return nil
	}
	if _, err := h.store.SaveExtraction(ctx, storage.NewExtractionRecord(jobID, result, elapsed)); err != nil {
		log.Printf("[Job %s] Failed to persist result: %v", jobID, err)
		storageErr := errors.NewStorageFailedError(jobID, err)
		h.publish(ctx, jobID, StatusFailed, storageErr.ToMap())
		h.metrics.IncrementJob(StatusFailed)
		return storageErr
	}
	return nil
}

func (h *Handler) finish(ctx context.Context, jobID string, result card.ExtractionResult) {
	status := StatusCompleted
	if !result.Succeeded() {
		status = StatusFailed
	}
	h.publish(ctx, jobID, status, result)
	h.metrics.IncrementJob(status)
}

func (h *Handler) publish(ctx context.Context, jobID, status string, result interface{}) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.UpdateJobStatus(ctx, jobID, status, result); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to %s: %v", jobID, status, err)
	}
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	config *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Handler     *Handler
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Handler == nil {
		return nil, fmt.Errorf("Handler is required")
	}

	// Parse Redis connection options
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Create Asynq server for task processing
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, payload=%d bytes, error=%v",
					task.Type(), len(task.Payload()), err)
			}),
		},
	)

	// Create multiplexer for task routing
	mux := asynq.NewServeMux()
	mux.Handle(TypeExtractCard, cfg.Handler)

	return &Consumer{
		server: server,
		mux:    mux,
		config: cfg,
	}, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")
	c.server.Shutdown()
	log.Printf("Queue consumer stopped")
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
