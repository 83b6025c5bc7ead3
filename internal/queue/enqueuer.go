package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer submits extraction jobs to the queue.
type Enqueuer struct {
	client    *asynq.Client
	queueName string
	timeout   time.Duration
	maxRetry  int
}

// NewEnqueuer creates an enqueuer for queueName. timeout bounds each task's
// run time on the worker side.
func NewEnqueuer(redisURL, queueName string, timeout time.Duration) (*Enqueuer, error) {
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Enqueuer{
		client:    asynq.NewClient(redisOpt),
		queueName: queueName,
		timeout:   timeout,
		maxRetry:  3,
	}, nil
}

// NewTask builds the extract-card task for payload, assigning a job ID and
// submission time when missing.
func NewTask(payload *ExtractPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}
	if payload.SubmittedAt.IsZero() {
		payload.SubmittedAt = time.Now().UTC()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job data: %w", err)
	}
	return asynq.NewTask(TypeExtractCard, data), nil
}

// Enqueue submits payload and returns its job ID.
func (e *Enqueuer) Enqueue(ctx context.Context, payload *ExtractPayload) (string, error) {
	task, err := NewTask(payload)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.Queue(e.queueName),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(e.maxRetry),
	}
	if e.timeout > 0 {
		// Leave headroom over the handler's own processing timeout.
		opts = append(opts, asynq.Timeout(e.timeout+30*time.Second))
	}

	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return payload.JobID, nil
}

// Close closes the asynq client
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
