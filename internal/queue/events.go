/**
 * Job Events - Redis status tracking and pub/sub
 *
 * Mirrors each job's lifecycle into Redis sets and hashes and publishes a
 * job:<status> event on <queue>:events for streaming clients.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
)

// Job statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrJobNotFound is returned when no status is recorded for a job.
var ErrJobNotFound = errors.New("job not found")

// StatusPublisher records job status transitions.
type StatusPublisher interface {
	UpdateJobStatus(ctx context.Context, jobID, status string, result interface{}) error
}

// JobEvent is the message published on the events channel.
type JobEvent struct {
	Event     string `json:"event"`
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// JobState is the stored view of a job.
type JobState struct {
	JobID  string          `json:"jobId"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// EventPublisher tracks job state in Redis
type EventPublisher struct {
	client    *redis.Client
	queueName string
	logger    *logging.Logger
}

// NewEventPublisher connects to Redis and creates a publisher for queueName.
func NewEventPublisher(redisURL, queueName string) (*EventPublisher, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	// Parse Redis URL
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &EventPublisher{
		client:    client,
		queueName: queueName,
		logger:    logging.NewLogger("EventPublisher"),
	}, nil
}

func (p *EventPublisher) key(suffix string) string {
	return fmt.Sprintf("%s:%s", p.queueName, suffix)
}

// UpdateJobStatus moves jobID into status, stores result when given and
// publishes the transition.
func (p *EventPublisher) UpdateJobStatus(ctx context.Context, jobID, status string, result interface{}) error {
	var resultData []byte
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		resultData = data
	}

	eventData, err := json.Marshal(newJobEvent(jobID, status, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.key("status"), jobID, status)
	switch status {
	case StatusProcessing:
		pipe.SAdd(ctx, p.key("processing"), jobID)
	case StatusCompleted, StatusFailed:
		pipe.SRem(ctx, p.key("processing"), jobID)
		pipe.SAdd(ctx, p.key(status), jobID)
		if resultData != nil {
			pipe.HSet(ctx, p.key("results"), jobID, resultData)
		}
	}
	pipe.Publish(ctx, p.key("events"), eventData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update job %s to %s: %w", jobID, status, err)
	}
	return nil
}

// GetJob returns the recorded state of jobID.
func (p *EventPublisher) GetJob(ctx context.Context, jobID string) (*JobState, error) {
	status, err := p.client.HGet(ctx, p.key("status"), jobID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job status: %w", err)
	}

	state := &JobState{JobID: jobID, Status: status}
	result, err := p.client.HGet(ctx, p.key("results"), jobID).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("failed to read job result: %w", err)
	default:
		state.Result = result
	}
	return state, nil
}

// GetStats returns job counts per state
func (p *EventPublisher) GetStats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64, 3)
	for _, status := range []string{StatusProcessing, StatusCompleted, StatusFailed} {
		n, err := p.client.SCard(ctx, p.key(status)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count %s jobs: %w", status, err)
		}
		stats[status] = n
	}
	return stats, nil
}

// Ping checks Redis connectivity
func (p *EventPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *EventPublisher) Close() error {
	return p.client.Close()
}

func newJobEvent(jobID, status string, at time.Time) JobEvent {
	return JobEvent{
		Event:     fmt.Sprintf("job:%s", status),
		JobID:     jobID,
		Status:    status,
		Timestamp: at.Format(time.RFC3339),
	}
}
