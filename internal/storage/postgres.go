/**
 * PostgreSQL Client for the CCCD extraction worker
 *
 * Persists one row per extraction in cccd.extractions.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
)

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS cccd;
	CREATE TABLE IF NOT EXISTS cccd.extractions (
		id              UUID PRIMARY KEY,
		job_id          TEXT NOT NULL UNIQUE,
		variant         TEXT NOT NULL,
		kind            TEXT NOT NULL,
		scales_tried    INTEGER[] NOT NULL DEFAULT '{}',
		result          JSONB NOT NULL,
		error_code      TEXT,
		error_message   TEXT,
		missing_fields  TEXT[],
		processing_time_ms BIGINT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS extractions_kind_idx ON cccd.extractions (kind);
`

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// ExtractionRecord is a stored extraction.
type ExtractionRecord struct {
	ID               string
	JobID            string
	Variant          string
	Kind             string
	ScalesTried      []int64
	Result           card.ExtractionResult
	ErrorCode        string
	ErrorMessage     string
	MissingFields    []string
	ProcessingTimeMs int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewExtractionRecord flattens result into its row representation.
func NewExtractionRecord(jobID string, result card.ExtractionResult, elapsed time.Duration) *ExtractionRecord {
	rec := &ExtractionRecord{
		ID:               uuid.NewString(),
		JobID:            jobID,
		Variant:          string(result.Variant),
		Kind:             string(result.Kind),
		ScalesTried:      make([]int64, 0, len(result.ScalesTried)),
		Result:           result,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
	for _, s := range result.ScalesTried {
		rec.ScalesTried = append(rec.ScalesTried, int64(s))
	}
	if result.Failure != nil {
		rec.ErrorCode = string(result.Failure.Code)
		rec.ErrorMessage = result.Failure.Reason
		rec.MissingFields = result.Failure.MissingFields
	}
	if result.ParseFailure != nil {
		rec.ErrorMessage = result.ParseFailure.Cause
	}
	return rec
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the cccd schema and table if they do not exist.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveExtraction upserts rec keyed by job ID and returns the row ID.
func (p *PostgresClient) SaveExtraction(ctx context.Context, rec *ExtractionRecord) (string, error) {
	if rec.JobID == "" {
		return "", fmt.Errorf("job ID is required")
	}

	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO cccd.extractions (
			id, job_id, variant, kind, scales_tried, result,
			error_code, error_message, missing_fields, processing_time_ms,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3, $4, $5, $6::jsonb,
			NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, 0),
			NOW(), NOW()
		)
		ON CONFLICT (job_id) DO UPDATE SET
			variant = EXCLUDED.variant,
			kind = EXCLUDED.kind,
			scales_tried = EXCLUDED.scales_tried,
			result = EXCLUDED.result,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			missing_fields = EXCLUDED.missing_fields,
			processing_time_ms = EXCLUDED.processing_time_ms,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		rec.ID,                            // $1 - id
		rec.JobID,                         // $2 - job_id
		rec.Variant,                       // $3 - variant
		rec.Kind,                          // $4 - kind
		pq.Array(rec.ScalesTried),         // $5 - scales_tried
		resultJSON,                        // $6 - result
		rec.ErrorCode,                     // $7 - error_code
		rec.ErrorMessage,                  // $8 - error_message
		pq.StringArray(rec.MissingFields), // $9 - missing_fields
		rec.ProcessingTimeMs,              // $10 - processing_time_ms
	).Scan(&returnedID)
	if err != nil {
		return "", fmt.Errorf("failed to save extraction (job=%s, kind=%s): %w", rec.JobID, rec.Kind, err)
	}

	return returnedID, nil
}

// GetExtraction retrieves the stored extraction for jobID.
func (p *PostgresClient) GetExtraction(ctx context.Context, jobID string) (*ExtractionRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, job_id, variant, kind, scales_tried, result,
			error_code, error_message, missing_fields, processing_time_ms,
			created_at, updated_at
		FROM cccd.extractions
		WHERE job_id = $1
	`

	var (
		rec                     ExtractionRecord
		scales                  pq.Int64Array
		resultJSON              []byte
		errorCode, errorMessage sql.NullString
		missing                 pq.StringArray
		processingTimeMs        sql.NullInt64
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.ID, &rec.JobID, &rec.Variant, &rec.Kind, &scales, &resultJSON,
		&errorCode, &errorMessage, &missing, &processingTimeMs,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("extraction not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get extraction: %w", err)
	}

	if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	rec.ScalesTried = []int64(scales)
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	rec.MissingFields = []string(missing)
	rec.ProcessingTimeMs = processingTimeMs.Int64

	return &rec, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
