package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

/**
 * Custom error types for the CCCD extraction worker
 *
 * Every failure the extraction core can produce is classified by an ErrorCode
 * so callers can decide between retry, re-capture and abort.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Extraction errors
	ErrorDecodeFailed         ErrorCode = "DECODE_FAILED"
	ErrorNothingDetected      ErrorCode = "NOTHING_DETECTED"
	ErrorValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrorPreconditionFailed   ErrorCode = "PRECONDITION_FAILED"
	ErrorInfrastructureFailed ErrorCode = "INFRASTRUCTURE_FAILED"

	// Worker errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
	ErrorInvalidImage      ErrorCode = "INVALID_IMAGE"
)

// ExtractionError represents a classified extraction failure
type ExtractionError struct {
	Code          ErrorCode
	Message       string
	MissingFields []string
	Timestamp     time.Time
	Details       map[string]interface{}
	Cause         error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewDecodeError(message string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorDecodeFailed,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewNothingDetectedError(message string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorNothingDetected,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewValidationError builds the user-facing message from the missing field
// labels followed by the re-capture guidance.
func NewValidationError(missingLabels []string, guidance string) *ExtractionError {
	message := fmt.Sprintf("Thiếu thông tin bắt buộc: %s", strings.Join(missingLabels, ", "))
	if guidance != "" {
		message += "\n\n" + guidance
	}
	return &ExtractionError{
		Code:          ErrorValidationFailed,
		Message:       message,
		MissingFields: append([]string(nil), missingLabels...),
		Timestamp:     time.Now(),
		Details: map[string]interface{}{
			"missing_count": len(missingLabels),
		},
	}
}

func NewPreconditionError(message string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorPreconditionFailed,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewInfrastructureError(stage string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorInfrastructureFailed,
		Message:   fmt.Sprintf("%s failed", stage),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"stage": stage,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"job_id":           jobID,
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store extraction result",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"job_id": jobID,
		},
		Cause: cause,
	}
}

func NewInvalidImageError(side string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorInvalidImage,
		Message:   fmt.Sprintf("cannot decode %s image", side),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"side": side,
		},
		Cause: cause,
	}
}

// As extracts an *ExtractionError from err's chain.
func As(err error) (*ExtractionError, bool) {
	var extractionErr *ExtractionError
	if stderrors.As(err, &extractionErr) {
		return extractionErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an ExtractionError with the given code.
func HasCode(err error, code ErrorCode) bool {
	extractionErr, ok := As(err)
	return ok && extractionErr.Code == code
}

// ToMap converts error to map for database storage
func (e *ExtractionError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if len(e.MissingFields) > 0 {
		result["missing_fields"] = e.MissingFields
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
