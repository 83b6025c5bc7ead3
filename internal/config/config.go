/**
 * Configuration for the CCCD extraction worker
 *
 * Loads configuration from environment variables matching .env.cccd
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
)

// OCR backends
const (
	OCRBackendTesseract = "tesseract"
	OCRBackendService   = "service"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL  string
	QueueName string

	// PostgreSQL configuration (optional; results are not persisted when empty)
	DatabaseURL string

	// HTTP API
	HTTPAddr string

	// Region detector service
	DetectorURL           string
	DetectorMinConfidence float64

	// Text recognition
	OCRBackend     string
	OCRServiceURL  string
	OCRLanguages   []string
	TessdataPrefix string

	// Pipeline
	FallbackMode         card.FallbackMode
	QRScales             []int
	QRRetryOnDecodeError bool
	LocalizationFile     string
	DebugOverlayDir      string
	MaxImageSize         int64

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout time.Duration

	// Temporary directory for detector uploads
	TempDir string

	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	mode, err := card.ParseFallbackMode(getEnvOrDefault("FALLBACK_MODE", string(card.FallbackRegion)))
	if err != nil {
		return nil, fmt.Errorf("FALLBACK_MODE: %w", err)
	}

	scales, err := parseScales(getEnvOrDefault("QR_SCALES", "1,2,3"))
	if err != nil {
		return nil, fmt.Errorf("QR_SCALES: %w", err)
	}

	cfg := &Config{
		RedisURL:              getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:             getEnvOrDefault("QUEUE_NAME", "cccd"),
		DatabaseURL:           getEnvOrDefault("DATABASE_URL", ""),
		HTTPAddr:              getEnvOrDefault("HTTP_ADDR", ":8080"),
		DetectorURL:           getEnvOrDefault("DETECTOR_URL", "http://localhost:8000"),
		DetectorMinConfidence: getEnvAsFloatOrDefault("DETECTOR_MIN_CONFIDENCE", 0.25),
		OCRBackend:            strings.ToLower(getEnvOrDefault("OCR_BACKEND", OCRBackendTesseract)),
		OCRServiceURL:         getEnvOrDefault("OCR_SERVICE_URL", ""),
		OCRLanguages:          splitList(getEnvOrDefault("OCR_LANGUAGES", "vie")),
		TessdataPrefix:        getEnvOrDefault("TESSDATA_PREFIX", ""),
		FallbackMode:          mode,
		QRScales:              scales,
		QRRetryOnDecodeError:  getEnvAsBoolOrDefault("QR_RETRY_ON_DECODE_ERROR", false),
		LocalizationFile:      getEnvOrDefault("LOCALIZATION_FILE", ""),
		DebugOverlayDir:       getEnvOrDefault("DEBUG_OVERLAY_DIR", ""),
		MaxImageSize:          getEnvAsInt64OrDefault("MAX_IMAGE_SIZE", 20971520), // 20MB
		WorkerConcurrency:     getEnvAsIntOrDefault("WORKER_CONCURRENCY", 1),
		ProcessingTimeout:     time.Duration(getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 60000)) * time.Millisecond,
		TempDir:               getEnvOrDefault("TEMP_DIR", os.TempDir()),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	switch c.OCRBackend {
	case OCRBackendTesseract:
	case OCRBackendService:
		if c.OCRServiceURL == "" {
			return fmt.Errorf("OCR_SERVICE_URL is required when OCR_BACKEND=%s", OCRBackendService)
		}
	default:
		return fmt.Errorf("OCR_BACKEND must be %q or %q, got %q", OCRBackendTesseract, OCRBackendService, c.OCRBackend)
	}

	if c.FallbackMode == card.FallbackRegion && c.DetectorURL == "" {
		return fmt.Errorf("DETECTOR_URL is required when FALLBACK_MODE=%s", card.FallbackRegion)
	}

	if c.DetectorMinConfidence < 0 || c.DetectorMinConfidence > 1 {
		return fmt.Errorf("DETECTOR_MIN_CONFIDENCE must be between 0 and 1, got %v", c.DetectorMinConfidence)
	}

	if len(c.QRScales) == 0 {
		return fmt.Errorf("QR_SCALES must list at least one scale")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 32 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 32, got %d", c.WorkerConcurrency)
	}

	if c.MaxImageSize < 1024 || c.MaxImageSize > 104857600 { // 1KB to 100MB
		return fmt.Errorf("MAX_IMAGE_SIZE must be between 1KB and 100MB, got %d", c.MaxImageSize)
	}

	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive, got %s", c.ProcessingTimeout)
	}

	return nil
}

// parseScales parses a comma-separated list of upscale factors, e.g. "1,2,3".
func parseScales(s string) ([]int, error) {
	var scales []int
	for _, part := range splitList(s) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid scale %q: %w", part, err)
		}
		if v < 1 || v > 8 {
			return nil, fmt.Errorf("scale must be between 1 and 8, got %d", v)
		}
		scales = append(scales, v)
	}
	return scales, nil
}

// splitList splits a comma- or plus-separated list and drops empty items.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
