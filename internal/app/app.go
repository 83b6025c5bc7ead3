/**
 * Pipeline Assembly
 *
 * Builds the recognizer, detector and extraction pipeline from configuration.
 * Shared by the worker and the CLI.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
	"github.com/HenSanInDuty/ocr-cccd/internal/clients"
	"github.com/HenSanInDuty/ocr-cccd/internal/config"
	"github.com/HenSanInDuty/ocr-cccd/internal/metrics"
	"github.com/HenSanInDuty/ocr-cccd/internal/processor"
	"github.com/HenSanInDuty/ocr-cccd/internal/qr"
	"github.com/HenSanInDuty/ocr-cccd/internal/qrpayload"
)

// Components are the long-lived handles behind a pipeline. Close releases them.
type Components struct {
	Pipeline     *processor.Pipeline
	Recognizer   processor.TextRecognizer
	Detector     *clients.DetectorClient // nil when no detector URL is configured
	Localization *card.Localization

	closers []func() error
}

// Build constructs the recognizer, detector client and pipeline for cfg.
func Build(cfg *config.Config, m *metrics.Metrics) (*Components, error) {
	loc := card.DefaultLocalization()
	if cfg.LocalizationFile != "" {
		loaded, err := card.LoadLocalization(cfg.LocalizationFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load localization: %w", err)
		}
		loc = loaded
	}

	c := &Components{Localization: loc}

	switch cfg.OCRBackend {
	case config.OCRBackendService:
		c.Recognizer = clients.NewOCRServiceClient(cfg.OCRServiceURL, cfg.OCRLanguages)
		log.Printf("Text recognition: OCR service at %s", cfg.OCRServiceURL)
	default:
		tess, err := processor.NewTesseractOCR(&processor.TesseractConfig{
			Languages:      cfg.OCRLanguages,
			TessdataPrefix: cfg.TessdataPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tesseract: %w", err)
		}
		c.Recognizer = tess
		c.closers = append(c.closers, tess.Close)
		log.Printf("Text recognition: tesseract (languages=%v)", cfg.OCRLanguages)
	}

	if cfg.DetectorURL != "" {
		c.Detector = clients.NewDetectorClient(cfg.DetectorURL, cfg.DetectorMinConfidence)
	}

	pipeline, err := processor.NewPipeline(&processor.PipelineConfig{
		Decoder:            qr.NewDecoder(),
		Parser:             qrpayload.NewParser(loc.AbsentValue),
		Localization:       loc,
		Direct:             processor.NewDirectRecognizer(c.Recognizer, cfg.DebugOverlayDir),
		Regions:            processor.NewRegionExtractor(c.Recognizer, loc, cfg.TempDir),
		Scales:             cfg.QRScales,
		RetryOnDecodeError: cfg.QRRetryOnDecodeError,
		DefaultMode:        cfg.FallbackMode,
		Metrics:            m,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	c.Pipeline = pipeline
	return c, nil
}

// RegionDetector returns the detector as a processor.RegionDetector, or nil
// when none is configured.
func (c *Components) RegionDetector() processor.RegionDetector {
	if c.Detector == nil {
		return nil
	}
	return c.Detector
}

// CheckDetector pings the detector service; a missing detector is not an error.
func (c *Components) CheckDetector(ctx context.Context) error {
	if c.Detector == nil {
		return nil
	}
	return c.Detector.HealthCheck(ctx)
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckRecognizer pings a remote recognizer. Local recognizers always pass.
func (c *Components) CheckRecognizer(ctx context.Context) error {
	if hc, ok := c.Recognizer.(healthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Close releases recognizer resources.
func (c *Components) Close() error {
	var first error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
