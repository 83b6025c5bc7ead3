/**
 * Card Extraction Pipeline
 *
 * Orchestrates identity extraction from CCCD photographs:
 * - QR decode cascade over increasing upscale factors
 * - QR payload parsing into an identity record
 * - Fallback to direct OCR or detection-guided field OCR
 *
 * Every outcome, including failures, is returned as a card.ExtractionResult.
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
	extractionerrors "github.com/HenSanInDuty/ocr-cccd/internal/errors"
	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
	"github.com/HenSanInDuty/ocr-cccd/internal/metrics"
	"github.com/HenSanInDuty/ocr-cccd/internal/qrpayload"
)

// DefaultScales are the upscale factors tried for QR decoding, in order.
var DefaultScales = []int{1, 2, 3}

// Extractor defines the interface for card extraction
type Extractor interface {
	Run(ctx context.Context, req *Request) card.ExtractionResult
}

// PipelineConfig holds pipeline configuration
type PipelineConfig struct {
	Decoder      QRDecoder
	Parser       *qrpayload.Parser
	Localization *card.Localization // display labels for QR records; nil uses the default table
	Direct       *DirectRecognizer
	Regions      *RegionExtractor

	Scales             []int
	RetryOnDecodeError bool
	DefaultMode        card.FallbackMode

	Metrics *metrics.Metrics
}

// Request is one extraction request. Images are decoded by the caller.
type Request struct {
	JobID    string // optional, for log correlation
	Front    image.Image
	Back     image.Image
	Variant  card.CardVariant
	Mode     card.FallbackMode // empty uses the pipeline default
	Detector RegionDetector    // required for region mode
}

// Pipeline runs the extraction state machine.
type Pipeline struct {
	decoder     QRDecoder
	parser      *qrpayload.Parser
	loc         *card.Localization
	direct      *DirectRecognizer
	regions     *RegionExtractor
	scales      []int
	retry       bool
	defaultMode card.FallbackMode
	metrics     *metrics.Metrics
	logger      *logging.Logger
}

// NewPipeline creates a new extraction pipeline
func NewPipeline(cfg *PipelineConfig) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("QR decoder is required")
	}
	if cfg.Direct == nil && cfg.Regions == nil {
		return nil, fmt.Errorf("at least one fallback recognizer is required")
	}

	scales := cfg.Scales
	if len(scales) == 0 {
		scales = DefaultScales
	}
	for _, s := range scales {
		if s < 1 {
			return nil, fmt.Errorf("invalid QR scale %d", s)
		}
	}

	parser := cfg.Parser
	if parser == nil {
		parser = qrpayload.NewParser(card.DefaultAbsentValue)
	}

	loc := cfg.Localization
	if loc == nil {
		loc = card.DefaultLocalization()
	}

	mode := cfg.DefaultMode
	if mode == "" {
		mode = card.FallbackRegion
	}

	return &Pipeline{
		decoder:     cfg.Decoder,
		parser:      parser,
		loc:         loc,
		direct:      cfg.Direct,
		regions:     cfg.Regions,
		scales:      append([]int(nil), scales...),
		retry:       cfg.RetryOnDecodeError,
		defaultMode: mode,
		metrics:     cfg.Metrics,
		logger:      logging.NewLogger("Pipeline"),
	}, nil
}

// Run executes the extraction. It never panics and never returns an error:
// failures are reported as a failure result.
func (p *Pipeline) Run(ctx context.Context, req *Request) (result card.ExtractionResult) {
	if req == nil {
		req = &Request{}
	}
	start := time.Now()
	var scalesTried []int

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Extraction panicked", "job", req.JobID, "panic", r)
			result = card.FailureResult(extractionerrors.NewInfrastructureError("extraction", fmt.Errorf("panic: %v", r)))
		}
		result.Variant = req.Variant
		result.ScalesTried = scalesTried
		p.metrics.ObserveStage("total", time.Since(start))
		p.metrics.IncrementOutcome(string(result.Kind), string(req.Variant))
		p.logger.Info("Extraction finished",
			"job", req.JobID,
			"variant", req.Variant,
			"kind", result.Kind,
			"scales", scalesTried,
			"duration", time.Since(start))
	}()

	qrImage, err := p.qrSide(req)
	if err != nil {
		return card.FailureResult(err)
	}

	// Stage 1: QR cascade
	qrStart := time.Now()
	var lastDecodeErr error
	for _, scale := range p.scales {
		scalesTried = append(scalesTried, scale)
		payload, found, err := p.decoder.Decode(ctx, qrImage, scale)
		if err != nil {
			p.metrics.IncrementQRAttempt(scale, "error")
			if !extractionerrors.HasCode(err, extractionerrors.ErrorDecodeFailed) {
				p.metrics.ObserveStage("qr", time.Since(qrStart))
				return card.FailureResult(extractionerrors.NewInfrastructureError("QR decode", err))
			}
			p.logger.Warn("QR decode error", "job", req.JobID, "scale", scale, "error", err)
			if !p.retry {
				p.metrics.ObserveStage("qr", time.Since(qrStart))
				return card.FailureResult(err)
			}
			lastDecodeErr = err
			continue
		}
		if !found {
			p.metrics.IncrementQRAttempt(scale, "absent")
			continue
		}

		p.metrics.IncrementQRAttempt(scale, "found")
		p.metrics.ObserveStage("qr", time.Since(qrStart))
		p.logger.Debug("QR decoded", "job", req.JobID, "scale", scale, "length", len(payload))

		record, failure := p.parser.Parse(payload)
		if failure != nil {
			return card.QRParseError(failure)
		}
		success := card.QRSuccess(record)
		success.Labeled = record.Labeled(p.loc)
		return success
	}
	p.metrics.ObserveStage("qr", time.Since(qrStart))

	if lastDecodeErr != nil {
		return card.FailureResult(lastDecodeErr)
	}

	// Stage 2: fallback on the front image
	return p.fallback(ctx, req)
}

// qrSide checks the variant's image precondition and returns the image to scan.
func (p *Pipeline) qrSide(req *Request) (image.Image, error) {
	switch req.Variant {
	case card.LegacyFront:
		if req.Front == nil {
			return nil, extractionerrors.NewPreconditionError("front image required")
		}
		return req.Front, nil
	case card.ModernBack:
		if req.Back == nil {
			return nil, extractionerrors.NewPreconditionError("back image required")
		}
		return req.Back, nil
	default:
		return nil, extractionerrors.NewPreconditionError(fmt.Sprintf("unknown card variant %q", req.Variant))
	}
}

func (p *Pipeline) fallback(ctx context.Context, req *Request) card.ExtractionResult {
	if req.Front == nil {
		return card.FailureResult(extractionerrors.NewPreconditionError("front image required"))
	}

	mode := req.Mode
	if mode == "" {
		mode = p.defaultMode
	}

	start := time.Now()
	defer func() { p.metrics.ObserveStage(string(mode), time.Since(start)) }()

	switch mode {
	case card.FallbackDirect:
		if p.direct == nil {
			return card.FailureResult(extractionerrors.NewPreconditionError("direct recognizer is not configured"))
		}
		texts, err := p.direct.RecognizeAll(ctx, req.Front)
		if err != nil {
			return card.FailureResult(extractionerrors.NewInfrastructureError("text recognition", err))
		}
		return card.DirectTextResult(texts)

	case card.FallbackRegion:
		if req.Detector == nil {
			return card.FailureResult(extractionerrors.NewPreconditionError("region detector is required"))
		}
		if p.regions == nil {
			return card.FailureResult(extractionerrors.NewPreconditionError("region extractor is not configured"))
		}
		fields, err := p.regions.Extract(ctx, req.Front, req.Detector)
		if err != nil {
			return card.FailureResult(err)
		}
		return card.RegionResult(fields.Labeled)

	default:
		return card.FailureResult(extractionerrors.NewPreconditionError(fmt.Sprintf("unknown fallback mode %q", mode)))
	}
}
