/**
 * Region Extractor - Detection-guided field recognition
 *
 * Reorients the card, asks the region detector for labeled field boxes,
 * recognizes the text inside each box and checks the result against the
 * required-field policy of the localization table.
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
	extractionerrors "github.com/HenSanInDuty/ocr-cccd/internal/errors"
	"github.com/HenSanInDuty/ocr-cccd/internal/imaging"
	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
)

// RegionFields is the outcome of a successful region extraction.
type RegionFields struct {
	Fields  card.FieldMap
	Labeled map[string]string // keyed by display label
}

// RegionExtractor reads card fields out of detector-proposed regions.
type RegionExtractor struct {
	recognizer   TextRecognizer
	localization *card.Localization
	tempDir      string
	logger       *logging.Logger
}

// NewRegionExtractor creates a region extractor. A nil localization uses the
// default table; an empty tempDir uses the OS temp directory.
func NewRegionExtractor(recognizer TextRecognizer, loc *card.Localization, tempDir string) *RegionExtractor {
	if loc == nil {
		loc = card.DefaultLocalization()
	}
	return &RegionExtractor{
		recognizer:   recognizer,
		localization: loc,
		tempDir:      tempDir,
		logger:       logging.NewLogger("RegionExtractor"),
	}
}

type fieldCandidate struct {
	text       string
	confidence float64
}

// Extract detects and recognizes the card fields in img.
func (e *RegionExtractor) Extract(ctx context.Context, img image.Image, detector RegionDetector) (*RegionFields, error) {
	if detector == nil {
		return nil, extractionerrors.NewPreconditionError("region detector is required")
	}

	oriented := imaging.Reorient(img)

	path, err := e.writeTemp(oriented)
	if err != nil {
		return nil, extractionerrors.NewInfrastructureError("temp image write", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("Failed to remove temp image", "path", path, "error", err)
		}
	}()

	detections, err := detector.Detect(ctx, path)
	if err != nil {
		return nil, extractionerrors.NewInfrastructureError("region detection", err)
	}
	if len(detections) == 0 {
		return nil, extractionerrors.NewNothingDetectedError(e.localization.NothingDetected)
	}
	e.logger.Debug("Regions detected", "count", len(detections))

	best := make(map[card.FieldTag]fieldCandidate, len(detections))
	for i, det := range detections {
		tag, err := card.FieldTagForClass(det.ClassIndex)
		if err != nil {
			return nil, extractionerrors.NewInfrastructureError("region detection",
				fmt.Errorf("detection %d: %w", i, err))
		}

		crop := imaging.Crop(oriented, det.Box)
		if crop == nil {
			e.logger.Debug("Skipping region outside image", "field", tag, "box", det.Box)
			continue
		}

		fragments, err := e.recognizer.Recognize(ctx, crop)
		if err != nil {
			return nil, extractionerrors.NewInfrastructureError("text recognition",
				fmt.Errorf("field %s: %w", tag, err))
		}

		text := joinFragments(fragments)
		if text == "" {
			continue
		}

		// Highest confidence wins; ties go to the later region.
		if prev, ok := best[tag]; ok && prev.confidence > det.Confidence {
			continue
		}
		best[tag] = fieldCandidate{text: text, confidence: det.Confidence}
	}

	fields := make(card.FieldMap, len(best))
	for tag, c := range best {
		fields[tag] = c.text
	}

	if missing := e.localization.MissingRequired(fields); len(missing) > 0 {
		labels := make([]string, 0, len(missing))
		for _, tag := range missing {
			labels = append(labels, e.localization.Label(tag))
		}
		e.logger.Info("Required fields missing", "missing", strings.Join(labels, ", "))
		return nil, extractionerrors.NewValidationError(labels, e.localization.RecaptureGuidance)
	}

	return &RegionFields{
		Fields:  fields,
		Labeled: e.localization.Labeled(fields),
	}, nil
}

func (e *RegionExtractor) writeTemp(img image.Image) (string, error) {
	file, err := os.CreateTemp(e.tempDir, "cccd-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := file.Name()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 95}); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode temp image: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temp image: %w", err)
	}
	return path, nil
}

// joinFragments concatenates fragment texts with single spaces.
func joinFragments(fragments []TextFragment) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if t := strings.TrimSpace(f.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
