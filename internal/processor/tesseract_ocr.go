/**
 * Tesseract OCR - Local text recognizer
 *
 * Offline line-level recognition using Tesseract through gosseract.
 * One client is kept for the life of the process; calls are serialized.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
)

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Languages      []string // e.g. ["vie"]
	TessdataPrefix string
}

// TesseractOCR recognizes text lines using Tesseract
type TesseractOCR struct {
	mu     sync.Mutex
	client *gosseract.Client
	logger *logging.Logger
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) (*TesseractOCR, error) {
	if cfg == nil {
		cfg = &TesseractConfig{}
	}
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"vie"}
	}

	client := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set tesseract languages %v: %w", languages, err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &TesseractOCR{
		client: client,
		logger: logging.NewLogger("TesseractOCR"),
	}, nil
}

// Recognize returns the text lines Tesseract finds in img, in reading order.
func (t *TesseractOCR) Recognize(ctx context.Context, img image.Image) ([]TextFragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image for tesseract: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	// Tesseract reports boxes relative to the encoded image, which starts at the origin.
	offset := img.Bounds().Min
	fragments := make([]TextFragment, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		fragments = append(fragments, TextFragment{
			Quad:       QuadFromRect(box.Box.Add(offset)),
			Text:       text,
			Confidence: box.Confidence / 100,
		})
	}

	t.logger.Debug("Recognition complete", "lines", len(fragments))
	return fragments, nil
}

// Close releases the Tesseract engine.
func (t *TesseractOCR) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
