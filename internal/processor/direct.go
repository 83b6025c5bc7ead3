package processor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	imgproc "github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
)

var overlayColor = color.NRGBA{R: 0, G: 200, B: 0, A: 255}

// DirectRecognizer runs whole-image recognition and returns every fragment.
type DirectRecognizer struct {
	recognizer TextRecognizer
	overlayDir string // empty disables the debug overlay
	logger     *logging.Logger
}

// NewDirectRecognizer creates a direct recognizer. When overlayDir is set, an
// annotated copy of each processed image is written there.
func NewDirectRecognizer(recognizer TextRecognizer, overlayDir string) *DirectRecognizer {
	return &DirectRecognizer{
		recognizer: recognizer,
		overlayDir: overlayDir,
		logger:     logging.NewLogger("DirectRecognizer"),
	}
}

// RecognizeAll returns the text of every recognized fragment in engine order.
func (d *DirectRecognizer) RecognizeAll(ctx context.Context, img image.Image) ([]string, error) {
	fragments, err := d.recognizer.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		texts = append(texts, f.Text)
	}

	if d.overlayDir != "" {
		path, err := d.writeOverlay(img, fragments)
		if err != nil {
			d.logger.Warn("Failed to write debug overlay", "error", err)
		} else {
			d.logger.Debug("Debug overlay written", "path", path)
		}
	}

	return texts, nil
}

func (d *DirectRecognizer) writeOverlay(img image.Image, fragments []TextFragment) (string, error) {
	canvas := imgproc.Clone(img)
	offset := img.Bounds().Min
	for _, f := range fragments {
		strokeRect(canvas, f.Bounds().Sub(offset), overlayColor)
	}

	if err := os.MkdirAll(d.overlayDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create overlay dir: %w", err)
	}
	path := filepath.Join(d.overlayDir, fmt.Sprintf("overlay-%s.png", uuid.NewString()))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create overlay file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, canvas); err != nil {
		return "", fmt.Errorf("failed to encode overlay: %w", err)
	}
	return path, nil
}

// strokeRect draws a 2px outline of r onto dst, clipped to its bounds.
func strokeRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	const width = 2
	b := dst.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			edge := x-r.Min.X < width || r.Max.X-1-x < width || y-r.Min.Y < width || r.Max.Y-1-y < width
			if edge && image.Pt(x, y).In(b) {
				dst.SetNRGBA(x, y, c)
			}
		}
	}
}
