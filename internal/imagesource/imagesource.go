/**
 * Image Source
 *
 * Decodes uploaded card photographs (JPEG, PNG, GIF, BMP, TIFF, WebP).
 */

package imagesource

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	extractionerrors "github.com/HenSanInDuty/ocr-cccd/internal/errors"
)

// MinDimension is the smallest accepted width or height in pixels.
const MinDimension = 32

// Decode decodes an encoded image and returns it with its format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image data is empty")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("unsupported or corrupt image: %w", err)
	}
	if cfg.Width < MinDimension || cfg.Height < MinDimension {
		return nil, "", fmt.Errorf("image too small: %dx%d", cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s image: %w", format, err)
	}
	return img, format, nil
}

// DecodeSide decodes one card side. Empty data yields a nil image; a decode
// failure is reported as an INVALID_IMAGE extraction error naming the side.
func DecodeSide(side string, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, nil
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, extractionerrors.NewInvalidImageError(side, err)
	}
	return img, nil
}
