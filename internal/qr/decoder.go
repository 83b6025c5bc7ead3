/**
 * QR Decoder
 *
 * Locates and decodes the QR symbol printed on a CCCD.
 */

package qr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"unicode/utf8"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	extractionerrors "github.com/HenSanInDuty/ocr-cccd/internal/errors"
	"github.com/HenSanInDuty/ocr-cccd/internal/imaging"
	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
)

// artifactRunes show up when a UTF-8 payload was decoded with the wrong
// charset (CJK ideographs, halfwidth katakana and punctuation).
var artifactRunes = []rune{'盻', 'ｳ', 'ﾃ', 'ｺ', 'ﾆ', '｡', 'ｪ', 'ｯ'}

// Decoder runs single-symbol QR decoding on normalized card images. It holds
// no per-call state and may be shared.
type Decoder struct {
	hints  map[gozxing.DecodeHintType]interface{}
	logger *logging.Logger
}

// NewDecoder creates a QR-only decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER:    true,
			gozxing.DecodeHintType_CHARACTER_SET: "UTF-8",
		},
		logger: logging.NewLogger("QRDecoder"),
	}
}

// Decode normalizes img at scale and attempts one QR decode. found is false
// with a nil error when no symbol could be read at this scale. A symbol whose
// payload is not clean UTF-8 yields a DECODE_FAILED error.
func (d *Decoder) Decode(ctx context.Context, img image.Image, scale int) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	binary, err := imaging.Normalize(img, scale)
	if err != nil {
		return "", false, fmt.Errorf("failed to normalize image: %w", err)
	}

	bitmap, err := gozxing.NewBinaryBitmapFromImage(binary)
	if err != nil {
		return "", false, fmt.Errorf("failed to build binary bitmap: %w", err)
	}

	result, err := qrcode.NewQRCodeReader().Decode(bitmap, d.hints)
	if err != nil {
		d.logger.Debug("No QR symbol decoded", "scale", scale, "reason", err)
		return "", false, nil
	}

	payload, err := validatePayload(rawBytes(result), result.GetText())
	if err != nil {
		return "", false, err
	}
	return payload, true, nil
}

// rawBytes concatenates the byte-mode segments of a decode result.
func rawBytes(result *gozxing.Result) []byte {
	segments, ok := result.GetResultMetadata()[gozxing.ResultMetadataType_BYTE_SEGMENTS].([][]byte)
	if !ok {
		return nil
	}
	var raw []byte
	for _, seg := range segments {
		raw = append(raw, seg...)
	}
	return raw
}

// validatePayload rejects payloads whose raw bytes are not UTF-8 or whose text
// contains mis-encoding artifacts.
func validatePayload(raw []byte, text string) (string, error) {
	if raw != nil && !utf8.Valid(raw) {
		return "", extractionerrors.NewDecodeError(
			"QR payload is not valid UTF-8; rescan with a sharper image",
			fmt.Errorf("invalid UTF-8 in %d payload bytes", len(raw)))
	}
	if !utf8.ValidString(text) {
		return "", extractionerrors.NewDecodeError(
			"QR payload is not valid UTF-8; rescan with a sharper image", nil)
	}
	for _, r := range artifactRunes {
		if strings.ContainsRune(text, r) {
			return "", extractionerrors.NewDecodeError(
				"QR payload contains encoding artifacts; rescan or use a better quality image",
				fmt.Errorf("artifact character %q in payload", r))
		}
	}
	return text, nil
}
