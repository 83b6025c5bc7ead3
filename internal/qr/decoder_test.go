package qr

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	extractionerrors "github.com/HenSanInDuty/ocr-cccd/internal/errors"
)

const modernPayload = "096200014786|381902150|Trần Trọng Nhân|20122000|Nam|Cái Keo, Quách Phẩm, Cà Mau|18082025||||"

// encodeQR renders payload as a UTF-8 QR symbol pasted onto a light card background.
func encodeQR(t *testing.T, payload string) image.Image {
	t.Helper()
	return encodeQRCharset(t, payload, "UTF-8")
}

func encodeQRCharset(t *testing.T, payload, charset string) image.Image {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 240, 240,
		map[gozxing.EncodeHintType]interface{}{
			gozxing.EncodeHintType_CHARACTER_SET: charset,
		})
	require.NoError(t, err)

	canvas := image.NewRGBA(image.Rect(0, 0, 320, 260))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.RGBA{R: 250, G: 250, B: 250, A: 255}}, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(40, 10, 280, 250), matrix, image.Point{}, draw.Over)
	return canvas
}

func TestDecodeModernPayload(t *testing.T) {
	img := encodeQR(t, modernPayload)

	payload, found, err := NewDecoder().Decode(context.Background(), img, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, modernPayload, payload)
}

func TestDecodeBlankImageIsAbsent(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 120))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	payload, found, err := NewDecoder().Decode(context.Background(), img, 1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, payload)
}

func TestDecodeArtifactIsHardError(t *testing.T) {
	img := encodeQR(t, "0962|3819|Trｳn|20122000|Nam|Cà Mau|18082025")

	_, found, err := NewDecoder().Decode(context.Background(), img, 1)
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, extractionerrors.HasCode(err, extractionerrors.ErrorDecodeFailed))
}

func TestDecodeLatin1SymbolIsHardError(t *testing.T) {
	// "â" is the single byte 0xE2 in ISO-8859-1, which is not valid UTF-8.
	img := encodeQRCharset(t, "0962|3819|Trân|20122000|Nam|Cà Mau|18082025", "ISO-8859-1")

	payload, found, err := NewDecoder().Decode(context.Background(), img, 1)
	require.Error(t, err)
	assert.False(t, found)
	assert.Empty(t, payload)
	assert.True(t, extractionerrors.HasCode(err, extractionerrors.ErrorDecodeFailed))
	assert.Contains(t, err.Error(), "not valid UTF-8")
}

func TestDecodeHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, found, err := NewDecoder().Decode(ctx, encodeQR(t, modernPayload), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, found)
}

func TestValidatePayload(t *testing.T) {
	text, err := validatePayload([]byte(modernPayload), modernPayload)
	require.NoError(t, err)
	assert.Equal(t, modernPayload, text)

	// Numeric/alphanumeric symbols carry no byte segments.
	text, err = validatePayload(nil, "0962")
	require.NoError(t, err)
	assert.Equal(t, "0962", text)

	_, err = validatePayload([]byte{0x30, 0xff, 0xfe}, "0ÿþ")
	assert.True(t, extractionerrors.HasCode(err, extractionerrors.ErrorDecodeFailed))

	for _, r := range artifactRunes {
		_, err = validatePayload(nil, "Tr"+string(r)+"n")
		assert.True(t, extractionerrors.HasCode(err, extractionerrors.ErrorDecodeFailed), "rune %q", r)
	}
}
