/**
 * OCR Types - Shared data structures for recognition and detection
 *
 * Common types used by the Tesseract recognizer, the OCR sidecar client
 * and the region detector client.
 */

package processor

import (
	"context"
	"image"
)

// TextFragment is one recognized text line with its quadrilateral.
type TextFragment struct {
	Quad       [4]image.Point // top-left, top-right, bottom-right, bottom-left
	Text       string
	Confidence float64 // 0..1
}

// Bounds returns the axis-aligned rectangle enclosing the quad.
func (f TextFragment) Bounds() image.Rectangle {
	r := image.Rectangle{Min: f.Quad[0], Max: f.Quad[0]}
	for _, p := range f.Quad[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
	}
	return r
}

// QuadFromRect builds a clockwise quad from a rectangle.
func QuadFromRect(r image.Rectangle) [4]image.Point {
	return [4]image.Point{
		r.Min,
		{X: r.Max.X, Y: r.Min.Y},
		r.Max,
		{X: r.Min.X, Y: r.Max.Y},
	}
}

// Detection is one labeled region returned by the region detector.
type Detection struct {
	Box        image.Rectangle
	ClassIndex int
	Confidence float64
}

// TextRecognizer reads text lines from an image.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]TextFragment, error)
}

// RegionDetector locates labeled card fields in the image stored at path.
type RegionDetector interface {
	Detect(ctx context.Context, path string) ([]Detection, error)
}

// QRDecoder attempts one QR decode of img at an upscale factor.
type QRDecoder interface {
	Decode(ctx context.Context, img image.Image, scale int) (payload string, found bool, err error)
}
