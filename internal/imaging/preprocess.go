/**
 * Card Image Preprocessing
 *
 * Prepares card photographs for QR decoding and region detection.
 * Every function returns a new image and leaves its input untouched, so
 * concurrent attempts on the same source image are safe.
 */

package imaging

import (
	"fmt"
	"image"

	imgproc "github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

const (
	// QR normalization parameters.
	qrBlurSize        = 3
	adaptiveBlockSize = 31
	adaptiveOffset    = 2

	// Orientation binarization blur.
	orientBlurSize = 5
)

// Normalize upscales img by scale (bicubic), converts it to grayscale, blurs it
// and applies a Gaussian adaptive threshold. The result is a binary image.
func Normalize(img image.Image, scale int) (*image.Gray, error) {
	if img == nil {
		return nil, fmt.Errorf("image is required")
	}
	if scale < 1 {
		return nil, fmt.Errorf("scale must be >= 1, got %d", scale)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("image is empty")
	}

	scaled := Upscale(img, scale)
	gray := Grayscale(scaled)
	blurred := GaussianBlur(gray, qrBlurSize)
	return AdaptiveThreshold(blurred, adaptiveBlockSize, adaptiveOffset), nil
}

// Upscale resizes img by an integer factor with Catmull-Rom (bicubic)
// interpolation. A factor of 1 returns a copy.
func Upscale(img image.Image, scale int) image.Image {
	if scale <= 1 {
		return imgproc.Clone(img)
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Grayscale converts img to 8-bit luma using the ITU-R BT.601 weights.
func Grayscale(img image.Image) *image.Gray {
	luma := imgproc.Grayscale(img)
	b := luma.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := luma.Pix[y*luma.Stride : y*luma.Stride+b.Dx()*4]
		row := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x := range row {
			row[x] = src[x*4]
		}
	}
	return dst
}

// Reorient returns img rotated so that it is landscape and the photo side of
// the card sits on the left. Portrait frames are rotated 90° clockwise first;
// then, if the right half of the inverted Otsu binarization has at least as
// many white pixels as the left half, the frame is rotated by 180°.
func Reorient(img image.Image) *image.NRGBA {
	out := imgproc.Clone(img)
	if out.Bounds().Dy() > out.Bounds().Dx() {
		out = imgproc.Rotate270(out) // counter-clockwise 270° is clockwise 90°
	}

	binary := BinarizeInverted(out)
	left, right := WhiteHalves(binary)
	if left <= right {
		out = imgproc.Rotate180(out)
	}
	return out
}

// BinarizeInverted applies grayscale, a 5x5 Gaussian blur and an inverted Otsu
// threshold: pixels darker than the threshold become white.
func BinarizeInverted(img image.Image) *image.Gray {
	gray := GaussianBlur(Grayscale(img), orientBlurSize)
	t := OtsuThreshold(gray)
	dst := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		if v > t {
			dst.Pix[i] = 0
		} else {
			dst.Pix[i] = 255
		}
	}
	return dst
}

// WhiteHalves counts white (255) pixels in the left and right halves of img.
// The split column is width/2; the right half includes the middle column for
// odd widths.
func WhiteHalves(img *image.Gray) (left, right int) {
	b := img.Bounds()
	mid := b.Dx() / 2
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		for x, v := range row {
			if v != 255 {
				continue
			}
			if x < mid {
				left++
			} else {
				right++
			}
		}
	}
	return left, right
}

// Crop copies the part of img inside r into a new image anchored at the origin.
// r is clipped to the image bounds; an empty intersection yields nil.
func Crop(img image.Image, r image.Rectangle) *image.NRGBA {
	if r.Intersect(img.Bounds()).Empty() {
		return nil
	}
	return imgproc.Crop(img, r)
}

func clampByte(v float64) uint8 {
	v += 0.5
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
