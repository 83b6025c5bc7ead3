package imaging

import (
	"image"
	"math"
)

// Fixed binomial kernels used for small Gaussian apertures.
var smallGaussianKernels = map[int][]float64{
	1: {1},
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

// gaussianKernel returns a normalized 1D kernel of the given odd size. Sizes
// up to 7 use the fixed binomial table; larger sizes derive sigma from the size.
func gaussianKernel(size int) []float64 {
	if k, ok := smallGaussianKernels[size]; ok {
		return k
	}
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	half := size / 2
	k := make([]float64, size)
	var sum float64
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

type borderFunc func(i, n int) int

// reflect101 mirrors around the edge pixel without repeating it (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// replicate clamps to the edge pixel (aaaaaa|abcdefgh|hhhhhhh).
func replicate(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// separableBlur convolves src with kernel horizontally then vertically and
// returns the unrounded result.
func separableBlur(src *image.Gray, kernel []float64, border borderFunc) []float64 {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	half := len(kernel) / 2

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * float64(row[border(x+k-half, w)])
			}
			tmp[y*w+x] = acc
		}
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * tmp[border(y+k-half, h)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

// GaussianBlur smooths src with a size×size Gaussian kernel. Apertures up to 7
// use the fixed binomial taps and borders reflect without repeating the edge
// pixel (reflect-101), matching OpenCV's GaussianBlur output.
func GaussianBlur(src *image.Gray, size int) *image.Gray {
	b := src.Bounds()
	blurred := separableBlur(src, gaussianKernel(size), reflect101)
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for i, v := range blurred {
		dst.Pix[i] = clampByte(v)
	}
	return dst
}

// AdaptiveThreshold binarizes src against its Gaussian-weighted local mean
// over a block×block window: a pixel is white when it exceeds mean-offset.
func AdaptiveThreshold(src *image.Gray, block int, offset int) *image.Gray {
	b := src.Bounds()
	w := b.Dx()
	means := separableBlur(src, gaussianKernel(block), replicate)
	dst := image.NewGray(image.Rect(0, 0, w, b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < w; x++ {
			v := int(src.Pix[y*src.Stride+x])
			mean := int(clampByte(means[y*w+x]))
			if v-mean > -offset {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// OtsuThreshold returns the gray level that maximizes between-class variance.
func OtsuThreshold(src *image.Gray) uint8 {
	var hist [256]int
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for _, v := range src.Pix[y*src.Stride : y*src.Stride+w] {
			hist[v]++
		}
	}

	total := float64(w * h)
	if total == 0 {
		return 0
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}

	var (
		sumBack    float64
		weightBack float64
		best       float64
		threshold  int
	)
	for t := 0; t < 256; t++ {
		weightBack += float64(hist[t])
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t * hist[t])
		meanBack := sumBack / weightBack
		meanFore := (sum - sumBack) / weightFore
		between := weightBack * weightFore * (meanBack - meanFore) * (meanBack - meanFore)
		if between > best {
			best = between
			threshold = t
		}
	}
	return uint8(threshold)
}
