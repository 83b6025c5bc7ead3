package processor

import (
	"context"
	"image"
	"image/color"
	"os"
	"sync"
)

type decodeStep struct {
	payload string
	found   bool
	err     error
}

// fakeDecoder answers each scale from a table; unknown scales are absent.
type fakeDecoder struct {
	mu     sync.Mutex
	steps  map[int]decodeStep
	scales []int
}

func (f *fakeDecoder) Decode(ctx context.Context, img image.Image, scale int) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scales = append(f.scales, scale)
	step := f.steps[scale]
	return step.payload, step.found, step.err
}

// fakeRecognizer returns one scripted response per call, in order.
type fakeRecognizer struct {
	mu        sync.Mutex
	responses [][]TextFragment
	err       error
	calls     int
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image) ([]TextFragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return nil, nil
	}
	return f.responses[i], nil
}

// fakeDetector returns fixed detections and records whether the image file
// existed while it was being read.
type fakeDetector struct {
	detections []Detection
	err        error
	path       string
	existed    bool
}

func (f *fakeDetector) Detect(ctx context.Context, path string) ([]Detection, error) {
	f.path = path
	_, statErr := os.Stat(path)
	f.existed = statErr == nil
	return f.detections, f.err
}

func frags(texts ...string) []TextFragment {
	out := make([]TextFragment, 0, len(texts))
	for _, t := range texts {
		out = append(out, TextFragment{Text: t, Confidence: 0.9})
	}
	return out
}

// testCard is a landscape frame with a dark left half so reorientation keeps it.
func testCard() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 120; x++ {
			c := color.RGBA{R: 235, G: 235, B: 235, A: 255}
			if x < 60 {
				c = color.RGBA{R: 30, G: 30, B: 30, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
