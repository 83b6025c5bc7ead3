/**
 * OCR Service Client - Remote text recognition
 *
 * Delegates line recognition to an OCR sidecar (EasyOCR-compatible).
 * Images are sent base64-encoded as PNG; the service answers with one
 * quadrilateral, text and confidence per line.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
	"github.com/HenSanInDuty/ocr-cccd/internal/processor"
)

// OCRServiceClient handles communication with the OCR sidecar
type OCRServiceClient struct {
	baseURL    string
	languages  []string
	httpClient *http.Client
	logger     *logging.Logger
}

// OCRRequest represents a request to recognize text in an image
type OCRRequest struct {
	Image     string   `json:"image"`  // Base64 encoded PNG
	Format    string   `json:"format"` // always "base64"
	Languages []string `json:"languages"`
}

// OCRResponse represents the OCR sidecar response
type OCRResponse struct {
	Success bool    `json:"success"`
	Data    OCRData `json:"data"`
	Message string  `json:"message"`
}

// OCRData contains the recognized lines
type OCRData struct {
	Fragments      []OCRFragment `json:"fragments"`
	ProcessingTime int64         `json:"processingTime"` // milliseconds
}

// OCRFragment is one recognized line; Box lists four [x, y] corners clockwise
// from the top-left.
type OCRFragment struct {
	Box        [4][2]float64 `json:"box"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
}

// NewOCRServiceClient creates a new OCR sidecar client
func NewOCRServiceClient(baseURL string, languages []string) *OCRServiceClient {
	if len(languages) == 0 {
		languages = []string{"vi"}
	}
	return &OCRServiceClient{
		baseURL:   baseURL,
		languages: languages,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.NewLogger("OCRServiceClient"),
	}
}

// Recognize sends img to the sidecar and returns its lines in service order.
func (c *OCRServiceClient) Recognize(ctx context.Context, img image.Image) ([]processor.TextFragment, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	reqBody, err := json.Marshal(&OCRRequest{
		Image:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		Format:    "base64",
		Languages: c.languages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/ocr", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "cccd-worker")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("ocr-%s", uuid.NewString()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to OCR service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCR service returned error status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp OCRResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !ocrResp.Success {
		return nil, fmt.Errorf("OCR service operation failed: %s", ocrResp.Message)
	}

	offset := img.Bounds().Min
	fragments := make([]processor.TextFragment, 0, len(ocrResp.Data.Fragments))
	for _, f := range ocrResp.Data.Fragments {
		var quad [4]image.Point
		for i, p := range f.Box {
			quad[i] = image.Pt(int(p[0]), int(p[1])).Add(offset)
		}
		fragments = append(fragments, processor.TextFragment{
			Quad:       quad,
			Text:       f.Text,
			Confidence: f.Confidence,
		})
	}

	c.logger.Debug("Text recognition complete",
		"lines", len(fragments),
		"processingTime", ocrResp.Data.ProcessingTime)

	return fragments, nil
}

// HealthCheck verifies the OCR service is available
func (c *OCRServiceClient) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, fmt.Sprintf("%s/health", c.baseURL))
}
