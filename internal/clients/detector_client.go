/**
 * Detector Client - Card field region detection
 *
 * Uploads the oriented card image to the YOLO inference service and maps
 * its boxes onto detections. Class indices follow the detector's training
 * order (current_place, dob, ..., qr).
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
	"github.com/HenSanInDuty/ocr-cccd/internal/processor"
)

// DetectorClient handles communication with the region detection service
type DetectorClient struct {
	baseURL       string
	minConfidence float64
	httpClient    *http.Client
	logger        *logging.Logger
}

// DetectionBox is one box in the inference service response
type DetectionBox struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	Class      int     `json:"class"`
}

// DetectionResponse represents the inference service response
type DetectionResponse struct {
	Detections []DetectionBox `json:"detections"`
}

// NewDetectorClient creates a new detector client. Boxes below minConfidence are dropped.
func NewDetectorClient(baseURL string, minConfidence float64) *DetectorClient {
	return &DetectorClient{
		baseURL:       baseURL,
		minConfidence: minConfidence,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NewLogger("DetectorClient"),
	}
}

// Detect uploads the image at path and returns the detected regions in
// service order.
func (c *DetectorClient) Detect(ctx context.Context, path string) ([]processor.Detection, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/predict", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Source", "cccd-worker")
	req.Header.Set("X-Request-ID", fmt.Sprintf("detect-%s", uuid.NewString()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to detector failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned error status %d: %s", resp.StatusCode, string(respBody))
	}

	var result DetectionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	detections := make([]processor.Detection, 0, len(result.Detections))
	for _, d := range result.Detections {
		if d.Confidence < c.minConfidence {
			continue
		}
		detections = append(detections, processor.Detection{
			Box:        image.Rect(int(d.X1), int(d.Y1), int(d.X2), int(d.Y2)),
			ClassIndex: d.Class,
			Confidence: d.Confidence,
		})
	}

	c.logger.Debug("Detection complete",
		"returned", len(result.Detections),
		"kept", len(detections))

	return detections, nil
}

// HealthCheck verifies the detection service is available
func (c *DetectorClient) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, fmt.Sprintf("%s/health", c.baseURL))
}

func healthCheck(ctx context.Context, client *http.Client, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
