package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// TypeExtractCard is the asynq task type for card extraction jobs.
const TypeExtractCard = "extract-card"

// ExtractPayload is the job data for one extraction.
type ExtractPayload struct {
	JobID       string    `json:"jobId"`
	Variant     string    `json:"variant"`
	Mode        string    `json:"mode,omitempty"`
	Front       ImageData `json:"front,omitempty"`
	Back        ImageData `json:"back,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ImageData holds encoded image bytes. It marshals as base64 and also accepts
// the Node.js Buffer object form ({"type":"Buffer","data":[...]}).
type ImageData []byte

// MarshalJSON encodes the bytes as a base64 string.
func (d ImageData) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(d))
}

// UnmarshalJSON accepts a base64 string, a Buffer object or null.
func (d *ImageData) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal image data: %w", err)
	}

	switch v := raw.(type) {
	case nil:
		*d = nil

	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 image data: %w", err)
		}
		*d = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		buf := make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			buf[i] = byte(byteVal)
		}
		*d = buf

	default:
		return fmt.Errorf("image data must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}
