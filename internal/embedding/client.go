// Package embedding talks to the face-embedding service that turns a camera
// frame into a descriptor vector.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/kiosk/internal/config"
)

const defaultURL = "http://localhost:8000"

// ErrDimensionMismatch is returned when the service answers with a vector of unexpected length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Extractor turns a frame into a face embedding. A nil vector with a nil
// error means no face was found in the frame.
type Extractor interface {
	Extract(ctx context.Context, frame []byte) ([]float32, error)
}

// Client computes face embeddings using the embedding service.
type Client struct {
	baseURL string
	dim     int
	maxSide int
	client  *http.Client
}

// NewClient creates a new embedding client.
func NewClient(baseURL string, dim, maxSide int) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		maxSide: maxSide,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientFromConfig creates a client from the embedding section of the configuration.
func NewClientFromConfig(cfg *config.EmbeddingConfig) *Client {
	return NewClient(cfg.URL, cfg.Dim, cfg.MaxSide)
}

// Face is a single detected face.
type Face struct {
	Index     int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetScore  float64   `json:"det_score"`
}

// FaceResponse is the body returned by the face endpoint.
type FaceResponse struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
}

func (c *Client) postFrame(ctx context.Context, endpoint string, frame []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame"`)
	h.Set("Content-Type", DetectMIMEType(frame))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return nil, fmt.Errorf("failed to write frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// DetectFaces uploads the frame, downscaled to the configured maximum side, and
// returns every face the service found.
func (c *Client) DetectFaces(ctx context.Context, frame []byte) (*FaceResponse, error) {
	prepared, err := PrepareFrame(frame, c.maxSide)
	if err != nil {
		return nil, err
	}
	body, err := c.postFrame(ctx, "/embed/face", prepared)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// Extract returns the embedding of the most prominent face in the frame, or
// nil when the frame holds no face.
func (c *Client) Extract(ctx context.Context, frame []byte) ([]float32, error) {
	resp, err := c.DetectFaces(ctx, frame)
	if err != nil {
		return nil, err
	}
	face := PrimaryFace(resp.Faces)
	if face == nil || len(face.Embedding) == 0 {
		return nil, nil
	}
	if c.dim > 0 && len(face.Embedding) != c.dim {
		return nil, fmt.Errorf("expected %d dimensions, got %d: %w", c.dim, len(face.Embedding), ErrDimensionMismatch)
	}
	return face.Embedding, nil
}

// DetectMIMEType detects the MIME type from the leading bytes of an image.
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case data[0] == 0x42 && data[1] == 0x4D:
		return "image/bmp"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	}
	return "application/octet-stream"
}
