package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

// EmbedResult contains a face descriptor extracted from a single image.
type EmbedResult struct {
	Descriptor    []float32 `json:"descriptor"`
	FacesDetected int       `json:"faces_detected"`
}

// VerifyResult contains a 1:1 verification outcome.
type VerifyResult struct {
	Success    bool    `json:"success"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

// Client calls the face recognition microservice. Endpoints lists candidate
// base URLs tried in order; an attempt that fails at the transport level or
// answers 5xx falls through to the next candidate, and only after all
// candidates are exhausted does the call fail. A 4xx answer is a definitive
// response and stops the failover.
type Client struct {
	endpoints []string
	http      *http.Client
	logger    *zap.Logger
	skip      bool
}

// New creates a client. timeout bounds each individual endpoint attempt.
func New(endpoints []string, timeout time.Duration, logger *zap.Logger, skip bool) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoints: endpoints,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
		skip:      skip,
	}
}

// Embed extracts a face descriptor from a base64-encoded image. Zero or
// multiple detected faces map to ErrNoFaceDetected.
func (c *Client) Embed(ctx context.Context, imageBase64 string) (*EmbedResult, error) {
	if c.skip {
		return &EmbedResult{Descriptor: mockDescriptor(), FacesDetected: 1}, nil
	}
	var out struct {
		Success       bool      `json:"success"`
		Descriptor    []float32 `json:"descriptor"`
		FacesDetected int       `json:"faces_detected"`
		Message       string    `json:"message"`
	}
	if err := c.post(ctx, "/embed", map[string]string{"image": imageBase64}, &out); err != nil {
		return nil, err
	}
	if !out.Success || len(out.Descriptor) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoFaceDetected, out.Message)
	}
	if out.FacesDetected > 1 {
		return nil, appErrors.Clone(appErrors.ErrNoFaceDetected, fmt.Sprintf("found %d faces, exactly one required", out.FacesDetected))
	}
	return &EmbedResult{Descriptor: out.Descriptor, FacesDetected: out.FacesDetected}, nil
}

// RegisterFace enrolls a student's reference image with the recognizer.
func (c *Client) RegisterFace(ctx context.Context, studentID, imageBase64 string) error {
	if c.skip {
		return nil
	}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/register_face", map[string]string{"student_id": studentID, "image": imageBase64}, &out); err != nil {
		return err
	}
	if !out.Success {
		return appErrors.Clone(appErrors.ErrNoFaceDetected, out.Message)
	}
	return nil
}

// Verify runs a 1:1 verification of a live capture against the student's
// enrolled reference.
func (c *Client) Verify(ctx context.Context, studentID, imageBase64 string) (*VerifyResult, error) {
	if c.skip {
		return &VerifyResult{Success: true, Confidence: 0.95, Message: "verified (skip mode)"}, nil
	}
	var out VerifyResult
	if err := c.post(ctx, "/mark_attendance", map[string]string{"student_id": studentID, "image": imageBase64}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteStudentData removes the student's gallery entry from the recognizer.
func (c *Client) DeleteStudentData(ctx context.Context, studentID string) error {
	if c.skip {
		return nil
	}
	var out struct {
		Success bool `json:"success"`
	}
	return c.post(ctx, "/delete_student_data", map[string]string{"student_id": studentID}, &out)
}

// Health checks recognizer liveness against any candidate endpoint.
func (c *Client) Health(ctx context.Context) error {
	if c.skip {
		return nil
	}
	var lastErr error
	for _, base := range c.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return appErrors.Wrap(lastErr, appErrors.ErrBackendUnreachable.Code, appErrors.ErrBackendUnreachable.Status, "face service unavailable")
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal face request: %w", err)
	}

	var lastErr error
	for _, base := range c.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn("face endpoint attempt failed", zap.String("endpoint", base), zap.Error(err))
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("face service error %s: %s", resp.Status, string(raw))
			c.logger.Warn("face endpoint returned server error", zap.String("endpoint", base), zap.String("status", resp.Status))
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			raw, _ := io.ReadAll(resp.Body)
			return appErrors.Wrap(fmt.Errorf("%s", string(raw)), appErrors.ErrNoFaceDetected.Code, appErrors.ErrNoFaceDetected.Status, "face service rejected the capture")
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode face response: %w", err)
		}
		return nil
	}
	return appErrors.Wrap(lastErr, appErrors.ErrBackendUnreachable.Code, appErrors.ErrBackendUnreachable.Status, "all face service endpoints failed")
}

// mockDescriptor returns a deterministic 128-dim vector for skip mode.
func mockDescriptor() []float32 {
	vec := make([]float32, 128)
	for i := range vec {
		vec[i] = float32(i%10) / 10
	}
	return vec
}
