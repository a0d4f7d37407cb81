package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/video"
)

// Client is an HTTP client for a remote YOLO inference service
type Client struct {
	serviceURL string
	httpClient *http.Client
	logger     *logger.Logger
	params     Params
	retries    int
	retryDelay time.Duration
}

// ClientConfig contains configuration for the inference client
type ClientConfig struct {
	ServiceURL string
	Timeout    time.Duration
	Params     Params
	Retries    int
	RetryDelay time.Duration
}

// NewClient creates a new inference service client
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Params == (Params{}) {
		config.Params = DefaultParams()
	}

	return &Client{
		serviceURL: strings.TrimRight(config.ServiceURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:     log,
		params:     config.Params,
		retries:    config.Retries,
		retryDelay: config.RetryDelay,
	}
}

// Name returns the backend name
func (c *Client) Name() string {
	return BackendRemote
}

// Detect implements Detector using the configured retry policy
func (c *Client) Detect(ctx context.Context, frame *video.Frame) ([]Box, error) {
	resp, err := c.InferWithRetry(ctx, frame, c.retries, c.retryDelay)
	if err != nil {
		return nil, err
	}
	return resp.Boxes(), nil
}

// Infer performs inference on a single frame
func (c *Client) Infer(ctx context.Context, frame *video.Frame) (*InferenceResponse, error) {
	conf := c.params.ConfidenceThreshold
	iou := c.params.IoUThreshold

	req := InferenceRequest{
		Image:               base64.StdEncoding.EncodeToString(frame.Data),
		ConfidenceThreshold: &conf,
		IoUThreshold:        &iou,
		MaxDetections:       c.params.MaxDetections,
	}

	return c.inferRequest(ctx, req)
}

// inferRequest performs a single inference request
func (c *Client) inferRequest(ctx context.Context, req InferenceRequest) (*InferenceResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/inference", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	requestDuration := time.Since(startTime)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn(
			"Inference service returned error",
			"status", resp.StatusCode,
			"response", string(body),
		)
		return nil, fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var inferenceResp InferenceResponse
	if err := json.Unmarshal(body, &inferenceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug(
		"Inference completed",
		"detection_count", len(inferenceResp.BoundingBoxes),
		"inference_time_ms", inferenceResp.InferenceTimeMs,
		"request_duration_ms", requestDuration.Milliseconds(),
	)

	return &inferenceResp, nil
}

// InferWithRetry performs inference with retry logic
func (c *Client) InferWithRetry(
	ctx context.Context,
	frame *video.Frame,
	maxRetries int,
	retryDelay time.Duration,
) (*InferenceResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug(
				"Retrying inference",
				"attempt", attempt,
				"max_retries", maxRetries,
				"frame", frame.Index,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		resp, err := c.Infer(ctx, frame)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		c.logger.Warn(
			"Inference attempt failed",
			"attempt", attempt+1,
			"frame", frame.Index,
			"error", err,
		)
	}

	if maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("inference failed after %d retries: %w", maxRetries, lastErr)
}

// HealthCheck checks if the inference service is ready
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health/ready", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service health check failed: status %d", resp.StatusCode)
	}

	return nil
}
