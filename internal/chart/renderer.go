// ABOUTME: HTTP client for the external chart rendering service.
// ABOUTME: Posts a chart request and returns the rendered image as base64.

package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrRenderFailed indicates the rendering service refused or failed to
// produce an image.
var ErrRenderFailed = errors.New("chart render failed")

// DefaultTimeout bounds a single render call.
const DefaultTimeout = 15 * time.Second

// Renderer calls the chart rendering service. Render failures are
// reported to the caller but are expected to be treated as non-fatal:
// a missing chart never fails a turn.
type Renderer struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger
}

// RendererConfig holds the settings for a Renderer.
type RendererConfig struct {
	// Endpoint is the full URL of the render operation.
	Endpoint string

	// Timeout bounds each render call. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// NewRenderer creates a renderer for the given service endpoint.
func NewRenderer(cfg RendererConfig, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Renderer{
		endpoint: cfg.Endpoint,
		client:   client,
		timeout:  timeout,
		logger:   logger.With("component", "chart-renderer"),
	}
}

type renderResponse struct {
	ImageBase64 string `json:"image_base64"`
}

// Render posts the chart request and returns the base64-encoded image.
func (r *Renderer) Render(ctx context.Context, req *Request) (string, error) {
	if req == nil {
		return "", fmt.Errorf("%w: nil request", ErrRenderFailed)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrRenderFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: service returned %d", ErrRenderFailed, resp.StatusCode)
	}

	var decoded renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRenderFailed, err)
	}
	if decoded.ImageBase64 == "" {
		return "", fmt.Errorf("%w: empty image in response", ErrRenderFailed)
	}
	return decoded.ImageBase64, nil
}
