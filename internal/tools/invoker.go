// ABOUTME: Outbound HTTP caller for data-retrieval tool endpoints.
// ABOUTME: Normalizes every outcome into a uniform envelope and never leaks the function key.

package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusTransportFailure is the synthetic status code recorded in the
// envelope when the call never produced an HTTP response (timeout, DNS
// failure, connection refused). It is deliberately outside the 2xx range
// so the agent sees the call as failed without the run crashing.
const StatusTransportFailure = 599

// secretPlaceholder replaces the function key anywhere it would otherwise
// appear in an envelope or log line.
const secretPlaceholder = "***"

// maxResponseBytes caps how much of a tool response body is read.
const maxResponseBytes = 1 << 20 // 1 MiB

// Envelope is the uniform result shape returned by every registered tool,
// regardless of the semantics of the underlying call.
type Envelope struct {
	StatusCode int               `json:"status_code"`
	Content    any               `json:"content"`
	Headers    map[string]string `json:"headers"`
	URL        string            `json:"url"`
}

// OK reports whether the underlying call succeeded.
func (e *Envelope) OK() bool {
	return e.StatusCode >= 200 && e.StatusCode <= 299
}

// Encode renders the envelope as the JSON string submitted as a tool
// output. Encoding failures degrade to a minimal status-only envelope.
func (e *Envelope) Encode() string {
	data, err := json.Marshal(e)
	if err != nil {
		return `{"status_code":` + "599" + `,"content":"envelope encoding failed"}`
	}
	return string(data)
}

// CallerConfig contains configuration options for the Caller.
type CallerConfig struct {
	// Secret is the function key appended to every call as the code
	// query parameter. Never written to envelopes or logs.
	Secret string
	// Timeout bounds each outbound call. Defaults to 10s.
	Timeout time.Duration
	// HTTPClient overrides the default client (used by tests).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Caller performs the outbound HTTP GET for a requested tool.
type Caller struct {
	secret     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCaller creates a Caller with the given configuration.
func NewCaller(cfg CallerConfig) *Caller {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{
		secret:     cfg.Secret,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger.With("component", "invoker"),
	}
}

// Call performs a GET against the endpoint with the given query parameters
// plus the authentication code parameter. Transport failures and timeouts
// produce a synthetic non-2xx envelope instead of an error, so the run
// driver can report a tool failure back into the conversation.
func (c *Caller) Call(ctx context.Context, endpoint string, params map[string]string) *Envelope {
	query := url.Values{}
	for name, value := range params {
		query.Set(name, value)
	}
	safeURL := endpoint + "?" + query.Encode() // envelope URL, secret omitted
	if c.secret != "" {
		query.Set("code", c.secret)
	}
	callURL := endpoint + "?" + query.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callURL, nil)
	if err != nil {
		return c.failure(safeURL, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.failure(safeURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.failure(safeURL, err)
	}

	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}

	c.logger.Debug("tool call completed",
		"url", safeURL,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &Envelope{
		StatusCode: resp.StatusCode,
		Content:    decodeBody(resp.Header.Get("Content-Type"), body),
		Headers:    headers,
		URL:        safeURL,
	}
}

// failure builds the synthetic envelope for a call that produced no HTTP
// response. The error text is scrubbed of the secret before it is recorded.
func (c *Caller) failure(safeURL string, err error) *Envelope {
	detail := c.redact(err.Error())
	c.logger.Warn("tool call failed", "url", safeURL, "error", detail)
	return &Envelope{
		StatusCode: StatusTransportFailure,
		Content:    detail,
		Headers:    map[string]string{},
		URL:        safeURL,
	}
}

// redact removes the secret from a string that may echo the request URL,
// covering both the raw and the query-escaped form.
func (c *Caller) redact(s string) string {
	if c.secret == "" {
		return s
	}
	s = strings.ReplaceAll(s, c.secret, secretPlaceholder)
	if escaped := url.QueryEscape(c.secret); escaped != c.secret {
		s = strings.ReplaceAll(s, escaped, secretPlaceholder)
	}
	return s
}

// decodeBody parses a JSON response body into structured content and keeps
// everything else as plain text, matching how the two tool endpoints differ.
func decodeBody(contentType string, body []byte) any {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		var content any
		if err := json.Unmarshal(body, &content); err == nil {
			return content
		}
	}
	return string(body)
}
