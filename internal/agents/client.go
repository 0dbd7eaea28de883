// ABOUTME: REST client for the conversation service (agents, threads, messages, runs).
// ABOUTME: Wraps the project endpoint with api-version negotiation and error decoding.

package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound indicates the requested entity does not exist on the service.
var ErrNotFound = errors.New("not found")

// DefaultAPIVersion is sent as the api-version query parameter unless
// overridden through ClientConfig.
const DefaultAPIVersion = "2025-05-01"

// ClientConfig contains configuration options for the Client.
type ClientConfig struct {
	// Endpoint is the project base URL, e.g.
	// https://example.services.ai.azure.com/api/projects/demo
	Endpoint string
	// APIKey authenticates requests. Sent as a bearer token.
	APIKey string
	// APIVersion overrides DefaultAPIVersion when set.
	APIVersion string
	// HTTPClient overrides the default client (used by tests).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the conversation service over REST.
type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a conversation service client.
// Returns an error if the endpoint is missing or unparseable, so callers
// can distinguish a misconfigured service from runtime failures.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("conversation service endpoint is required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		apiVersion: apiVersion,
		httpClient: httpClient,
		logger:     logger.With("component", "agents"),
	}, nil
}

// AgentSpec describes the agent to create on the service.
type AgentSpec struct {
	Model        string           `json:"model"`
	Name         string           `json:"name"`
	Instructions string           `json:"instructions"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// CreateAgent registers a new agent definition with the service.
func (c *Client) CreateAgent(ctx context.Context, spec AgentSpec) (*Agent, error) {
	var agent Agent
	if err := c.do(ctx, http.MethodPost, "/assistants", spec, &agent); err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	c.logger.Info("agent created", "agent_id", agent.ID, "name", agent.Name, "model", agent.Model)
	return &agent, nil
}

// DeleteAgent removes an agent definition from the service.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	if err := c.do(ctx, http.MethodDelete, "/assistants/"+url.PathEscape(agentID), nil, nil); err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	c.logger.Info("agent deleted", "agent_id", agentID)
	return nil
}

// CreateThread creates a new empty conversation thread.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var thread Thread
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}
	c.logger.Debug("thread created", "thread_id", thread.ID)
	return &thread, nil
}

// DeleteThread removes a thread and its history from the service.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	if err := c.do(ctx, http.MethodDelete, "/threads/"+url.PathEscape(threadID), nil, nil); err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	c.logger.Debug("thread deleted", "thread_id", threadID)
	return nil
}

// CreateMessage appends a message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	body := struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: role, Content: content}

	var msg Message
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return &msg, nil
}

// CreateRun starts a run of the given agent against the thread's history.
func (c *Client) CreateRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	body := struct {
		AssistantID string `json:"assistant_id"`
	}{AssistantID: agentID}

	var run Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	if err := c.do(ctx, http.MethodPost, path, body, &run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := c.do(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return &run, nil
}

// SubmitToolOutputs answers a requires_action run with the results of all
// pending tool calls. The service rejects partial submissions, so callers
// must include one output per pending call.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	body := struct {
		ToolOutputs []ToolOutput `json:"tool_outputs"`
	}{ToolOutputs: outputs}

	var run Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/submit_tool_outputs"
	if err := c.do(ctx, http.MethodPost, path, body, &run); err != nil {
		return nil, fmt.Errorf("submitting tool outputs: %w", err)
	}
	return &run, nil
}

// ListMessages returns a thread's messages, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]*Message, error) {
	var out struct {
		Data []*Message `json:"data"`
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return out.Data, nil
}

// serviceError is the error envelope the service returns on non-2xx responses.
type serviceError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do performs one request against the service, encoding body as JSON when
// present and decoding the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	reqURL := c.endpoint + path + "?api-version=" + url.QueryEscape(c.apiVersion)

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readServiceError(resp.Body)
		return fmt.Errorf("%s %s: service returned %d: %s", method, path, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readServiceError pulls the error message out of a failed response body,
// falling back to the raw body when it is not the standard envelope.
func readServiceError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var se serviceError
	if err := json.Unmarshal(data, &se); err == nil && se.Error.Message != "" {
		return se.Error.Message
	}
	return strings.TrimSpace(string(data))
}
