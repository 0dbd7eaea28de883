// ABOUTME: Drives a run from submission to a terminal state, servicing tool calls on the way.
// ABOUTME: Owns the queued/in_progress/requires_action/completed/failed lifecycle for one turn.

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jpena225/azure-ai-mailbox-agent/internal/agents"
	"github.com/jpena225/azure-ai-mailbox-agent/internal/tools"
)

// ErrEmptyInput indicates a blank turn was rejected before any external call.
var ErrEmptyInput = errors.New("message cannot be empty")

// ErrRunFailed indicates the conversation service reported a failed run.
// The wrapped message carries the last-known service-reported detail.
var ErrRunFailed = errors.New("run failed")

// ConversationService defines what the driver needs from the agents client.
type ConversationService interface {
	CreateMessage(ctx context.Context, threadID, role, content string) (*agents.Message, error)
	CreateRun(ctx context.Context, threadID, agentID string) (*agents.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*agents.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []agents.ToolOutput) (*agents.Run, error)
	ListMessages(ctx context.Context, threadID string) ([]*agents.Message, error)
}

// ToolInvoker defines what the driver needs from the tool registry.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]string) (*tools.Envelope, error)
}

// Config contains configuration options for the Driver.
type Config struct {
	Service ConversationService
	Tools   ToolInvoker
	// AgentID is the agent every run executes as.
	AgentID string
	// PollInterval is the wait between run status checks. Defaults to 500ms.
	PollInterval time.Duration
	// RunTimeout bounds one whole turn. Defaults to 2m.
	RunTimeout time.Duration
	Logger     *slog.Logger
}

// Driver posts a user turn into a thread and owns the run's lifecycle
// until it reaches a terminal state.
type Driver struct {
	service      ConversationService
	tools        ToolInvoker
	agentID      string
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       *slog.Logger
}

// NewDriver creates a Driver with the given configuration.
func NewDriver(cfg Config) *Driver {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 500 * time.Millisecond
	}
	runTimeout := cfg.RunTimeout
	if runTimeout == 0 {
		runTimeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		service:      cfg.Service,
		tools:        cfg.Tools,
		agentID:      cfg.AgentID,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
		logger:       logger.With("component", "runner"),
	}
}

// ToolCallRecord logs one tool invocation made during a run.
type ToolCallRecord struct {
	CallID     string
	Name       string
	StatusCode int
}

// Result holds the outcome of one completed turn.
type Result struct {
	Reply     string
	RunID     string
	ToolCalls []ToolCallRecord
}

// Run submits the user text into the thread, starts a run, and drives it
// to completion. Tool calls raised in requires_action are serviced through
// the registry, each exactly once, and all outputs from one episode are
// submitted together before the run resumes.
func (d *Driver) Run(ctx context.Context, threadID, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	ctx, cancel := context.WithTimeout(ctx, d.runTimeout)
	defer cancel()

	if _, err := d.service.CreateMessage(ctx, threadID, agents.RoleUser, text); err != nil {
		return nil, fmt.Errorf("posting user message: %w", err)
	}

	run, err := d.service.CreateRun(ctx, threadID, d.agentID)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	d.logger.Debug("run started", "thread_id", threadID, "run_id", run.ID)

	result := &Result{RunID: run.ID}

	for {
		switch run.Status {
		case agents.RunCompleted:
			reply, err := d.latestAssistantReply(ctx, threadID)
			if err != nil {
				return nil, err
			}
			result.Reply = reply
			d.logger.Info("run completed",
				"thread_id", threadID,
				"run_id", run.ID,
				"tool_calls", len(result.ToolCalls),
			)
			return result, nil

		case agents.RunFailed:
			return nil, fmt.Errorf("%w: %s", ErrRunFailed, run.LastError.String())

		case agents.RunCancelled, agents.RunExpired:
			return nil, fmt.Errorf("%w: run %s", ErrRunFailed, run.Status)

		case agents.RunRequiresAction:
			run, err = d.serviceToolCalls(ctx, threadID, run, result)
			if err != nil {
				return nil, err
			}

		default:
			// queued, in_progress, and anything the service adds later
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrRunFailed, ctx.Err())
			case <-time.After(d.pollInterval):
			}
			run, err = d.service.GetRun(ctx, threadID, run.ID)
			if err != nil {
				return nil, fmt.Errorf("polling run: %w", err)
			}
		}
	}
}

// serviceToolCalls resolves every pending tool call of one requires_action
// episode and submits all outputs together. Distinct calls run
// concurrently; none is invoked more than once. Local dispatch failures
// (unknown tool, bad arguments) become failed tool results inside the run
// rather than errors raised to the caller.
func (d *Driver) serviceToolCalls(ctx context.Context, threadID string, run *agents.Run, result *Result) (*agents.Run, error) {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return nil, fmt.Errorf("%w: requires_action without pending tool calls", ErrRunFailed)
	}

	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	outputs := make([]agents.ToolOutput, len(calls))
	records := make([]ToolCallRecord, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call agents.ToolCall) {
			defer wg.Done()
			env := d.invoke(ctx, call)
			outputs[i] = agents.ToolOutput{
				ToolCallID: call.ID,
				Output:     env.Encode(),
			}
			records[i] = ToolCallRecord{
				CallID:     call.ID,
				Name:       call.Function.Name,
				StatusCode: env.StatusCode,
			}
		}(i, call)
	}
	wg.Wait()

	result.ToolCalls = append(result.ToolCalls, records...)

	next, err := d.service.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
	if err != nil {
		return nil, fmt.Errorf("submitting tool outputs: %w", err)
	}
	return next, nil
}

// invoke dispatches one tool call through the registry. Every outcome maps
// to an envelope: registry validation failures get a synthetic 400 so the
// agent can see what went wrong and react in-conversation.
func (d *Driver) invoke(ctx context.Context, call agents.ToolCall) *tools.Envelope {
	d.logger.Info("servicing tool call",
		"call_id", call.ID,
		"tool_name", call.Function.Name,
	)

	args, err := tools.ParseArguments(call.Function.Arguments)
	if err != nil {
		return failedDispatch(err)
	}

	env, err := d.tools.Invoke(ctx, call.Function.Name, args)
	if err != nil {
		d.logger.Warn("tool dispatch rejected",
			"call_id", call.ID,
			"tool_name", call.Function.Name,
			"error", err,
		)
		return failedDispatch(err)
	}
	return env
}

// failedDispatch wraps a local dispatch error as a failed tool result.
func failedDispatch(err error) *tools.Envelope {
	return &tools.Envelope{
		StatusCode: 400,
		Content:    err.Error(),
		Headers:    map[string]string{},
	}
}

// latestAssistantReply extracts the newest assistant message's text.
// A completed run with no assistant message degrades to a fixed reply;
// the caller must always receive something.
func (d *Driver) latestAssistantReply(ctx context.Context, threadID string) (string, error) {
	messages, err := d.service.ListMessages(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("listing messages: %w", err)
	}

	// Messages arrive newest first
	for _, msg := range messages {
		if msg.Role == agents.RoleAssistant {
			return agents.ExtractText(msg), nil
		}
	}
	return "No response from agent", nil
}
