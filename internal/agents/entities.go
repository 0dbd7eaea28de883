// ABOUTME: Entity types for the conversation service: agents, threads, runs, messages.
// ABOUTME: Message content is decoded once into a closed variant instead of probed per call site.

package agents

import (
	"encoding/json"
	"fmt"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run lifecycle states reported by the conversation service.
const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
)

// Terminal reports whether the status ends the run's lifecycle.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// Agent is a registered agent definition on the conversation service.
type Agent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Thread is the durable container for one conversation's message history.
type Thread struct {
	ID string `json:"id"`
}

// Run is one execution of the agent against a thread. It exists only for
// the duration of one turn and is never persisted locally.
type Run struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	Status         RunStatus       `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
	LastError      *RunError       `json:"last_error,omitempty"`
}

// RunError carries the service-reported failure detail for a run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RunError) String() string {
	if e == nil {
		return "unknown"
	}
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RequiredAction holds the pending tool calls raised by a run in
// requires_action. All of them must be answered in one submission.
type RequiredAction struct {
	Type              string             `json:"type"`
	SubmitToolOutputs *SubmitToolOutputs `json:"submit_tool_outputs,omitempty"`
}

// SubmitToolOutputs lists the tool calls awaiting outputs.
type SubmitToolOutputs struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ToolCall is an agent-issued request to execute a registered function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolOutput is the result submitted back for one tool call.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// ToolDefinition declares a function tool when creating an agent.
type ToolDefinition struct {
	Type     string              `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition describes a callable function and its parameter schema.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Message roles used by the conversation service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a thread's history.
type Message struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// ContentKind discriminates the closed set of content shapes a message
// can carry on the wire.
type ContentKind int

const (
	// ContentOpaque is content that matched no known shape; Raw holds the bytes.
	ContentOpaque ContentKind = iota
	// ContentText is a single direct text value.
	ContentText
	// ContentSequence is an ordered list of content blocks.
	ContentSequence
)

// MessageContent is the tagged variant for message payloads. The shape is
// resolved once during JSON decoding so consumers match on Kind instead of
// probing structure at each call site.
type MessageContent struct {
	Kind   ContentKind
	Text   string
	Blocks []ContentBlock
	Raw    json.RawMessage
}

// ContentBlock is one unit of a message's payload. Text is empty for
// blocks that carry no extractable text (images, files, unknown types).
type ContentBlock struct {
	Type string
	Text string
	Raw  json.RawMessage
}

// UnmarshalJSON resolves the content shape: a JSON array becomes a
// sequence, a bare string or text-bearing object becomes direct text, and
// anything else is kept opaque.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	c.Raw = append(c.Raw[:0], data...)

	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err == nil {
		c.Kind = ContentSequence
		c.Blocks = blocks
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Kind = ContentText
		c.Text = s
		return nil
	}

	// A single object may still be a lone text block
	var block ContentBlock
	if err := json.Unmarshal(data, &block); err == nil && block.Text != "" {
		c.Kind = ContentText
		c.Text = block.Text
		return nil
	}

	c.Kind = ContentOpaque
	return nil
}

// UnmarshalJSON accepts both block encodings seen on the wire: a nested
// text object {"type":"text","text":{"value":"..."}} and a flat string
// {"text":"..."}.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	b.Raw = append(b.Raw[:0], data...)

	var probe struct {
		Type string          `json:"type"`
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	b.Type = probe.Type

	if len(probe.Text) == 0 {
		return nil
	}

	var flat string
	if err := json.Unmarshal(probe.Text, &flat); err == nil {
		b.Text = flat
		return nil
	}

	var nested struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(probe.Text, &nested); err == nil {
		b.Text = nested.Value
	}
	return nil
}

// fallbackText is returned when a message carries nothing extractable.
// The caller must always receive some reply, so extraction never fails.
const fallbackText = "(no readable response)"

// ExtractText recovers the assistant's plain-text answer from a message.
// Sequences yield the first text-bearing block, direct text is returned
// as-is, and anything else degrades to a string rendering of the raw
// content. The result is always non-empty.
func ExtractText(msg *Message) string {
	if msg == nil {
		return fallbackText
	}

	switch msg.Content.Kind {
	case ContentText:
		if msg.Content.Text != "" {
			return msg.Content.Text
		}
	case ContentSequence:
		for _, block := range msg.Content.Blocks {
			if block.Text != "" {
				return block.Text
			}
		}
	}

	if raw := string(msg.Content.Raw); raw != "" && raw != "null" {
		return raw
	}
	return fallbackText
}
