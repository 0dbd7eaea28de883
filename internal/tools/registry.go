// ABOUTME: Thread-safe registry mapping tool names to handlers with typed argument contracts.
// ABOUTME: Validates arguments before any external call so bad dispatches fail fast.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpena225/azure-ai-mailbox-agent/internal/agents"
)

// ErrUnknownTool indicates the requested tool is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrToolArgument indicates a required argument is missing or malformed.
var ErrToolArgument = errors.New("invalid tool argument")

// ErrToolAlreadyRegistered indicates a tool with the same name exists.
var ErrToolAlreadyRegistered = errors.New("tool already registered")

// Handler executes a tool call. Transport failures are encoded in the
// returned envelope rather than raised, so a handler never fails the run.
type Handler func(ctx context.Context, args map[string]string) *Envelope

// Param describes one argument in a tool's contract.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// Definition is the typed contract for a registered tool.
type Definition struct {
	Name        string
	Description string
	Params      []Param
}

// Schema renders the definition as the JSON-schema object the conversation
// service expects in a function tool declaration.
func (d Definition) Schema() map[string]any {
	properties := make(map[string]any, len(d.Params))
	required := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		properties[p.Name] = map[string]any{
			"type":        "string",
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// entry pairs a definition with its handler.
type entry struct {
	def     Definition
	handler Handler
}

// Registry maintains the set of registered tools. It is read-mostly after
// startup; registration is expected to happen before serving begins.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*entry),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool to the registry.
// Returns ErrToolAlreadyRegistered if the name is taken.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %q: handler is required", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, def.Name)
	}

	r.tools[def.Name] = &entry{def: def, handler: handler}
	r.logger.Info("tool registered", "tool_name", def.Name, "params", len(def.Params))
	return nil
}

// Invoke validates the arguments against the tool's contract and executes
// the handler. Validation failures return before any external call is made.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]string) (*Envelope, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	for _, p := range e.def.Params {
		if !p.Required {
			continue
		}
		if args[p.Name] == "" {
			return nil, fmt.Errorf("%w: %s requires %q", ErrToolArgument, name, p.Name)
		}
	}

	return e.handler(ctx, args), nil
}

// Definitions returns the function tool declarations for agent creation,
// one per registered tool.
func (r *Registry) Definitions() []agents.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]agents.ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, agents.ToolDefinition{
			Type: "function",
			Function: &agents.FunctionDefinition{
				Name:        e.def.Name,
				Description: e.def.Description,
				Parameters:  e.def.Schema(),
			},
		})
	}
	return defs
}

// ParseArguments decodes the JSON argument payload of a tool call into the
// string mapping the registry validates against. Non-string values are kept
// as their raw JSON rendering. Malformed payloads are argument errors.
func ParseArguments(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: decoding arguments: %v", ErrToolArgument, err)
	}

	args := make(map[string]string, len(fields))
	for name, value := range fields {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			args[name] = s
			continue
		}
		args[name] = string(value)
	}
	return args, nil
}
