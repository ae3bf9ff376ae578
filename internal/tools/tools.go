// Package tools holds the tool registry that routes MCP tool calls to their handlers and
// renders every handler failure as an error result.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/supabase-mcp/internal/metrics"
)

var (
	ErrInvalidParams   = errors.New("invalid parameters")
	ErrToolNotFound    = errors.New("method not found")
	ErrCLINotInstalled = errors.New("supabase cli is not installed")
)

// Tool is a named, schema-described operation.
type Tool interface {
	Name() string
	Description() string
	InputSchema() *jsonschema.Schema
	// Call validates args and runs the tool, returning the result text.
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

type RegistryConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
}

func (cfg *RegistryConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Registry struct {
	log   *slog.Logger
	clock clockwork.Clock
	tools map[string]Tool
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate registry config: %w", err)
	}
	return &Registry{
		log:   cfg.Logger,
		clock: cfg.Clock,
		tools: make(map[string]Tool),
	}, nil
}

func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("tool %q already registered", name)
	}
	schema := tool.InputSchema()
	if schema == nil || schema.Type != "object" {
		return fmt.Errorf("tool %q input schema must be an object", name)
	}
	r.tools[name] = tool
	return nil
}

// Tools returns the registered tools sorted by name.
func (r *Registry) Tools() []*mcp.Tool {
	out := make([]*mcp.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, &mcp.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Call routes a call by tool name. Only ErrToolNotFound is returned as an error; all tool
// failures are rendered into a result with IsError set.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	tool, ok := r.tools[name]
	if !ok {
		metrics.ToolCallsTotal.WithLabelValues("unknown", "not_found").Inc()
		return nil, fmt.Errorf("%w: unknown tool %q", ErrToolNotFound, name)
	}

	start := r.clock.Now()
	text, err := tool.Call(ctx, args)
	duration := r.clock.Since(start)
	metrics.ToolCallDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(name, statusFor(err)).Inc()
		r.log.Debug("tools: call failed", "tool", name, "duration", duration, "error", err)
		return ErrorResult(err), nil
	}
	metrics.ToolCallsTotal.WithLabelValues(name, "success").Inc()
	r.log.Debug("tools: call succeeded", "tool", name, "duration", duration, "bytes", len(text))

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil
}

// ErrorResult renders err as a failed tool result.
func ErrorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
		IsError: true,
	}
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, ErrCLINotInstalled):
		return "cli_missing"
	default:
		return "error"
	}
}

// DecodeArgs validates args against the resolved schema and decodes them into v. Missing
// arguments are treated as an empty object.
func DecodeArgs(schema *jsonschema.Resolved, args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if _, ok := instance.(map[string]any); !ok {
		return fmt.Errorf("%w: arguments must be an object", ErrInvalidParams)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
