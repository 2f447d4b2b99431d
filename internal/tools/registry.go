// Package tools holds the tools offered to models and the executor that runs them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/memohai/replyd/internal/llm"
	"github.com/memohai/replyd/internal/logger"
)

// Tool is a function the model may call.
type Tool interface {
	Definition() llm.ToolDefinition
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry is an immutable name-to-tool table built once at startup.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry builds a registry from the given tools. Duplicate names are rejected.
func NewRegistry(log *slog.Logger, tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:  make(map[string]Tool, len(tools)),
		logger: logger.Component(log, "tools"),
	}
	for _, t := range tools {
		name := t.Definition().Name
		if name == "" {
			return nil, fmt.Errorf("tool without a name: %T", t)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Definitions lists tool definitions in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Definition())
	}
	return out
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llm.ErrUnknownTool, name)
	}
	r.logger.Debug("tool call", slog.String("tool", name), slog.Int("args_bytes", len(args)))
	return t.Call(ctx, args)
}

var _ llm.ToolExecutor = (*Registry)(nil)
