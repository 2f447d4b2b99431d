package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/memohai/replyd/internal/llm"
)

// FuncTool adapts a typed Go function into a Tool. The parameter schema is inferred from T.
type FuncTool[T any] struct {
	def llm.ToolDefinition
	fn  func(ctx context.Context, args T) (any, error)
}

// NewFuncTool infers the JSON schema of T and wraps fn.
func NewFuncTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) (*FuncTool[T], error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("tool %s: infer schema: %w", name, err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: encode schema: %w", name, err)
	}
	params := map[string]any{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("tool %s: decode schema: %w", name, err)
	}
	return &FuncTool[T]{
		def: llm.ToolDefinition{Name: name, Description: description, Parameters: params},
		fn:  fn,
	}, nil
}

func (t *FuncTool[T]) Definition() llm.ToolDefinition { return t.def }

// Call decodes args into T and invokes the function.
func (t *FuncTool[T]) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var v T
	if len(args) > 0 {
		if err := json.Unmarshal(args, &v); err != nil {
			return nil, fmt.Errorf("invalid arguments %q: %w", string(args), err)
		}
	}
	return t.fn(ctx, v)
}
