package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/memohai/replyd/internal/logger"
	"github.com/memohai/replyd/internal/stream"
)

// DefaultMaxToolIterations bounds the completion rounds of one Stream call.
const DefaultMaxToolIterations = 10

// Options configures one Stream call.
type Options struct {
	Temperature       float64
	Tools             []ToolDefinition
	MaxToolIterations int
}

// EmitFunc receives stream actions in generation order. A non-nil error aborts the stream.
type EmitFunc func(stream.StreamAction) error

// Gateway streams model output and runs the tool-call loop.
type Gateway struct {
	resolver *Resolver
	tools    ToolExecutor
	logger   *slog.Logger
}

// NewGateway creates a gateway. tools may be nil when no tools are offered.
func NewGateway(log *slog.Logger, resolver *Resolver, tools ToolExecutor) *Gateway {
	return &Gateway{
		resolver: resolver,
		tools:    tools,
		logger:   logger.Component(log, "model_gateway"),
	}
}

// Stream runs completion rounds for modelID against conv, emitting Text and Think actions as they
// arrive and a FunctionCall action before each tool runs. Tool turns are appended to conv.
// Reaching MaxToolIterations ends the loop without error.
func (g *Gateway) Stream(ctx context.Context, modelID string, conv *Conversation, opts Options, emit EmitFunc) error {
	provider, model, err := g.resolver.Resolve(modelID)
	if err != nil {
		return &TransportError{Provider: "-", Model: modelID, Err: err}
	}
	maxRounds := opts.MaxToolIterations
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolIterations
	}

	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, calls, err := g.round(ctx, provider, model, conv, opts, emit)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			return nil
		}
		if round == maxRounds {
			g.logger.Warn("tool iteration limit reached",
				slog.String("model", modelID),
				slog.Int("max_tool_iterations", maxRounds),
				slog.Int("pending_calls", len(calls)))
			return nil
		}
		conv.Append(Message{Role: RoleAssistant, Content: content, ToolCalls: calls})
		for _, call := range calls {
			if err := emit(stream.FunctionCall(call.Name, call.Arguments)); err != nil {
				return err
			}
			conv.Append(g.runTool(ctx, call))
		}
	}
	return nil
}

// round performs one completion call and returns the text it produced and any assembled tool calls.
func (g *Gateway) round(ctx context.Context, provider Provider, model string, conv *Conversation, opts Options, emit EmitFunc) (string, []ToolCall, error) {
	s, err := provider.OpenStream(ctx, StreamRequest{
		Model:       model,
		Messages:    conv.Snapshot(),
		Tools:       opts.Tools,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", nil, g.classify(provider.Name(), model, err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			g.logger.Debug("close stream", slog.Any("error", cerr))
		}
	}()

	var text strings.Builder
	buf := newToolCallBuffer()
	finish := ""
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return text.String(), nil, g.classify(provider.Name(), model, err)
		}
		if chunk.Reasoning != "" {
			if err := emit(stream.Think(chunk.Reasoning)); err != nil {
				return text.String(), nil, err
			}
		}
		if chunk.Content != "" {
			text.WriteString(chunk.Content)
			if err := emit(stream.Text(chunk.Content)); err != nil {
				return text.String(), nil, err
			}
		}
		buf.add(chunk.ToolCalls)
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}

	if finish == FinishContentFilter {
		return text.String(), nil, &ContentFilterError{Provider: provider.Name(), Model: model, Reason: "finish_reason=" + finish}
	}
	if buf.empty() {
		return text.String(), nil, nil
	}
	return text.String(), buf.assemble(), nil
}

func (g *Gateway) runTool(ctx context.Context, call ToolCall) Message {
	turn := Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name}
	if g.tools == nil {
		turn.Content = "Error: " + ErrUnknownTool.Error() + " " + call.Name
		return turn
	}
	result, err := g.tools.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		terr := &ToolExecutionError{Tool: call.Name, Err: err}
		g.logger.Warn("tool failed", slog.String("tool", call.Name), slog.Any("error", terr))
		turn.Content = "Error: " + err.Error()
		return turn
	}
	turn.Content = formatToolResult(result)
	return turn
}

func formatToolResult(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case []byte:
		return string(r)
	case json.RawMessage:
		return string(r)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// classify keeps content-filter errors distinguishable and wraps everything else as a transport failure.
func (g *Gateway) classify(provider, model string, err error) error {
	var cf *ContentFilterError
	if errors.As(err, &cf) {
		if cf.Provider == "" {
			cf.Provider = provider
		}
		if cf.Model == "" {
			cf.Model = model
		}
		return cf
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransportError{Provider: provider, Model: model, Err: err}
}
