package llm

import (
	"context"
	"encoding/json"
)

// Normalized finish reasons.
const (
	FinishStop          = "stop"
	FinishToolCalls     = "tool_calls"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
)

// ToolCallDelta is a fragment of a tool call. Fragments sharing an Index belong to the same call.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Chunk is one provider stream event. Any field may be empty.
type Chunk struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// ChunkStream yields chunks until Recv returns io.EOF.
type ChunkStream interface {
	Recv() (Chunk, error)
	Close() error
}

// StreamRequest is a single completion round.
type StreamRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
}

// Provider opens streaming completions against one backend.
type Provider interface {
	Name() string
	OpenStream(ctx context.Context, req StreamRequest) (ChunkStream, error)
}

// ToolExecutor runs tools requested by the model.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (any, error)
}
