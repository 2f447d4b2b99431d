package llm

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider streams from the Anthropic Messages API.
type AnthropicProvider struct {
	name      string
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicProvider creates a provider. An empty baseURL uses the SDK default.
func NewAnthropicProvider(name, apiKey, baseURL string, maxTokens int) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{
		name:      name,
		client:    anthropic.NewClient(opts...),
		maxTokens: int64(maxTokens),
	}
}

func (p *AnthropicProvider) Name() string { return p.name }

// OpenStream starts a streaming Messages call.
func (p *AnthropicProvider) OpenStream(ctx context.Context, req StreamRequest) (ChunkStream, error) {
	msgs, system := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: p.maxTokens,
		Messages:  msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}
	return &anthropicStream{stream: p.client.Messages.NewStreaming(ctx, params)}, nil
}

type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *anthropicStream) Recv() (Chunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return Chunk{}, err
		}
		return Chunk{}, io.EOF
	}
	var chunk Chunk
	switch ev := s.stream.Current().AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		if ev.ContentBlock.Type == "tool_use" {
			chunk.ToolCalls = []ToolCallDelta{{
				Index: int(ev.Index),
				ID:    ev.ContentBlock.ID,
				Name:  ev.ContentBlock.Name,
			}}
		}
	case anthropic.ContentBlockDeltaEvent:
		switch d := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			chunk.Content = d.Text
		case anthropic.ThinkingDelta:
			chunk.Reasoning = d.Thinking
		case anthropic.InputJSONDelta:
			chunk.ToolCalls = []ToolCallDelta{{Index: int(ev.Index), Arguments: d.PartialJSON}}
		}
	case anthropic.MessageDeltaEvent:
		chunk.FinishReason = anthropicStopReason(string(ev.Delta.StopReason))
	}
	return chunk, nil
}

func (s *anthropicStream) Close() error { return s.stream.Close() }

func anthropicStopReason(r string) string {
	switch r {
	case "":
		return ""
	case "tool_use":
		return FinishToolCalls
	case "refusal":
		return FinishContentFilter
	case "max_tokens":
		return FinishLength
	default:
		return FinishStop
	}
}

// toAnthropicMessages extracts system turns and groups consecutive tool results
// into a single user message as the Messages API expects.
func toAnthropicMessages(msgs []Message) ([]anthropic.MessageParam, string) {
	var (
		out    []anthropic.MessageParam
		system []string
	)
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal(tc.Arguments, &input)
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{ID: tc.ID, Name: tc.Name, Input: input},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			isErr := strings.HasPrefix(m.Content, "Error: ")
			block := anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isErr)
			if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser && isToolResultMessage(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out, strings.Join(system, "\n\n")
}

func isToolResultMessage(m anthropic.MessageParam) bool {
	for _, b := range m.Content {
		if b.OfToolResult == nil {
			return false
		}
	}
	return len(m.Content) > 0
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Parameters["properties"],
				Required:   schemaRequired(t.Parameters),
			},
		}
		out[i] = anthropic.ToolUnionParam{OfTool: &tool}
	}
	return out
}

func schemaRequired(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
