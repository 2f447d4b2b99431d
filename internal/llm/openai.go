package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider streams from any OpenAI-compatible chat completions endpoint
// (OpenAI, DeepSeek, Qwen and friends via base_url).
type OpenAIProvider struct {
	name      string
	client    *openai.Client
	maxTokens int
}

// NewOpenAIProvider creates a provider. An empty baseURL uses the OpenAI default.
func NewOpenAIProvider(name, apiKey, baseURL string, maxTokens int) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{
		name:      name,
		client:    openai.NewClientWithConfig(config),
		maxTokens: maxTokens,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// OpenStream starts a streaming chat completion.
func (p *OpenAIProvider) OpenStream(ctx context.Context, req StreamRequest) (ChunkStream, error) {
	r := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: float32(req.Temperature),
		Stream:      true,
	}
	if p.maxTokens > 0 {
		r.MaxTokens = p.maxTokens
	}
	if len(req.Tools) > 0 {
		r.Tools = toOpenAITools(req.Tools)
	}
	s, err := p.client.CreateChatCompletionStream(ctx, r)
	if err != nil {
		return nil, openAIError(err)
	}
	return &openAIStream{stream: s}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (Chunk, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Chunk{}, nil
	}
	choice := resp.Choices[0]
	chunk := Chunk{
		Content:      choice.Delta.Content,
		Reasoning:    choice.Delta.ReasoningContent,
		FinishReason: openAIFinishReason(choice.FinishReason),
	}
	for i, tc := range choice.Delta.ToolCalls {
		idx := i
		if tc.Index != nil {
			idx = *tc.Index
		}
		chunk.ToolCalls = append(chunk.ToolCalls, ToolCallDelta{
			Index:     idx,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return chunk, nil
}

func (s *openAIStream) Close() error { return s.stream.Close() }

func openAIFinishReason(r openai.FinishReason) string {
	switch r {
	case "":
		return ""
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return FinishToolCalls
	case openai.FinishReasonContentFilter:
		return FinishContentFilter
	case openai.FinishReasonLength:
		return FinishLength
	default:
		return FinishStop
	}
}

// openAIError maps the "content_filter" API error code used by Azure and compatible
// gateways onto ContentFilterError.
func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && fmt.Sprint(apiErr.Code) == "content_filter" {
		return &ContentFilterError{Reason: apiErr.Message}
	}
	return err
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}
