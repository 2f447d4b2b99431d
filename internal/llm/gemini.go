package llm

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider streams from the Gemini API.
type GeminiProvider struct {
	name      string
	client    *genai.Client
	maxTokens int32
}

// NewGeminiProvider creates a provider backed by the Gemini developer API.
func NewGeminiProvider(ctx context.Context, name, apiKey string, maxTokens int) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{name: name, client: client, maxTokens: int32(maxTokens)}, nil
}

func (p *GeminiProvider) Name() string { return p.name }

// OpenStream starts a GenerateContentStream call.
func (p *GeminiProvider) OpenStream(ctx context.Context, req StreamRequest) (ChunkStream, error) {
	contents, system := toGeminiContents(req.Messages)
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if p.maxTokens > 0 {
		config.MaxOutputTokens = p.maxTokens
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = toGeminiTools(req.Tools)
	}
	next, stop := iter.Pull2(p.client.Models.GenerateContentStream(ctx, req.Model, contents, config))
	return &geminiStream{next: next, stop: stop}, nil
}

type geminiStream struct {
	next      func() (*genai.GenerateContentResponse, error, bool)
	stop      func()
	callIndex int
}

func (s *geminiStream) Recv() (Chunk, error) {
	resp, err, ok := s.next()
	if !ok {
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, err
	}
	var chunk Chunk
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Chunk{}, &ContentFilterError{Reason: "prompt blocked: " + string(resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return chunk, nil
	}
	cand := resp.Candidates[0]
	var sawCall bool
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				args, _ := json.Marshal(part.FunctionCall.Args)
				chunk.ToolCalls = append(chunk.ToolCalls, ToolCallDelta{
					Index:     s.callIndex,
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				})
				s.callIndex++
				sawCall = true
			case part.Thought:
				chunk.Reasoning += part.Text
			default:
				chunk.Content += part.Text
			}
		}
	}
	chunk.FinishReason = geminiFinishReason(cand.FinishReason, sawCall)
	return chunk, nil
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}

func geminiFinishReason(r genai.FinishReason, sawCall bool) string {
	switch r {
	case "", genai.FinishReasonUnspecified:
		return ""
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return FinishContentFilter
	case genai.FinishReasonMaxTokens:
		return FinishLength
	}
	if sawCall {
		return FinishToolCalls
	}
	return FinishStop
}

func toGeminiContents(msgs []Message) ([]*genai.Content, string) {
	var (
		out    []*genai.Content
		system []string
	)
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			if len(content.Parts) > 0 {
				out = append(out, content)
			}
		case RoleTool:
			out = append(out, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       m.ToolCallID,
						Name:     m.Name,
						Response: map[string]any{"output": m.Content},
					},
				}},
			})
		}
	}
	return out, strings.Join(system, "\n\n")
}

func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
