package llm

import (
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolHistory() []Message {
	return []Message{
		SystemMessage("be brief"),
		UserMessage("what time is it"),
		PartialAssistantMessage("It is"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "c1", Name: "current_time", Arguments: json.RawMessage(`{"timezone":"UTC"}`)},
			{ID: "c2", Name: "current_time", Arguments: json.RawMessage(`{}`)},
		}},
		{Role: RoleTool, ToolCallID: "c1", Name: "current_time", Content: "12:00"},
		{Role: RoleTool, ToolCallID: "c2", Name: "current_time", Content: "Error: bad zone"},
	}
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := toOpenAIMessages(toolHistory())
	require.Len(t, msgs, 6)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "It is", msgs[2].Content)
	require.Len(t, msgs[3].ToolCalls, 2)
	assert.Equal(t, openai.ToolTypeFunction, msgs[3].ToolCalls[0].Type)
	assert.Equal(t, `{"timezone":"UTC"}`, msgs[3].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "c2", msgs[5].ToolCallID)
}

func TestOpenAIFinishReason(t *testing.T) {
	assert.Equal(t, "", openAIFinishReason(""))
	assert.Equal(t, FinishToolCalls, openAIFinishReason(openai.FinishReasonToolCalls))
	assert.Equal(t, FinishContentFilter, openAIFinishReason(openai.FinishReasonContentFilter))
	assert.Equal(t, FinishLength, openAIFinishReason(openai.FinishReasonLength))
	assert.Equal(t, FinishStop, openAIFinishReason(openai.FinishReasonStop))
}

func TestOpenAIErrorContentFilterCode(t *testing.T) {
	err := openAIError(&openai.APIError{Code: "content_filter", Message: "filtered"})
	assert.True(t, IsContentFilter(err))

	other := errors.New("eof")
	assert.Equal(t, other, openAIError(other))
}

func TestToAnthropicMessagesGroupsToolResults(t *testing.T) {
	msgs, system := toAnthropicMessages(toolHistory())
	assert.Equal(t, "be brief", system)
	// user, partial assistant, assistant tool use, one user message with both results
	require.Len(t, msgs, 4)
	last := msgs[3]
	require.Len(t, last.Content, 2)
	assert.NotNil(t, last.Content[0].OfToolResult)
	assert.NotNil(t, last.Content[1].OfToolResult)
	require.Len(t, msgs[2].Content, 2)
	assert.NotNil(t, msgs[2].Content[0].OfToolUse)
}

func TestAnthropicStopReason(t *testing.T) {
	assert.Equal(t, FinishToolCalls, anthropicStopReason("tool_use"))
	assert.Equal(t, FinishContentFilter, anthropicStopReason("refusal"))
	assert.Equal(t, FinishStop, anthropicStopReason("end_turn"))
	assert.Equal(t, "", anthropicStopReason(""))
}

func TestSchemaRequired(t *testing.T) {
	assert.Equal(t, []string{"a"}, schemaRequired(map[string]any{"required": []string{"a"}}))
	assert.Equal(t, []string{"a", "b"}, schemaRequired(map[string]any{"required": []any{"a", "b", 3}}))
	assert.Nil(t, schemaRequired(map[string]any{}))
}

func TestToGeminiContents(t *testing.T) {
	contents, system := toGeminiContents(toolHistory())
	assert.Equal(t, "be brief", system)
	require.Len(t, contents, 5)
	assert.EqualValues(t, genai.RoleModel, contents[1].Role)
	require.Len(t, contents[2].Parts, 2)
	require.NotNil(t, contents[2].Parts[0].FunctionCall)
	assert.Equal(t, "UTC", contents[2].Parts[0].FunctionCall.Args["timezone"])
	resp := contents[3].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "current_time", resp.Name)
	assert.Equal(t, "12:00", resp.Response["output"])
}

func TestGeminiFinishReason(t *testing.T) {
	assert.Equal(t, FinishContentFilter, geminiFinishReason(genai.FinishReasonSafety, false))
	assert.Equal(t, FinishContentFilter, geminiFinishReason(genai.FinishReasonProhibitedContent, false))
	assert.Equal(t, FinishToolCalls, geminiFinishReason(genai.FinishReasonStop, true))
	assert.Equal(t, FinishStop, geminiFinishReason(genai.FinishReasonStop, false))
	assert.Equal(t, "", geminiFinishReason("", true))
}
