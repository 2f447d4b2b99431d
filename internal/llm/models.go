// Package llm talks to model providers: it resolves model identifiers, opens
// streaming completions and runs the tool-call loop.
package llm

import "encoding/json"

// Role names used in conversation turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation turn.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// Name is the tool name on tool turns.
	Name string `json:"name,omitempty"`
	// Partial marks output from an abandoned model attempt kept as context.
	Partial bool `json:"partial,omitempty"`
}

// ToolCall is a complete function call requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes a tool offered to the model. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// PartialAssistantMessage records content produced by a model attempt that was abandoned.
func PartialAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Partial: true}
}

// Conversation is the message history shared by the failover attempts of one reply.
// It is owned by a single pipeline and not safe for concurrent use.
type Conversation struct {
	Messages []Message
}

// NewConversation copies msgs into a new conversation.
func NewConversation(msgs ...Message) *Conversation {
	return &Conversation{Messages: append([]Message(nil), msgs...)}
}

// Append adds turns to the end of the history.
func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
}

// Snapshot returns a copy of the current history.
func (c *Conversation) Snapshot() []Message {
	return append([]Message(nil), c.Messages...)
}

// Len returns the number of turns.
func (c *Conversation) Len() int { return len(c.Messages) }
