// Package stream holds the values that flow from a model call towards delivery:
// individual stream actions and the coalesced snapshots built from them.
package stream

import "encoding/json"

// ActionType tags a StreamAction.
type ActionType string

const (
	ActionThink        ActionType = "think"
	ActionText         ActionType = "text"
	ActionFunctionCall ActionType = "function_call"
)

// StreamAction is one unit of model output. Values are not mutated after construction.
type StreamAction struct {
	Type      ActionType      `json:"type"`
	Content   string          `json:"content,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func Think(text string) StreamAction { return StreamAction{Type: ActionThink, Content: text} }

func Text(text string) StreamAction { return StreamAction{Type: ActionText, Content: text} }

func FunctionCall(name string, args json.RawMessage) StreamAction {
	return StreamAction{Type: ActionFunctionCall, Name: name, Arguments: args}
}

// ToolFeedback is the user-facing status shown while a tool runs.
type ToolFeedback struct {
	Name          string `json:"name"`
	StatusMessage string `json:"status_message"`
}

// Snapshot is the accumulated output of one model attempt at a point in time.
type Snapshot struct {
	Content       string        `json:"content"`
	ReasonContent string        `json:"reason_content,omitempty"`
	ToolFeedback  *ToolFeedback `json:"tool_feedback,omitempty"`
}

// Empty reports whether the snapshot carries nothing worth emitting.
func (s Snapshot) Empty() bool {
	return s.Content == "" && s.ReasonContent == "" && s.ToolFeedback == nil
}
