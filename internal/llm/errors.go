package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned when a model id names a provider that is not configured.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnknownTool is returned by executors for unregistered tool names.
	ErrUnknownTool = errors.New("unknown tool")
)

// ContentFilterError reports that the provider refused to produce content.
type ContentFilterError struct {
	Provider string
	Model    string
	Reason   string
}

func (e *ContentFilterError) Error() string {
	msg := "content filtered"
	if e.Provider != "" || e.Model != "" {
		msg += fmt.Sprintf(" by %s/%s", e.Provider, e.Model)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IsContentFilter reports whether err is or wraps a ContentFilterError.
func IsContentFilter(err error) bool {
	var cf *ContentFilterError
	return errors.As(err, &cf)
}

// TransportError wraps a network or provider failure.
type TransportError struct {
	Provider string
	Model    string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ToolExecutionError wraps a failure raised by a tool.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
