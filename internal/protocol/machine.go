package protocol

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/memohai/replyd/internal/stream"
)

// ErrReplyFailed is the generic error handed to OnFailed when the transition carries none.
var ErrReplyFailed = errors.New("reply failed")

// Handler receives the side effects of each state entry.
type Handler interface {
	OnAccept(ctx context.Context) error
	// OnStartReply completes before any OnSend is issued.
	OnStartReply(ctx context.Context) error
	// OnSend receives cumulative content: Think actions carry reasoning, Text actions carry the reply.
	OnSend(ctx context.Context, action stream.StreamAction) error
	OnToolStatus(ctx context.Context, feedback stream.ToolFeedback) error
	OnSuccess(ctx context.Context, content string) error
	OnFailed(ctx context.Context, err error) error
	OnEnd(ctx context.Context) error
}

// InvalidTransitionFunc observes rejected transitions.
type InvalidTransitionFunc func(err *TransitionError)

// Machine validates transitions and dispatches them to a Handler. It is not safe for concurrent use;
// Manager adds locking.
type Machine struct {
	state     Step
	handler   Handler
	onInvalid InvalidTransitionFunc
	lastTool  *stream.ToolFeedback
}

// NewMachine creates a machine in the ACCEPT state.
func NewMachine(h Handler, onInvalid InvalidTransitionFunc) *Machine {
	if onInvalid == nil {
		onInvalid = func(*TransitionError) {}
	}
	return &Machine{state: StepAccept, handler: h, onInvalid: onInvalid}
}

// State returns the current state.
func (m *Machine) State() Step { return m.state }

// Transition moves to data.Step and runs the matching callback. Illegal transitions leave
// the state unchanged and return a *TransitionError. Callback errors are returned after the
// state has changed.
func (m *Machine) Transition(ctx context.Context, data ReplyStateData) error {
	if !CanTransition(m.state, data.Step) {
		err := &TransitionError{From: m.state, To: data.Step}
		m.onInvalid(err)
		return err
	}
	m.state = data.Step
	return m.dispatch(ctx, data)
}

func (m *Machine) dispatch(ctx context.Context, data ReplyStateData) error {
	switch data.Step {
	case StepAccept:
		return m.handler.OnAccept(ctx)
	case StepStartReply:
		return m.handler.OnStartReply(ctx)
	case StepSend:
		var errs []error
		if data.ToolFeedback != nil && (m.lastTool == nil || *m.lastTool != *data.ToolFeedback) {
			fb := *data.ToolFeedback
			m.lastTool = &fb
			errs = append(errs, m.handler.OnToolStatus(ctx, fb))
		}
		if data.ReasonContent != "" {
			errs = append(errs, m.handler.OnSend(ctx, stream.Think(data.ReasonContent)))
		}
		if data.Content != "" {
			errs = append(errs, m.handler.OnSend(ctx, stream.Text(data.Content)))
		}
		return errors.Join(errs...)
	case StepSuccess:
		return m.handler.OnSuccess(ctx, finalContent(data))
	case StepFailed:
		err := data.Err
		if err == nil {
			err = ErrReplyFailed
		}
		return m.handler.OnFailed(ctx, err)
	case StepEnd:
		return m.handler.OnEnd(ctx)
	}
	return nil
}

func finalContent(data ReplyStateData) string {
	parts := make([]string, 0, 2)
	if data.Content != "" {
		parts = append(parts, data.Content)
	}
	if data.ReasonContent != "" {
		parts = append(parts, data.ReasonContent)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func logInvalid(log *slog.Logger) InvalidTransitionFunc {
	return func(err *TransitionError) {
		log.Warn("rejected reply transition",
			slog.String("from", err.From.String()),
			slog.String("to", err.To.String()))
	}
}
