// Package protocol implements the reply lifecycle state machine:
// ACCEPT, START_REPLY, SEND*, SUCCESS or FAILED, then END.
package protocol

import (
	"errors"
	"fmt"

	"github.com/memohai/replyd/internal/stream"
)

// Step is a reply lifecycle state.
type Step int

const (
	StepAccept Step = iota
	StepStartReply
	StepSend
	StepSuccess
	StepFailed
	StepEnd
)

func (s Step) String() string {
	switch s {
	case StepAccept:
		return "ACCEPT"
	case StepStartReply:
		return "START_REPLY"
	case StepSend:
		return "SEND"
	case StepSuccess:
		return "SUCCESS"
	case StepFailed:
		return "FAILED"
	case StepEnd:
		return "END"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

var transitions = map[Step][]Step{
	StepAccept:     {StepAccept, StepStartReply, StepFailed},
	StepStartReply: {StepSend, StepFailed},
	StepSend:       {StepSend, StepSuccess, StepFailed},
	StepSuccess:    {StepEnd},
	StepFailed:     {StepEnd},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Step) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrFinished is returned when a transition is requested after END.
var ErrFinished = errors.New("reply already ended")

// TransitionError reports an illegal state transition.
type TransitionError struct {
	From Step
	To   Step
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid reply transition %s -> %s", e.From, e.To)
}

// ReplyStateData is the payload of one transition.
type ReplyStateData struct {
	Step          Step
	Content       string
	ReasonContent string
	ToolFeedback  *stream.ToolFeedback
	Err           error
}

// Payload constructors for each step.
func Accept() ReplyStateData     { return ReplyStateData{Step: StepAccept} }
func StartReply() ReplyStateData { return ReplyStateData{Step: StepStartReply} }
func End() ReplyStateData        { return ReplyStateData{Step: StepEnd} }

func Send(snap stream.Snapshot) ReplyStateData {
	return ReplyStateData{
		Step:          StepSend,
		Content:       snap.Content,
		ReasonContent: snap.ReasonContent,
		ToolFeedback:  snap.ToolFeedback,
	}
}

func Success(content string) ReplyStateData {
	return ReplyStateData{Step: StepSuccess, Content: content}
}

func Failed(err error) ReplyStateData { return ReplyStateData{Step: StepFailed, Err: err} }
