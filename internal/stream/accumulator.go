package stream

import (
	"strings"
	"sync"
	"time"
)

// DefaultYieldInterval is the minimum spacing between two emitted snapshots.
const DefaultYieldInterval = 500 * time.Millisecond

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// FeedbackFormatter turns a function-call action into tool feedback.
type FeedbackFormatter func(StreamAction) ToolFeedback

// Accumulator coalesces stream actions into snapshots released on a fixed cadence.
// It gates on time only; snapshot size is unbounded.
type Accumulator struct {
	interval time.Duration
	now      Clock
	format   FeedbackFormatter

	mu       sync.Mutex
	content  strings.Builder
	reason   strings.Builder
	feedback *ToolFeedback
	lastEmit time.Time
}

// AccumulatorOption configures an Accumulator.
type AccumulatorOption func(*Accumulator)

// WithClock overrides the time source.
func WithClock(c Clock) AccumulatorOption {
	return func(a *Accumulator) {
		if c != nil {
			a.now = c
		}
	}
}

// WithFeedbackFormatter overrides how tool calls are described to the user.
func WithFeedbackFormatter(f FeedbackFormatter) AccumulatorOption {
	return func(a *Accumulator) {
		if f != nil {
			a.format = f
		}
	}
}

// NewAccumulator creates an accumulator. A non-positive interval selects DefaultYieldInterval.
// The timing window starts at construction.
func NewAccumulator(interval time.Duration, opts ...AccumulatorOption) *Accumulator {
	if interval <= 0 {
		interval = DefaultYieldInterval
	}
	a := &Accumulator{
		interval: interval,
		now:      time.Now,
		format:   DefaultFeedback,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lastEmit = a.now()
	return a
}

// DefaultFeedback renders "Calling <name>..." for a tool call.
func DefaultFeedback(action StreamAction) ToolFeedback {
	return ToolFeedback{Name: action.Name, StatusMessage: "Calling " + action.Name + "..."}
}

// Accumulate records one action. Text and think append; a function call replaces the feedback.
func (a *Accumulator) Accumulate(action StreamAction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch action.Type {
	case ActionText:
		a.content.WriteString(action.Content)
	case ActionThink:
		a.reason.WriteString(action.Content)
	case ActionFunctionCall:
		fb := a.format(action)
		a.feedback = &fb
	}
}

// ShouldEmit returns a snapshot when more than the yield interval has passed since the last
// emission and there is something to show.
func (a *Accumulator) ShouldEmit() (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.snapshotLocked()
	if snap.Empty() {
		return Snapshot{}, false
	}
	now := a.now()
	if now.Sub(a.lastEmit) <= a.interval {
		return Snapshot{}, false
	}
	a.lastEmit = now
	return snap, true
}

// FlushFinal returns the current snapshot if non-empty and clears all accumulated state.
func (a *Accumulator) FlushFinal() (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.snapshotLocked()
	a.clearLocked()
	if snap.Empty() {
		return Snapshot{}, false
	}
	return snap, true
}

// Reset clears accumulated state and restarts the timing window.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearLocked()
	a.lastEmit = a.now()
}

func (a *Accumulator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Content:       a.content.String(),
		ReasonContent: a.reason.String(),
	}
	if a.feedback != nil {
		fb := *a.feedback
		snap.ToolFeedback = &fb
	}
	return snap
}

func (a *Accumulator) clearLocked() {
	a.content.Reset()
	a.reason.Reset()
	a.feedback = nil
}
