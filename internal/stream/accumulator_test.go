package stream

import (
	"encoding/json"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time           { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAccumulator(interval time.Duration) (*Accumulator, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	return NewAccumulator(interval, WithClock(clk.Now)), clk
}

func TestAccumulatorCoalescesWithinInterval(t *testing.T) {
	acc, clk := newTestAccumulator(500 * time.Millisecond)

	var emitted []Snapshot
	step := func(a StreamAction) {
		acc.Accumulate(a)
		if snap, ok := acc.ShouldEmit(); ok {
			emitted = append(emitted, snap)
		}
	}

	clk.Advance(400 * time.Millisecond)
	step(Text("Hel"))
	clk.Advance(100 * time.Millisecond)
	step(Text("lo"))
	clk.Advance(100 * time.Millisecond)
	step(Text("!"))

	if len(emitted) != 1 {
		t.Fatalf("expected 1 snapshot, got %d: %+v", len(emitted), emitted)
	}
	if emitted[0].Content != "Hello!" {
		t.Fatalf("expected superset content, got %q", emitted[0].Content)
	}

	clk.Advance(100 * time.Millisecond)
	step(Text(" more"))
	if len(emitted) != 1 {
		t.Fatalf("window should have restarted after emission, got %d snapshots", len(emitted))
	}
}

func TestAccumulatorEmptyNeverEmits(t *testing.T) {
	acc, clk := newTestAccumulator(time.Millisecond)
	clk.Advance(time.Second)
	if _, ok := acc.ShouldEmit(); ok {
		t.Fatal("empty accumulator must not emit")
	}
	if _, ok := acc.FlushFinal(); ok {
		t.Fatal("empty accumulator must not flush")
	}
}

func TestAccumulatorSnapshotsGrowMonotonically(t *testing.T) {
	acc, clk := newTestAccumulator(10 * time.Millisecond)
	prev := 0
	for _, tok := range []string{"a", "bb", "", "ccc", "d"} {
		clk.Advance(20 * time.Millisecond)
		acc.Accumulate(Text(tok))
		acc.Accumulate(Think("."))
		snap, ok := acc.ShouldEmit()
		if !ok {
			t.Fatalf("expected emission after %q", tok)
		}
		if len(snap.Content) < prev {
			t.Fatalf("content shrank: %d < %d", len(snap.Content), prev)
		}
		prev = len(snap.Content)
	}
	if prev != len("abbcccd") {
		t.Fatalf("final content length = %d", prev)
	}
}

func TestAccumulatorFlushFinalOnce(t *testing.T) {
	acc, _ := newTestAccumulator(time.Hour)
	acc.Accumulate(Think("hmm"))
	acc.Accumulate(Text("tail sentence"))

	snap, ok := acc.FlushFinal()
	if !ok {
		t.Fatal("expected residual snapshot")
	}
	if snap.Content != "tail sentence" || snap.ReasonContent != "hmm" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, ok := acc.FlushFinal(); ok {
		t.Fatal("second flush must be empty")
	}
}

func TestAccumulatorToolFeedbackReplaces(t *testing.T) {
	acc, clk := newTestAccumulator(10 * time.Millisecond)
	acc.Accumulate(FunctionCall("search", json.RawMessage(`{"q":"x"}`)))
	acc.Accumulate(FunctionCall("current_time", nil))
	clk.Advance(time.Second)

	snap, ok := acc.ShouldEmit()
	if !ok {
		t.Fatal("feedback alone should be emitted")
	}
	if snap.ToolFeedback == nil || snap.ToolFeedback.Name != "current_time" {
		t.Fatalf("feedback not replaced: %+v", snap.ToolFeedback)
	}
	if snap.Content != "" {
		t.Fatalf("function call must not touch content, got %q", snap.Content)
	}
}

func TestAccumulatorResetRestartsWindow(t *testing.T) {
	acc, clk := newTestAccumulator(500 * time.Millisecond)
	acc.Accumulate(Text("partial"))
	clk.Advance(time.Second)
	acc.Reset()

	acc.Accumulate(Text("fresh"))
	clk.Advance(100 * time.Millisecond)
	if _, ok := acc.ShouldEmit(); ok {
		t.Fatal("reset should restart the timing window")
	}
	snap, _ := acc.FlushFinal()
	if snap.Content != "fresh" {
		t.Fatalf("reset should drop prior content, got %q", snap.Content)
	}
}

func TestCustomFeedbackFormatter(t *testing.T) {
	acc := NewAccumulator(0, WithFeedbackFormatter(func(a StreamAction) ToolFeedback {
		return ToolFeedback{Name: a.Name, StatusMessage: "working"}
	}))
	acc.Accumulate(FunctionCall("x", nil))
	snap, ok := acc.FlushFinal()
	if !ok || snap.ToolFeedback.StatusMessage != "working" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
