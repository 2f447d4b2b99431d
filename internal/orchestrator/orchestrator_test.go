package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/memohai/replyd/internal/llm"
	"github.com/memohai/replyd/internal/logger"
	"github.com/memohai/replyd/internal/stream"
)

type attempt struct {
	actions []stream.StreamAction
	err     error
}

// fakeGateway plays a scripted attempt per model id and records the history each model saw.
type fakeGateway struct {
	script map[string]attempt
	seen   map[string][]llm.Message
	order  []string
}

func (g *fakeGateway) Stream(_ context.Context, modelID string, conv *llm.Conversation, _ llm.Options, emit llm.EmitFunc) error {
	if g.seen == nil {
		g.seen = map[string][]llm.Message{}
	}
	g.seen[modelID] = conv.Snapshot()
	g.order = append(g.order, modelID)
	a := g.script[modelID]
	for _, act := range a.actions {
		if err := emit(act); err != nil {
			return err
		}
	}
	return a.err
}

func drain(t *testing.T, snaps <-chan stream.Snapshot, errs <-chan error) ([]stream.Snapshot, error) {
	t.Helper()
	var got []stream.Snapshot
	timeout := time.After(2 * time.Second)
	for snaps != nil || errs != nil {
		select {
		case s, ok := <-snaps:
			if !ok {
				snaps = nil
				continue
			}
			got = append(got, s)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return got, err
		case <-timeout:
			t.Fatal("timeout waiting for reply stream")
		}
	}
	return got, nil
}

func models(ids ...string) []ModelConfig {
	out := make([]ModelConfig, len(ids))
	for i, id := range ids {
		out[i] = ModelConfig{ID: id, DisplayName: id}
	}
	return out
}

func newOrchestrator(g Streamer) *Orchestrator {
	return New(logger.Discard(), g, Config{YieldInterval: time.Hour})
}

func TestFailoverAfterContentFilter(t *testing.T) {
	g := &fakeGateway{script: map[string]attempt{
		"m1": {err: &llm.ContentFilterError{Reason: "policy"}},
		"m2": {actions: []stream.StreamAction{stream.Text("Hel"), stream.Text("lo")}},
	}}
	conv := llm.NewConversation(llm.UserMessage("hi"))
	snaps, errs := newOrchestrator(g).GenerateReply(context.Background(), "t1", conv, models("m1", "m2"), llm.Options{})
	got, err := drain(t, snaps, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Content != "Hello" {
		t.Fatalf("snapshots = %+v", got)
	}
	hist := g.seen["m2"]
	if len(hist) != 2 {
		t.Fatalf("m2 history = %+v", hist)
	}
	if p := hist[1]; p.Role != llm.RoleAssistant || !p.Partial || p.Content != "" {
		t.Fatalf("expected empty partial assistant turn, got %+v", p)
	}
}

func TestSuccessStopsFailover(t *testing.T) {
	g := &fakeGateway{script: map[string]attempt{
		"m1": {actions: []stream.StreamAction{stream.Text("first")}},
		"m2": {actions: []stream.StreamAction{stream.Text("second")}},
	}}
	snaps, errs := newOrchestrator(g).GenerateReply(context.Background(), "t", llm.NewConversation(), models("m1", "m2"), llm.Options{})
	got, err := drain(t, snaps, errs)
	if err != nil || len(got) != 1 || got[0].Content != "first" {
		t.Fatalf("got %+v err %v", got, err)
	}
	if len(g.order) != 1 {
		t.Fatalf("m2 must not be tried, order = %v", g.order)
	}
}

func TestPartialContentFoldedIntoHistory(t *testing.T) {
	transport := &llm.TransportError{Provider: "p", Model: "m1", Err: errors.New("reset by peer")}
	g := &fakeGateway{script: map[string]attempt{
		"m1": {actions: []stream.StreamAction{stream.Think("hmm"), stream.Text("I was say")}, err: transport},
		"m2": {actions: []stream.StreamAction{stream.Text("Full answer")}},
	}}
	conv := llm.NewConversation(llm.UserMessage("q"))
	snaps, errs := newOrchestrator(g).GenerateReply(context.Background(), "t", conv, models("m1", "m2"), llm.Options{})
	got, err := drain(t, snaps, errs)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(got) != 1 || got[0].Content != "Full answer" || got[0].ReasonContent != "" {
		t.Fatalf("abandoned attempt leaked into output: %+v", got)
	}
	if p := g.seen["m2"][1]; !p.Partial || p.Content != "I was say" {
		t.Fatalf("partial turn = %+v", p)
	}
}

func TestLastCandidateTransportErrorReRaised(t *testing.T) {
	boom := &llm.TransportError{Provider: "p", Model: "m2", Err: errors.New("503")}
	g := &fakeGateway{script: map[string]attempt{
		"m1": {err: errors.New("timeout")},
		"m2": {actions: []stream.StreamAction{stream.Text("half")}, err: boom},
	}}
	snaps, errs := newOrchestrator(g).GenerateReply(context.Background(), "t", llm.NewConversation(), models("m1", "m2"), llm.Options{})
	got, err := drain(t, snaps, errs)
	if !errors.Is(err, boom) {
		t.Fatalf("expected last transport error, got %v", err)
	}
	if len(got) != 1 || got[0].Content != "half" {
		t.Fatalf("trailing content should be flushed before the error, got %+v", got)
	}
}

func TestContentFilterExhaustionYieldsNotice(t *testing.T) {
	g := &fakeGateway{script: map[string]attempt{
		"m1": {err: &llm.ContentFilterError{}},
	}}
	o := New(logger.Discard(), g, Config{ContentFilterNotice: "can't talk about that"})
	snaps, errs := o.GenerateReply(context.Background(), "t", llm.NewConversation(), models("m1"), llm.Options{})
	got, err := drain(t, snaps, errs)
	if err != nil {
		t.Fatalf("content filter exhaustion must not error: %v", err)
	}
	if len(got) != 1 || got[0].Content != "can't talk about that" {
		t.Fatalf("got %+v", got)
	}
}

func TestNoModels(t *testing.T) {
	snaps, errs := newOrchestrator(&fakeGateway{}).GenerateReply(context.Background(), "t", llm.NewConversation(), nil, llm.Options{})
	if _, err := drain(t, snaps, errs); !errors.Is(err, ErrNoModels) {
		t.Fatalf("expected ErrNoModels, got %v", err)
	}
}

func TestGatedSnapshotsAreCumulative(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	clock := func() time.Time { return now }
	var emitted []string
	streamer := streamerFunc(func(_ context.Context, _ string, _ *llm.Conversation, _ llm.Options, emit llm.EmitFunc) error {
		for _, tok := range []string{"a", "b", "c"} {
			now = now.Add(time.Second)
			if err := emit(stream.Text(tok)); err != nil {
				return err
			}
		}
		return nil
	})
	o := New(logger.Discard(), streamer, Config{YieldInterval: 500 * time.Millisecond, Clock: clock})
	snaps, errs := o.GenerateReply(context.Background(), "t", llm.NewConversation(), models("m"), llm.Options{})
	got, err := drain(t, snaps, errs)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range got {
		emitted = append(emitted, s.Content)
	}
	want := []string{"a", "ab", "abc", "abc"}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %q, want %q", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %q, want %q", emitted, want)
		}
	}
}

type streamerFunc func(ctx context.Context, modelID string, conv *llm.Conversation, opts llm.Options, emit llm.EmitFunc) error

func (f streamerFunc) Stream(ctx context.Context, modelID string, conv *llm.Conversation, opts llm.Options, emit llm.EmitFunc) error {
	return f(ctx, modelID, conv, opts, emit)
}

func TestCancelledContextStopsGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	streamer := streamerFunc(func(ctx context.Context, _ string, _ *llm.Conversation, _ llm.Options, _ llm.EmitFunc) error {
		cancel()
		return ctx.Err()
	})
	snaps, errs := newOrchestrator(streamer).GenerateReply(ctx, "t", llm.NewConversation(), models("m1", "m2"), llm.Options{})
	if _, err := drain(t, snaps, errs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
