package protocol

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/memohai/replyd/internal/logger"
	"github.com/memohai/replyd/internal/stream"
)

// recorder logs every callback as a short string.
type recorder struct {
	mu      sync.Mutex
	events  []string
	failErr error
}

func (r *recorder) add(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
	return nil
}

func (r *recorder) log() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.events, ",")
}

func (r *recorder) OnAccept(context.Context) error     { return r.add("accept") }
func (r *recorder) OnStartReply(context.Context) error { return r.add("start") }
func (r *recorder) OnSend(_ context.Context, a stream.StreamAction) error {
	return r.add(string(a.Type) + ":" + a.Content)
}
func (r *recorder) OnToolStatus(_ context.Context, fb stream.ToolFeedback) error {
	return r.add("tool:" + fb.Name)
}
func (r *recorder) OnSuccess(_ context.Context, c string) error { return r.add("success:" + c) }
func (r *recorder) OnFailed(_ context.Context, err error) error {
	r.failErr = err
	return r.add("failed")
}
func (r *recorder) OnEnd(context.Context) error { return r.add("end") }

func TestTransitionTable(t *testing.T) {
	legal := map[[2]Step]bool{
		{StepAccept, StepAccept}:     true,
		{StepAccept, StepStartReply}: true,
		{StepAccept, StepFailed}:     true,
		{StepStartReply, StepSend}:   true,
		{StepStartReply, StepFailed}: true,
		{StepSend, StepSend}:         true,
		{StepSend, StepSuccess}:      true,
		{StepSend, StepFailed}:       true,
		{StepSuccess, StepEnd}:       true,
		{StepFailed, StepEnd}:        true,
	}
	for from := StepAccept; from <= StepEnd; from++ {
		for to := StepAccept; to <= StepEnd; to++ {
			if got := CanTransition(from, to); got != legal[[2]Step{from, to}] {
				t.Errorf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestHappyPath(t *testing.T) {
	r := &recorder{}
	m := NewManager(logger.Discard(), r)
	ctx := context.Background()
	steps := []ReplyStateData{
		Accept(),
		Accept(),
		StartReply(),
		Send(stream.Snapshot{ReasonContent: "think", Content: "he"}),
		Send(stream.Snapshot{Content: "hello"}),
		Success("hello"),
		End(),
	}
	for _, s := range steps {
		ok, err := m.HandleResponse(ctx, s)
		if !ok || err != nil {
			t.Fatalf("step %s: ok=%v err=%v", s.Step, ok, err)
		}
	}
	want := "accept,accept,start,think:think,text:he,text:hello,success:hello,end"
	if got := r.log(); got != want {
		t.Fatalf("events = %s\nwant     %s", got, want)
	}
	if !m.IsFinished() || m.State() != StepEnd {
		t.Fatalf("finished=%v state=%s", m.IsFinished(), m.State())
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	r := &recorder{}
	var invalid []*TransitionError
	mc := NewMachine(r, func(err *TransitionError) { invalid = append(invalid, err) })
	err := mc.Transition(context.Background(), Success("x"))
	var te *TransitionError
	if !errors.As(err, &te) || te.From != StepAccept || te.To != StepSuccess {
		t.Fatalf("expected ACCEPT -> SUCCESS rejection, got %v", err)
	}
	if mc.State() != StepAccept {
		t.Fatalf("state changed to %s", mc.State())
	}
	if len(invalid) != 1 || r.log() != "" {
		t.Fatalf("invalid=%d events=%q", len(invalid), r.log())
	}
}

func TestManagerRejectsIllegalAndContinues(t *testing.T) {
	r := &recorder{}
	m := NewManager(logger.Discard(), r)
	ctx := context.Background()
	if ok, err := m.HandleResponse(ctx, Send(stream.Snapshot{Content: "early"})); ok || err == nil {
		t.Fatalf("SEND from ACCEPT should be rejected, ok=%v err=%v", ok, err)
	}
	if ok, _ := m.HandleResponse(ctx, StartReply()); !ok {
		t.Fatal("pipeline should continue from last valid state")
	}
	if m.IsFinished() {
		t.Fatal("rejection must not finish the reply")
	}
}

func TestFailedRunsEndAndDropsLaterResponses(t *testing.T) {
	r := &recorder{}
	m := NewManager(logger.Discard(), r)
	ctx := context.Background()
	_, _ = m.HandleResponse(ctx, Accept())
	_, _ = m.HandleResponse(ctx, StartReply())
	boom := errors.New("provider down")
	if ok, err := m.HandleResponse(ctx, Failed(boom)); !ok || err != nil {
		t.Fatalf("FAILED: ok=%v err=%v", ok, err)
	}
	if !errors.Is(r.failErr, boom) {
		t.Fatalf("failure handler got %v", r.failErr)
	}
	before := r.log()
	for _, s := range []ReplyStateData{Send(stream.Snapshot{Content: "late"}), Success("x"), End(), Accept()} {
		ok, err := m.HandleResponse(ctx, s)
		if ok || err != nil {
			t.Fatalf("response after finish: ok=%v err=%v", ok, err)
		}
	}
	if r.log() != before || before != "accept,start,failed,end" {
		t.Fatalf("events = %s", r.log())
	}
}

func TestForceEndOnce(t *testing.T) {
	r := &recorder{}
	m := NewManager(logger.Discard(), r)
	ctx := context.Background()
	_, _ = m.HandleResponse(ctx, Accept())
	_, _ = m.HandleResponse(ctx, StartReply())
	_, _ = m.HandleResponse(ctx, Send(stream.Snapshot{Content: "a"}))

	if err := m.ForceEnd(ctx, nil); err != nil {
		t.Fatalf("ForceEnd: %v", err)
	}
	if err := m.ForceEnd(ctx, errors.New("again")); err != nil {
		t.Fatalf("second ForceEnd: %v", err)
	}
	if got := r.log(); got != "accept,start,text:a,failed,end" {
		t.Fatalf("events = %s", got)
	}
	if !errors.Is(r.failErr, ErrReplyFailed) {
		t.Fatalf("expected generic failure, got %v", r.failErr)
	}
}

func TestForceEndAfterSuccessOnlyEnds(t *testing.T) {
	r := &recorder{}
	m := NewManager(logger.Discard(), r)
	ctx := context.Background()
	for _, s := range []ReplyStateData{Accept(), StartReply(), Send(stream.Snapshot{Content: "a"}), Success("a")} {
		_, _ = m.HandleResponse(ctx, s)
	}
	if err := m.ForceEnd(ctx, errors.New("disconnect")); err != nil {
		t.Fatal(err)
	}
	if got := r.log(); got != "accept,start,text:a,success:a,end" {
		t.Fatalf("events = %s", got)
	}
}

func TestToolStatusDeduplicated(t *testing.T) {
	r := &recorder{}
	m := NewManager(logger.Discard(), r)
	ctx := context.Background()
	fb := &stream.ToolFeedback{Name: "current_time", StatusMessage: "Calling current_time..."}
	_, _ = m.HandleResponse(ctx, Accept())
	_, _ = m.HandleResponse(ctx, StartReply())
	_, _ = m.HandleResponse(ctx, Send(stream.Snapshot{ToolFeedback: fb}))
	_, _ = m.HandleResponse(ctx, Send(stream.Snapshot{ToolFeedback: fb, Content: "It is noon"}))
	if got := r.log(); got != "accept,start,tool:current_time,text:It is noon" {
		t.Fatalf("events = %s", got)
	}
}

func TestSuccessJoinsContentAndReasoning(t *testing.T) {
	got := finalContent(ReplyStateData{Content: " answer ", ReasonContent: "why\n"})
	if got != "answer \nwhy" {
		t.Fatalf("finalContent = %q", got)
	}
}
