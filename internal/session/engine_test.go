package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/securequest/api/internal/quest"
)

type recordingSink struct {
	mu     sync.Mutex
	events []quest.PendingEvent
}

func (s *recordingSink) Emit(_ context.Context, ev quest.PendingEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) kinds() []quest.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]quest.EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func (s *recordingSink) count(kind quest.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (s *recordingSink) last(kind quest.EventKind) (quest.PendingEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			return s.events[i], true
		}
	}
	return quest.PendingEvent{}, false
}

func newEngine(t *testing.T) (*Engine, *recordingSink, *clockwork.FakeClock, chan quest.SessionState) {
	t.Helper()
	sink := &recordingSink{}
	clock := clockwork.NewFakeClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e, err := New(quest.Catalog(), sink, clock, logger)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	changes := make(chan quest.SessionState, 64)
	e.OnChange(func(st quest.SessionState) { changes <- st })
	return e, sink, clock, changes
}

func waitFor(t *testing.T, changes chan quest.SessionState, pred func(quest.SessionState) bool) quest.SessionState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-changes:
			if pred(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timed out waiting for state change")
		}
	}
}

// playToStage submits correct choices until the session sits on stage n.
func playToStage(t *testing.T, e *Engine, clock *clockwork.FakeClock, changes chan quest.SessionState, n int) {
	t.Helper()
	for e.State().CurrentStageID < n {
		cur := e.State().CurrentStageID
		stage, err := e.Stage()
		if err != nil {
			t.Fatalf("stage: %v", err)
		}
		if _, err := e.Submit(context.Background(), quest.CorrectChoice(stage)); err != nil {
			t.Fatalf("submit at stage %d: %v", cur, err)
		}
		clock.Advance(SuccessDelay)
		waitFor(t, changes, func(st quest.SessionState) bool { return st.CurrentStageID == cur+1 })
	}
}

func TestStartRejectsEmptyName(t *testing.T) {
	e, sink, _, _ := newEngine(t)

	for _, name := range []string{"", "   ", "\t\n"} {
		if err := e.Start(context.Background(), name); !errors.Is(err, ErrEmptyName) {
			t.Errorf("Start(%q) = %v, want ErrEmptyName", name, err)
		}
	}
	if got := e.State().Status; got != quest.StatusNotStarted {
		t.Fatalf("status = %q, want not_started", got)
	}
	if len(sink.kinds()) != 0 {
		t.Fatalf("events = %v, want none", sink.kinds())
	}
}

func TestStartBeginsStageOneAndEmitsPlay(t *testing.T) {
	e, sink, _, _ := newEngine(t)

	if err := e.Start(context.Background(), "  Ann  "); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := e.State()
	if st.Status != quest.StatusInProgress || st.CurrentStageID != 1 {
		t.Fatalf("state = %+v, want in_progress at stage 1", st)
	}
	if st.PlayerName != "Ann" {
		t.Errorf("player = %q, want trimmed Ann", st.PlayerName)
	}
	if st.ElapsedSeconds != 0 {
		t.Errorf("elapsed = %d, want 0", st.ElapsedSeconds)
	}
	ev, ok := sink.last(quest.EventPlay)
	if !ok || ev.Name != "Ann" {
		t.Fatalf("play event = %+v ok=%v, want Play{Ann}", ev, ok)
	}

	if err := e.Start(context.Background(), "Bob"); !errors.Is(err, ErrActiveSession) {
		t.Fatalf("second Start = %v, want ErrActiveSession", err)
	}
}

func TestCorrectChoiceRevealsNoteThenAdvances(t *testing.T) {
	e, _, clock, changes := newEngine(t)
	if err := e.Start(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}

	stage, _ := e.Stage()
	out, err := e.Submit(context.Background(), quest.CorrectChoice(stage))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Correct || out.Note != stage.Note {
		t.Fatalf("outcome = %+v, want the stage note revealed", out)
	}
	if out.Delay != SuccessDelay {
		t.Errorf("delay = %v, want %v", out.Delay, SuccessDelay)
	}

	// The note is visible now; the transition has not happened yet.
	if got := e.State().CurrentStageID; got != 1 {
		t.Fatalf("stage advanced to %d before the delay elapsed", got)
	}

	clock.Advance(SuccessDelay)
	st := waitFor(t, changes, func(st quest.SessionState) bool { return st.CurrentStageID == 2 })
	if st.Status != quest.StatusInProgress {
		t.Fatalf("status = %q, want in_progress", st.Status)
	}
}

func TestStageOneWrongChoiceNeverFails(t *testing.T) {
	stage1 := quest.Catalog()[0]
	for idx, choice := range stage1.Choices {
		if choice.Correct {
			continue
		}
		e, sink, clock, changes := newEngine(t)
		if err := e.Start(context.Background(), "Cara"); err != nil {
			t.Fatalf("start: %v", err)
		}

		out, err := e.Submit(context.Background(), idx)
		if err != nil {
			t.Fatalf("submit choice %d: %v", idx, err)
		}
		if !out.SoftFail || out.Message != stage1.FailMessage {
			t.Fatalf("outcome = %+v, want soft fail with warning", out)
		}
		if out.Delay != SoftFailDelay {
			t.Errorf("delay = %v, want %v", out.Delay, SoftFailDelay)
		}

		clock.Advance(SoftFailDelay)
		st := waitFor(t, changes, func(st quest.SessionState) bool { return st.CurrentStageID == 2 })
		if st.Status != quest.StatusInProgress {
			t.Fatalf("choice %d: status = %q, want in_progress", idx, st.Status)
		}
		if sink.count(quest.EventRetry) != 0 {
			t.Errorf("choice %d: retry emitted on a stage-1 wrong answer", idx)
		}
	}
}

func TestLaterStagesWrongChoiceFailsExactlyOnce(t *testing.T) {
	for stageNum := 2; stageNum <= 4; stageNum++ {
		stage := quest.Catalog()[stageNum-1]
		for idx, choice := range stage.Choices {
			if choice.Correct {
				continue
			}
			e, sink, clock, changes := newEngine(t)
			if err := e.Start(context.Background(), "Cara"); err != nil {
				t.Fatalf("start: %v", err)
			}
			playToStage(t, e, clock, changes, stageNum)

			out, err := e.Submit(context.Background(), idx)
			if err != nil {
				t.Fatalf("stage %d choice %d: %v", stageNum, idx, err)
			}
			if !out.Failed {
				t.Fatalf("stage %d choice %d: outcome = %+v, want failed", stageNum, idx, out)
			}

			st := e.State()
			if st.Status != quest.StatusFailed || st.FailReason != stage.FailMessage {
				t.Fatalf("stage %d choice %d: state = %+v, want failed with reason", stageNum, idx, st)
			}
			if got := sink.count(quest.EventRetry); got != 1 {
				t.Errorf("stage %d choice %d: retry emitted %d times, want 1", stageNum, idx, got)
			}

			// Terminal state: further submits are rejected.
			if _, err := e.Submit(context.Background(), idx); !errors.Is(err, ErrNotInProgress) {
				t.Errorf("submit after fail = %v, want ErrNotInProgress", err)
			}
		}
	}
}

func TestFullPlaythroughSucceeds(t *testing.T) {
	e, sink, clock, changes := newEngine(t)
	if err := e.Start(context.Background(), "Bob"); err != nil {
		t.Fatalf("start: %v", err)
	}
	playToStage(t, e, clock, changes, 4)

	stage, _ := e.Stage()
	if _, err := e.Submit(context.Background(), quest.CorrectChoice(stage)); err != nil {
		t.Fatalf("final submit: %v", err)
	}
	clock.Advance(SuccessDelay)
	st := waitFor(t, changes, func(st quest.SessionState) bool { return st.Status == quest.StatusSucceeded })

	if st.ElapsedSeconds < 0 {
		t.Errorf("elapsed = %d, want >= 0", st.ElapsedSeconds)
	}
	want := []quest.EventKind{quest.EventPlay, quest.EventComplete, quest.EventScore}
	got := sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	score, _ := sink.last(quest.EventScore)
	if score.Name != "Bob" || score.TimeSeconds != st.ElapsedSeconds {
		t.Fatalf("score event = %+v, want Bob with the frozen time", score)
	}
}

func TestWrongAtStageOneThenWrongAtStageTwoFails(t *testing.T) {
	e, sink, clock, changes := newEngine(t)
	if err := e.Start(context.Background(), "Cara"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Wrong answer at stage 1 must not fail the session.
	stage1 := quest.Catalog()[0]
	wrong1 := 0
	if stage1.Choices[wrong1].Correct {
		wrong1 = 1
	}
	if _, err := e.Submit(context.Background(), wrong1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	clock.Advance(SoftFailDelay)
	waitFor(t, changes, func(st quest.SessionState) bool { return st.CurrentStageID == 2 })

	stage2 := quest.Catalog()[1]
	wrong2 := 0
	if stage2.Choices[wrong2].Correct {
		wrong2 = 1
	}
	out, err := e.Submit(context.Background(), wrong2)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Failed {
		t.Fatalf("outcome = %+v, want failed", out)
	}
	if got := sink.count(quest.EventRetry); got != 1 {
		t.Fatalf("retry emitted %d times, want exactly 1", got)
	}
	want := []quest.EventKind{quest.EventPlay, quest.EventRetry}
	got := sink.kinds()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestResetCancelsPendingTransition(t *testing.T) {
	e, _, clock, _ := newEngine(t)
	if err := e.Start(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}
	stage, _ := e.Stage()
	if _, err := e.Submit(context.Background(), quest.CorrectChoice(stage)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	e.Reset()
	if got := e.State().Status; got != quest.StatusNotStarted {
		t.Fatalf("status = %q, want not_started", got)
	}

	// A late-firing timer must not reanimate the closed session.
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	if st := e.State(); st.Status != quest.StatusNotStarted || st.CurrentStageID != 0 {
		t.Fatalf("state = %+v, a stale transition reanimated the session", st)
	}
}

func TestTickTracksElapsedAndFreezesOnFail(t *testing.T) {
	e, _, clock, changes := newEngine(t)
	if err := e.Start(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(5 * time.Second)
	if got := e.Tick().ElapsedSeconds; got != 5 {
		t.Fatalf("elapsed = %d, want 5", got)
	}

	playToStage(t, e, clock, changes, 2)
	stage2 := quest.Catalog()[1]
	wrong := 0
	if stage2.Choices[wrong].Correct {
		wrong = 1
	}
	if _, err := e.Submit(context.Background(), wrong); err != nil {
		t.Fatalf("submit: %v", err)
	}
	frozen := e.State().ElapsedSeconds

	clock.Advance(30 * time.Second)
	if got := e.Tick().ElapsedSeconds; got != frozen {
		t.Fatalf("elapsed after fail = %d, want frozen %d", got, frozen)
	}
}

func TestRetryAndResetEmitsRetry(t *testing.T) {
	e, sink, _, _ := newEngine(t)
	if err := e.Start(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}

	e.RetryAndReset(context.Background())
	if got := sink.count(quest.EventRetry); got != 1 {
		t.Fatalf("retry emitted %d times, want 1", got)
	}
	if got := e.State().Status; got != quest.StatusNotStarted {
		t.Fatalf("status = %q, want not_started", got)
	}

	// Plain Reset emits nothing.
	if err := e.Start(context.Background(), "Ann"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	before := len(sink.kinds())
	e.Reset()
	if got := len(sink.kinds()); got != before {
		t.Fatalf("reset emitted %d extra events, want 0", got-before)
	}
}

func TestSubmitRequiresInProgress(t *testing.T) {
	e, _, _, _ := newEngine(t)
	if _, err := e.Submit(context.Background(), 0); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("err = %v, want ErrNotInProgress", err)
	}
}

func TestSubmitRejectsOutOfRangeChoice(t *testing.T) {
	e, _, _, _ := newEngine(t)
	if err := e.Start(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, idx := range []int{-1, 4, 99} {
		if _, err := e.Submit(context.Background(), idx); !errors.Is(err, ErrInvalidChoice) {
			t.Errorf("Submit(%d) = %v, want ErrInvalidChoice", idx, err)
		}
	}
}
