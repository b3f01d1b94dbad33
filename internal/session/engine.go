// Package session implements the Secure Quest session state machine:
// NotStarted → InProgress(stage 1..4) → Succeeded | Failed. Stage
// transitions that follow a choice run after a short presentation delay
// on a cancellable timer, so a reset deterministically discards them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/securequest/api/internal/quest"
)

// EventSink receives the sync events the session produces. The engine
// never learns whether delivery succeeded; queuing policy lives behind
// the sink.
type EventSink interface {
	Emit(ctx context.Context, ev quest.PendingEvent)
}

// Presentation delays, matching the door-opening animation timings.
const (
	SuccessDelay  = 850 * time.Millisecond
	SoftFailDelay = 700 * time.Millisecond
	TickInterval  = 300 * time.Millisecond
)

var (
	ErrEmptyName     = errors.New("player name is empty")
	ErrNotInProgress = errors.New("session is not in progress")
	ErrActiveSession = errors.New("session already started")
	ErrInvalidChoice = errors.New("choice index out of range")
)

// Outcome tells the caller what a submitted choice did, so the UI can
// reveal the note or message immediately, before the scheduled
// transition fires.
type Outcome struct {
	Correct  bool
	SoftFail bool
	Failed   bool
	// Note is the stage's requirement note, revealed on a correct choice.
	Note string
	// Message is the line to display while the transition is pending, or
	// the fail reason.
	Message string
	// Delay is how long until the scheduled transition runs; zero when
	// the transition already happened (hard fail).
	Delay time.Duration
}

// Engine owns one SessionState value and drives every transition.
// All methods are safe for concurrent use; state is handed out by copy.
type Engine struct {
	mu        sync.Mutex
	stages    []quest.Stage
	sink      EventSink
	clock     clockwork.Clock
	logger    *slog.Logger
	state     quest.SessionState
	startedAt time.Time
	// gen invalidates scheduled transitions: a timer that fires after a
	// reset finds a newer generation and must not reanimate the session.
	gen       int
	timer     clockwork.Timer
	timerDone chan struct{}
	onChange  func(quest.SessionState)
}

func New(stages []quest.Stage, sink EventSink, clock clockwork.Clock, logger *slog.Logger) (*Engine, error) {
	if err := quest.ValidateCatalog(stages); err != nil {
		return nil, fmt.Errorf("invalid stage catalog: %w", err)
	}
	return &Engine{
		stages: stages,
		sink:   sink,
		clock:  clock,
		logger: logger,
		state:  quest.SessionState{Status: quest.StatusNotStarted},
	}, nil
}

// OnChange registers a callback invoked (outside the engine lock) after
// every state transition. Must be set before the session starts.
func (e *Engine) OnChange(fn func(quest.SessionState)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// State returns a copy of the current session state.
func (e *Engine) State() quest.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stage returns the definition of the session's current stage.
func (e *Engine) Stage() (quest.Stage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != quest.StatusInProgress {
		return quest.Stage{}, ErrNotInProgress
	}
	return e.stages[e.state.CurrentStageID-1], nil
}

// Start begins a session for name: stage 1, timer at zero, one Play
// event. Empty or whitespace-only names are rejected.
func (e *Engine) Start(ctx context.Context, name string) error {
	name = quest.TruncateName(strings.TrimSpace(name))
	if name == "" {
		return ErrEmptyName
	}

	e.mu.Lock()
	if e.state.Status != quest.StatusNotStarted {
		e.mu.Unlock()
		return ErrActiveSession
	}
	e.startedAt = e.clock.Now()
	e.state = quest.SessionState{
		PlayerName:     name,
		CurrentStageID: 1,
		StartedAtMs:    e.startedAt.UnixMilli(),
		Status:         quest.StatusInProgress,
	}
	snapshot := e.state
	e.mu.Unlock()

	e.logger.Info("session started", "player", name)
	e.sink.Emit(ctx, quest.PendingEvent{Kind: quest.EventPlay, Name: name})
	e.notify(snapshot)
	return nil
}

// Submit evaluates the choice at index for the current stage.
//
// Correct choices reveal the stage note and schedule the transition to the
// next stage (or to Succeeded from stage 4) after SuccessDelay. A wrong
// choice on a stage with FailDoesExit unset — stage 1 — never ends the
// session: it silently advances to the next stage after SoftFailDelay.
// Every other wrong choice fails the session immediately.
func (e *Engine) Submit(ctx context.Context, index int) (Outcome, error) {
	e.mu.Lock()
	if e.state.Status != quest.StatusInProgress {
		e.mu.Unlock()
		return Outcome{}, ErrNotInProgress
	}
	stage := e.stages[e.state.CurrentStageID-1]
	if index < 0 || index >= len(stage.Choices) {
		e.mu.Unlock()
		return Outcome{}, ErrInvalidChoice
	}
	choice := stage.Choices[index]

	if choice.Correct {
		e.scheduleLocked(e.state.CurrentStageID+1, SuccessDelay)
		e.mu.Unlock()
		return Outcome{
			Correct: true,
			Note:    stage.Note,
			Message: "Verified — opening doors...",
			Delay:   SuccessDelay,
		}, nil
	}

	if !stage.FailDoesExit {
		e.scheduleLocked(e.state.CurrentStageID+1, SoftFailDelay)
		e.mu.Unlock()
		return Outcome{
			SoftFail: true,
			Message:  stage.FailMessage,
			Delay:    SoftFailDelay,
		}, nil
	}

	// Hard fail: freeze the timer and end the session now.
	e.cancelTimerLocked()
	e.state.ElapsedSeconds = e.elapsedLocked()
	e.state.Status = quest.StatusFailed
	e.state.FailReason = stage.FailMessage
	snapshot := e.state
	e.mu.Unlock()

	e.logger.Info("session failed", "stage", stage.ID, "reason", stage.FailMessage)
	e.sink.Emit(ctx, quest.PendingEvent{Kind: quest.EventRetry})
	e.notify(snapshot)
	return Outcome{Failed: true, Message: stage.FailMessage}, nil
}

// Tick recomputes elapsed time while in progress and returns the state.
// Display only; the final score is frozen by the terminal transition.
func (e *Engine) Tick() quest.SessionState {
	e.mu.Lock()
	if e.state.Status == quest.StatusInProgress {
		e.state.ElapsedSeconds = e.elapsedLocked()
	}
	state := e.state
	e.mu.Unlock()
	return state
}

// Reset returns the session to NotStarted and cancels any pending
// scheduled transition. It emits nothing; retry buttons emit their own
// Retry event via RetryAndReset.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.cancelTimerLocked()
	e.state = quest.SessionState{Status: quest.StatusNotStarted}
	snapshot := e.state
	e.mu.Unlock()
	e.notify(snapshot)
}

// RetryAndReset counts a retry with the backend, then resets.
func (e *Engine) RetryAndReset(ctx context.Context) {
	e.sink.Emit(ctx, quest.PendingEvent{Kind: quest.EventRetry})
	e.Reset()
}

// scheduleLocked arms the transition timer toward target (stage number,
// or len(stages)+1 meaning completion). Callers hold e.mu.
func (e *Engine) scheduleLocked(target int, delay time.Duration) {
	e.cancelTimerLocked()
	gen := e.gen
	t := e.clock.NewTimer(delay)
	done := make(chan struct{})
	e.timer = t
	e.timerDone = done
	go func() {
		select {
		case <-t.Chan():
			e.advance(target, gen)
		case <-done:
		}
	}()
}

// advance runs when a transition timer fires. Stale fires — anything
// scheduled before the last reset — are discarded.
func (e *Engine) advance(target, gen int) {
	e.mu.Lock()
	if gen != e.gen || e.state.Status != quest.StatusInProgress {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.timerDone = nil

	if target <= len(e.stages) {
		e.state.CurrentStageID = target
		snapshot := e.state
		e.mu.Unlock()
		e.notify(snapshot)
		return
	}

	// Stage 4 cleared: freeze the final time and finish.
	e.state.ElapsedSeconds = e.elapsedLocked()
	e.state.Status = quest.StatusSucceeded
	snapshot := e.state
	e.mu.Unlock()

	e.logger.Info("session completed", "player", snapshot.PlayerName, "seconds", snapshot.ElapsedSeconds)
	ctx := context.Background()
	e.sink.Emit(ctx, quest.PendingEvent{Kind: quest.EventComplete})
	e.sink.Emit(ctx, quest.PendingEvent{
		Kind:        quest.EventScore,
		Name:        snapshot.PlayerName,
		TimeSeconds: snapshot.ElapsedSeconds,
	})
	e.notify(snapshot)
}

func (e *Engine) elapsedLocked() int {
	return int(e.clock.Since(e.startedAt) / time.Second)
}

// cancelTimerLocked stops and drains a pending transition timer and bumps
// the generation so an already-fired goroutine is ignored.
func (e *Engine) cancelTimerLocked() {
	e.gen++
	if e.timer == nil {
		return
	}
	e.timer.Stop()
	close(e.timerDone)
	e.timer = nil
	e.timerDone = nil
}

func (e *Engine) notify(state quest.SessionState) {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}
