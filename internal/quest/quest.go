// Package quest defines the core domain types for the Secure Quest game.
// It has zero external dependencies — everything here is pure Go.
package quest

// Choice is one selectable answer on a stage. Exactly one choice per
// stage is correct; ValidateCatalog enforces that at startup.
type Choice struct {
	Label   string `json:"label"`
	Correct bool   `json:"correct"`
}

// Stage is one of the four sequential access-control scenarios.
type Stage struct {
	ID       int      `json:"id"`
	Label    string   `json:"label"`
	Prompt   string   `json:"prompt"`
	Choices  []Choice `json:"choices"`
	Note     string   `json:"note"`
	// FailDoesExit controls whether a wrong choice ends the session.
	// Stage 1 is the only stage where it is false: the guard lets you
	// through but marks you suspicious.
	FailDoesExit bool   `json:"failDoesExit"`
	FailMessage  string `json:"failMessage"`
}

// SessionStatus is the lifecycle state of a play session.
type SessionStatus string

const (
	StatusNotStarted SessionStatus = "not_started"
	StatusInProgress SessionStatus = "in_progress"
	StatusSucceeded  SessionStatus = "succeeded"
	StatusFailed     SessionStatus = "failed"
)

// SessionState is the full state of one play session. It is owned by the
// session engine and handed out by value so callers cannot mutate it.
type SessionState struct {
	PlayerName     string
	CurrentStageID int
	StartedAtMs    int64
	ElapsedSeconds int
	Status         SessionStatus
	FailReason     string
}

// EventKind identifies a sync operation destined for the backend.
type EventKind string

const (
	EventPlay     EventKind = "play"
	EventRetry    EventKind = "retry"
	EventComplete EventKind = "complete"
	EventScore    EventKind = "score"
)

// PendingEvent is a game event that must reach the backend. When delivery
// fails it is parked in the pending queue and replayed on the next flush.
type PendingEvent struct {
	Kind         EventKind `json:"kind"`
	Name         string    `json:"name,omitempty"`
	TimeSeconds  int       `json:"time,omitempty"`
	EnqueuedAtMs int64     `json:"enqueuedAt,omitempty"`
}

// StatsSnapshot mirrors the backend's global counters. The client only
// ever computes one locally as a degraded-display fallback.
type StatsSnapshot struct {
	TotalPlays       int     `json:"totalPlays"`
	TotalCompletions int     `json:"totalCompletions"`
	TotalRetries     int     `json:"totalRetries"`
	LastPlayer       *string `json:"lastPlayer"`
	LastPlayedAtMs   *int64  `json:"lastPlayedAt"`
}

// ScoreRecord is one completed run on the leaderboard. Lower time is better.
type ScoreRecord struct {
	Name        string `json:"name"`
	TimeSeconds int    `json:"time"`
	CreatedAtMs int64  `json:"createdAt,omitempty"`
}

// MaxPlayerName is the longest player name stored anywhere; longer
// names are truncated, matching the backend.
const MaxPlayerName = 64

// MaxStoredScores caps the backend score file; only the lowest-time
// records are retained.
const MaxStoredScores = 50

// DefaultLeaderboardLimit is the number of records a leaderboard query
// returns when no limit is given.
const DefaultLeaderboardLimit = 5
