package pending

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/securequest/api/internal/client"
	"github.com/securequest/api/internal/database"
	"github.com/securequest/api/internal/migrations"
	"github.com/securequest/api/internal/quest"
	"github.com/securequest/api/internal/server"
	"github.com/securequest/api/internal/session"
)

// startBackend brings up the real HTTP server over in-memory sqlite.
func startBackend(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open backend db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	srv := server.New(":0", discardLogger(), server.NewSQLiteStore(db), db, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// TestPlaythroughSyncsToRealBackend runs a full winning session against
// the real server: the dispatcher delivers everything live, the queue
// stays empty, and the backend ends up with the play, the completion and
// the score.
func TestPlaythroughSyncsToRealBackend(t *testing.T) {
	ctx := context.Background()
	ts := startBackend(t)

	localDB, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open local db: %v", err)
	}
	t.Cleanup(func() { localDB.Close() })

	clock := clockwork.NewFakeClock()
	queue, err := NewQueue(ctx, localDB, clock, discardLogger())
	if err != nil {
		t.Fatalf("creating queue: %v", err)
	}
	mirror, err := NewMirror(ctx, localDB)
	if err != nil {
		t.Fatalf("creating mirror: %v", err)
	}

	api := client.New(ts.URL, time.Second, discardLogger())
	dispatcher := NewDispatcher(api, queue, mirror, discardLogger())

	engine, err := session.New(quest.Catalog(), dispatcher, clock, discardLogger())
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	changes := make(chan quest.SessionState, 16)
	engine.OnChange(func(s quest.SessionState) { changes <- s })

	if err := engine.Start(ctx, "Eve"); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-changes // started

	stages := quest.Catalog()
	for i := range stages {
		out, err := engine.Submit(ctx, quest.CorrectChoice(stages[i]))
		if err != nil {
			t.Fatalf("submit stage %d: %v", i+1, err)
		}
		if !out.Correct {
			t.Fatalf("stage %d: outcome = %+v, want correct", i+1, out)
		}
		clock.BlockUntil(1)
		clock.Advance(session.SuccessDelay)

		select {
		case <-changes:
		case <-time.After(2 * time.Second):
			t.Fatalf("stage %d: transition never fired", i+1)
		}
	}

	if got := engine.State().Status; got != quest.StatusSucceeded {
		t.Fatalf("status = %q, want %q", got, quest.StatusSucceeded)
	}

	// Everything was delivered live; nothing should be parked.
	if n, err := queue.Len(ctx); err != nil || n != 0 {
		t.Fatalf("queue len = %d (err %v), want 0", n, err)
	}

	stats, err := api.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPlays != 1 || stats.TotalCompletions != 1 || stats.TotalRetries != 0 {
		t.Fatalf("stats = %+v, want plays=1 completions=1 retries=0", stats)
	}
	if stats.LastPlayer == nil || *stats.LastPlayer != "Eve" {
		t.Fatalf("lastPlayer = %v, want Eve", stats.LastPlayer)
	}

	top, err := api.Leaderboard(ctx, quest.DefaultLeaderboardLimit)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(top) != 1 || top[0].Name != "Eve" {
		t.Fatalf("leaderboard = %+v, want one run by Eve", top)
	}

	// The mirror was refreshed from the live responses.
	local, err := mirror.Stats(ctx)
	if err != nil {
		t.Fatalf("mirror stats: %v", err)
	}
	if local.TotalPlays != 1 || local.TotalCompletions != 1 {
		t.Fatalf("mirror stats = %+v, want plays=1 completions=1", local)
	}
}
