// Command quest is the terminal player for Secure Quest. It runs the
// four-stage session locally and syncs plays, retries, completions and
// scores to the backend through a durable pending queue, so a run in a
// dead network still counts once connectivity returns.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/securequest/api/internal/client"
	"github.com/securequest/api/internal/config"
	"github.com/securequest/api/internal/database"
	"github.com/securequest/api/internal/pending"
	"github.com/securequest/api/internal/quest"
	"github.com/securequest/api/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	_ = godotenv.Load()

	cfg, err := config.LoadQuest()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr so they never interleave with the game screen.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if dir := filepath.Dir(cfg.QueueDBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
	}
	db, err := database.Open(ctx, cfg.QueueDBPath)
	if err != nil {
		return fmt.Errorf("opening local queue db: %w", err)
	}
	defer db.Close()

	clock := clockwork.NewRealClock()

	queue, err := pending.NewQueue(ctx, db, clock, logger)
	if err != nil {
		return fmt.Errorf("opening pending queue: %w", err)
	}
	mirror, err := pending.NewMirror(ctx, db)
	if err != nil {
		return fmt.Errorf("opening local mirror: %w", err)
	}

	api := client.New(cfg.APIBase, cfg.HTTPTimeout, logger)
	if !api.Configured() {
		fmt.Fprintln(stdout, "(no API_BASE configured: playing offline, events queue locally)")
	}

	dispatcher := pending.NewDispatcher(api, queue, mirror, logger)
	flusher := pending.NewFlusher(queue, api, clock, cfg.FlushInterval, logger)

	engine, err := session.New(quest.Catalog(), dispatcher, clock, logger)
	if err != nil {
		return fmt.Errorf("building session engine: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return flusher.Run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(session.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				engine.Tick()
			}
		}
	})

	g.Go(func() error {
		defer cancel()
		gm := &game{
			engine:  engine,
			api:     api,
			queue:   queue,
			mirror:  mirror,
			flusher: flusher,
			in:      bufio.NewScanner(stdin),
			out:     stdout,
		}
		return gm.play(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// game drives the interactive loop over a session engine.
type game struct {
	engine  *session.Engine
	api     *client.Client
	queue   *pending.Queue
	mirror  *pending.Mirror
	flusher *pending.Flusher
	in      *bufio.Scanner
	out     io.Writer

	changes chan quest.SessionState
}

func (g *game) play(ctx context.Context) error {
	g.changes = make(chan quest.SessionState, 16)
	g.engine.OnChange(func(s quest.SessionState) {
		select {
		case g.changes <- s:
		default:
		}
	})

	fmt.Fprintln(g.out, "=== SECURE QUEST ===")
	fmt.Fprintln(g.out, "Four checkpoints stand between you and the server room.")
	fmt.Fprintln(g.out, "Type 'stats' for the scoreboard, 'quit' to leave.")

	for {
		name, ok := g.prompt("\nEnter your name: ")
		if !ok {
			return g.farewell(ctx)
		}
		switch strings.ToLower(name) {
		case "quit", "q":
			return g.farewell(ctx)
		case "stats", "!stats":
			g.showStats(ctx)
			continue
		}

		if err := g.engine.Start(ctx, name); err != nil {
			fmt.Fprintf(g.out, "cannot start: %v\n", err)
			continue
		}
		g.flusher.Kick()

		again, ok := g.runSession(ctx)
		if !ok {
			return g.farewell(ctx)
		}
		if !again {
			return g.farewell(ctx)
		}
	}
}

// runSession plays one started session through to success, failure or
// quit. It reports whether the player wants another run.
func (g *game) runSession(ctx context.Context) (again, ok bool) {
	for {
		state := g.engine.State()
		switch state.Status {
		case quest.StatusSucceeded:
			return g.successScreen(ctx, state)
		case quest.StatusFailed:
			return g.failScreen(ctx, state)
		case quest.StatusNotStarted:
			return true, true
		}

		stage, err := g.engine.Stage()
		if err != nil {
			// A transition landed between State and Stage; re-read.
			continue
		}
		g.renderStage(stage, state)

		line, alive := g.prompt("> ")
		if !alive {
			return false, false
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "q":
			g.engine.Reset()
			return false, true
		case "stats", "!stats":
			g.showStats(ctx)
			continue
		}

		idx := choiceIndex(line, len(stage.Choices))
		if idx < 0 {
			fmt.Fprintf(g.out, "pick a letter A-%c\n", 'A'+len(stage.Choices)-1)
			continue
		}

		out, err := g.engine.Submit(ctx, idx)
		if err != nil {
			// The scheduled transition beat the submit; loop re-reads state.
			continue
		}

		switch {
		case out.Correct:
			fmt.Fprintf(g.out, "\n  ✓ %s\n", out.Note)
			fmt.Fprintf(g.out, "  %s\n", out.Message)
			g.awaitTransition(ctx, out.Delay)
		case out.SoftFail:
			fmt.Fprintf(g.out, "\n  %s\n", out.Message)
			g.awaitTransition(ctx, out.Delay)
		case out.Failed:
			// State already flipped; next iteration shows the fail screen.
		}
	}
}

// awaitTransition blocks until the engine reports a state change, with a
// generous ceiling in case the notification is dropped.
func (g *game) awaitTransition(ctx context.Context, delay time.Duration) {
	deadline := time.NewTimer(delay + 2*time.Second)
	defer deadline.Stop()
	select {
	case <-ctx.Done():
	case <-g.changes:
	case <-deadline.C:
	}
}

func (g *game) renderStage(stage quest.Stage, state quest.SessionState) {
	fmt.Fprintf(g.out, "\n-- Checkpoint %d/4: %s  [%ds] --\n", stage.ID, stage.Label, state.ElapsedSeconds)
	fmt.Fprintln(g.out, stage.Prompt)
	for i, c := range stage.Choices {
		fmt.Fprintf(g.out, "  %c) %s\n", 'A'+i, c.Label)
	}
}

func (g *game) successScreen(ctx context.Context, state quest.SessionState) (again, ok bool) {
	fmt.Fprintln(g.out, "\n*** ACCESS GRANTED ***")
	fmt.Fprintf(g.out, "%s cleared all four checkpoints in %d seconds.\n", state.PlayerName, state.ElapsedSeconds)

	fmt.Fprintln(g.out, "\nHow each door opened:")
	for _, s := range quest.Solutions(quest.Catalog()) {
		fmt.Fprintf(g.out, "  %d. %s — %s\n", s.StageID, s.Label, s.Answer)
	}

	g.showLeaderboard(ctx)

	line, alive := g.prompt("\nPlay again? [y/N] ")
	if !alive {
		return false, false
	}
	return strings.EqualFold(line, "y"), true
}

func (g *game) failScreen(ctx context.Context, state quest.SessionState) (again, ok bool) {
	fmt.Fprintln(g.out, "\n*** ACCESS DENIED ***")
	fmt.Fprintf(g.out, "%s\n", state.FailReason)

	line, alive := g.prompt("\nTry again? [y/N] ")
	if !alive {
		return false, false
	}
	if strings.EqualFold(line, "y") {
		g.engine.RetryAndReset(ctx)
		return true, true
	}
	g.engine.Reset()
	return false, true
}

// showStats renders the scoreboard view. Opening the view flushes the
// queue first so the numbers include anything that just got delivered;
// when the backend is unreachable it falls back to the local mirror.
func (g *game) showStats(ctx context.Context) {
	_ = g.queue.Flush(ctx, g.api)

	stats, err := g.api.Stats(ctx)
	degraded := false
	if err != nil {
		stats, err = g.mirror.Stats(ctx)
		degraded = true
		if err != nil {
			fmt.Fprintln(g.out, "scoreboard unavailable")
			return
		}
	}

	fmt.Fprintln(g.out, "\n-- Scoreboard --")
	if degraded {
		fmt.Fprintln(g.out, "(offline: showing last known numbers)")
	}
	fmt.Fprintf(g.out, "  plays:       %d\n", stats.TotalPlays)
	fmt.Fprintf(g.out, "  completions: %d\n", stats.TotalCompletions)
	fmt.Fprintf(g.out, "  retries:     %d\n", stats.TotalRetries)
	fmt.Fprintf(g.out, "  last player: %s\n", orDash(stats.LastPlayer))
	fmt.Fprintf(g.out, "  last played: %s\n", orDashTime(stats.LastPlayedAtMs))

	g.showLeaderboard(ctx)
}

func (g *game) showLeaderboard(ctx context.Context) {
	scores, err := g.api.Leaderboard(ctx, quest.DefaultLeaderboardLimit)
	if err != nil {
		scores, err = g.mirror.Scores(ctx, quest.DefaultLeaderboardLimit)
		if err != nil {
			return
		}
	}
	if len(scores) == 0 {
		fmt.Fprintln(g.out, "\nNo runs on the board yet.")
		return
	}
	fmt.Fprintln(g.out, "\nFastest runs:")
	for i, s := range scores {
		fmt.Fprintf(g.out, "  %d. %-20s %3ds\n", i+1, s.Name, s.TimeSeconds)
	}
}

// farewell makes one last delivery attempt so a run finished moments
// before quitting still reaches the backend.
func (g *game) farewell(ctx context.Context) error {
	g.engine.Reset()
	_ = g.queue.Flush(ctx, g.api)
	if n, err := g.queue.Len(ctx); err == nil && n > 0 {
		fmt.Fprintf(g.out, "(%d event(s) still queued; they sync on the next run)\n", n)
	}
	fmt.Fprintln(g.out, "Goodbye.")
	return nil
}

func (g *game) prompt(label string) (string, bool) {
	fmt.Fprint(g.out, label)
	if !g.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(g.in.Text()), true
}

// choiceIndex parses "a".."d" or "1".."4" into a zero-based choice index.
func choiceIndex(line string, n int) int {
	if len(line) != 1 {
		return -1
	}
	c := line[0]
	switch {
	case c >= 'a' && c <= 'z':
		c -= 'a' - 'A'
	}
	if c >= 'A' && int(c-'A') < n {
		return int(c - 'A')
	}
	if c >= '1' && int(c-'1') < n {
		return int(c - '1')
	}
	return -1
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "—"
	}
	return *s
}

func orDashTime(ms *int64) string {
	if ms == nil {
		return "—"
	}
	return time.UnixMilli(*ms).Format("2006-01-02 15:04")
}
