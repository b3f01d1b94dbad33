package pending

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Flusher replays the queue opportunistically: once at startup, on a
// fixed interval, and whenever Kick is called (connectivity restored,
// window focus regained). View-open flushes go straight through
// Queue.Flush so the rendered data reflects anything just delivered.
type Flusher struct {
	queue    *Queue
	sender   Sender
	clock    clockwork.Clock
	interval time.Duration
	kick     chan struct{}
	logger   *slog.Logger
}

func NewFlusher(queue *Queue, sender Sender, clock clockwork.Clock, interval time.Duration, logger *slog.Logger) *Flusher {
	return &Flusher{
		queue:    queue,
		sender:   sender,
		clock:    clock,
		interval: interval,
		kick:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Kick requests an immediate flush. Safe to call from any goroutine;
// coalesces if one is already requested.
func (f *Flusher) Kick() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// Run flushes until ctx is cancelled. Flush failures are logged, never
// fatal: the events stay queued for the next attempt.
func (f *Flusher) Run(ctx context.Context) error {
	f.flush(ctx)

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			f.flush(ctx)
		case <-f.kick:
			f.flush(ctx)
		}
	}
}

func (f *Flusher) flush(ctx context.Context) {
	if err := f.queue.Flush(ctx, f.sender); err != nil {
		f.logger.Error("flush failed", "error", err)
	}
}
