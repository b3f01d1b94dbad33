package pending

import (
	"context"
	"log/slog"

	"github.com/securequest/api/internal/quest"
)

// Backend is the mutating half of the sync client, as the dispatcher
// sees it.
type Backend interface {
	Sender
	Play(ctx context.Context, name string) (quest.StatsSnapshot, error)
	Retry(ctx context.Context) (quest.StatsSnapshot, error)
	Complete(ctx context.Context) (quest.StatsSnapshot, error)
	Score(ctx context.Context, name string, seconds int) ([]quest.ScoreRecord, error)
}

// Dispatcher routes game events to the backend and decides queuing policy
// from the result: delivered responses refresh the local mirror, failures
// park the event in the queue and fold it into the mirror so the degraded
// display still moves. It implements session.EventSink.
type Dispatcher struct {
	backend Backend
	queue   *Queue
	mirror  *Mirror
	logger  *slog.Logger
}

func NewDispatcher(backend Backend, queue *Queue, mirror *Mirror, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{backend: backend, queue: queue, mirror: mirror, logger: logger}
}

// Emit attempts delivery of ev. It never fails the caller: the game
// continues regardless of sync status.
func (d *Dispatcher) Emit(ctx context.Context, ev quest.PendingEvent) {
	var err error
	switch ev.Kind {
	case quest.EventPlay:
		var stats quest.StatsSnapshot
		if stats, err = d.backend.Play(ctx, ev.Name); err == nil {
			d.putStats(ctx, stats)
		}
	case quest.EventRetry:
		var stats quest.StatsSnapshot
		if stats, err = d.backend.Retry(ctx); err == nil {
			d.putStats(ctx, stats)
		}
	case quest.EventComplete:
		var stats quest.StatsSnapshot
		if stats, err = d.backend.Complete(ctx); err == nil {
			d.putStats(ctx, stats)
		}
	case quest.EventScore:
		var top []quest.ScoreRecord
		if top, err = d.backend.Score(ctx, ev.Name, ev.TimeSeconds); err == nil {
			if perr := d.mirror.PutScores(ctx, top); perr != nil {
				d.logger.Error("updating score mirror", "error", perr)
			}
		}
	default:
		d.logger.Error("dropping event of unknown kind", "kind", ev.Kind)
		return
	}
	if err == nil {
		return
	}

	if ev.EnqueuedAtMs == 0 {
		ev.EnqueuedAtMs = d.queue.clock.Now().UnixMilli()
	}
	if qerr := d.queue.Enqueue(ctx, ev); qerr != nil {
		d.logger.Error("enqueueing undelivered event", "kind", ev.Kind, "error", qerr)
		return
	}
	if merr := d.mirror.ApplyLocal(ctx, ev); merr != nil {
		d.logger.Error("applying event to mirror", "kind", ev.Kind, "error", merr)
	}
}

func (d *Dispatcher) putStats(ctx context.Context, stats quest.StatsSnapshot) {
	if err := d.mirror.PutStats(ctx, stats); err != nil {
		d.logger.Error("updating stats mirror", "error", err)
	}
}
