// Package pending is the client-side durable sync layer: a FIFO queue of
// undelivered backend events, the flusher that replays them, and the local
// stats/score mirrors used for degraded display while offline.
package pending

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/securequest/api/internal/quest"
)

// Sender delivers one queued event. Implemented by client.Client.
type Sender interface {
	Send(ctx context.Context, ev quest.PendingEvent) error
}

// Queue is a durable FIFO of pending events. Rows are ordered by an
// autoincrement id, so insertion order is causal order and survives
// process restarts.
type Queue struct {
	db       *sql.DB
	clock    clockwork.Clock
	logger   *slog.Logger
	flushing atomic.Bool
}

func NewQueue(ctx context.Context, db *sql.DB, clock clockwork.Clock, logger *slog.Logger) (*Queue, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS pending_events (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		data JSONB NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("creating pending_events table: %w", err)
	}
	return &Queue{db: db, clock: clock, logger: logger}, nil
}

// Enqueue appends ev, stamping it with the current time. The row is
// persisted immediately so the event survives a reload.
func (q *Queue) Enqueue(ctx context.Context, ev quest.PendingEvent) error {
	if ev.EnqueuedAtMs == 0 {
		ev.EnqueuedAtMs = q.clock.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO pending_events (data) VALUES (jsonb(?))`, string(data))
	if err != nil {
		return fmt.Errorf("enqueueing %s event: %w", ev.Kind, err)
	}
	q.logger.Info("event queued for later delivery", "kind", ev.Kind)
	return nil
}

// Events returns the queued events in delivery order.
func (q *Queue) Events(ctx context.Context) ([]quest.PendingEvent, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT json(data) FROM pending_events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []quest.PendingEvent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev quest.PendingEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Len reports the number of queued events.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_events`).Scan(&n)
	return n, err
}

// Flush attempts to deliver every queued event in original order, one at a
// time. Delivered events are removed; failed ones stay in place for the
// next flush. A Flush that observes another in progress is a no-op, and an
// empty queue is a no-op. Events enqueued while a flush is running are
// untouched: rows are deleted by id, never truncated.
func (q *Queue) Flush(ctx context.Context, sender Sender) error {
	if !q.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer q.flushing.Store(false)

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, json(data) FROM pending_events ORDER BY id`)
	if err != nil {
		return err
	}

	type row struct {
		id   int64
		data string
	}
	var snapshot []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.data); err != nil {
			rows.Close()
			return err
		}
		snapshot = append(snapshot, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(snapshot) == 0 {
		return nil
	}

	delivered := 0
	for _, r := range snapshot {
		var ev quest.PendingEvent
		if err := json.Unmarshal([]byte(r.data), &ev); err != nil {
			// An unreadable row can never deliver; drop it rather than
			// wedge the queue.
			q.logger.Error("dropping corrupt pending event", "id", r.id, "error", err)
			q.db.ExecContext(ctx, `DELETE FROM pending_events WHERE id = ?`, r.id)
			continue
		}
		if err := sender.Send(ctx, ev); err != nil {
			q.logger.Debug("pending event still undeliverable", "kind", ev.Kind, "error", err)
			continue
		}
		if _, err := q.db.ExecContext(ctx,
			`DELETE FROM pending_events WHERE id = ?`, r.id); err != nil {
			return fmt.Errorf("removing delivered event: %w", err)
		}
		delivered++
	}

	if delivered > 0 {
		q.logger.Info("flushed pending events", "delivered", delivered, "remaining", len(snapshot)-delivered)
	}
	return nil
}
