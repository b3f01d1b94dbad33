package pending

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/securequest/api/internal/quest"
)

// Mirror keeps a non-authoritative local copy of the backend's stats and
// top scores. It exists only so the stats view has something to show when
// the backend is unreachable; backend data supersedes it whenever a call
// succeeds.
type Mirror struct {
	db *sql.DB
}

const (
	mirrorStatsID  = "stats"
	mirrorScoresID = "scores"
)

func NewMirror(ctx context.Context, db *sql.DB) (*Mirror, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS mirror (
		id   TEXT PRIMARY KEY,
		data JSONB NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("creating mirror table: %w", err)
	}
	return &Mirror{db: db}, nil
}

func (m *Mirror) get(ctx context.Context, id string, dest any) error {
	var data string
	err := m.db.QueryRowContext(ctx,
		`SELECT json(data) FROM mirror WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil // absent mirror reads as the zero value
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (m *Mirror) put(ctx context.Context, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO mirror (id, data) VALUES (?, jsonb(?))`,
		id, string(data))
	return err
}

// Stats returns the mirrored stats snapshot, zero-valued if none was saved.
func (m *Mirror) Stats(ctx context.Context) (quest.StatsSnapshot, error) {
	var stats quest.StatsSnapshot
	err := m.get(ctx, mirrorStatsID, &stats)
	return stats, err
}

// PutStats replaces the mirrored snapshot with an authoritative one.
func (m *Mirror) PutStats(ctx context.Context, stats quest.StatsSnapshot) error {
	return m.put(ctx, mirrorStatsID, stats)
}

// Scores returns up to limit mirrored scores, fastest first.
func (m *Mirror) Scores(ctx context.Context, limit int) ([]quest.ScoreRecord, error) {
	var scores []quest.ScoreRecord
	if err := m.get(ctx, mirrorScoresID, &scores); err != nil {
		return nil, err
	}
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

// PutScores replaces the mirrored score list with an authoritative one.
func (m *Mirror) PutScores(ctx context.Context, scores []quest.ScoreRecord) error {
	return m.put(ctx, mirrorScoresID, scores)
}

// ApplyLocal folds an undelivered event into the mirror so the degraded
// display still moves while the backend is down. The backend recomputes
// everything once the queue flushes.
func (m *Mirror) ApplyLocal(ctx context.Context, ev quest.PendingEvent) error {
	switch ev.Kind {
	case quest.EventPlay:
		stats, err := m.Stats(ctx)
		if err != nil {
			return err
		}
		stats.TotalPlays++
		if ev.Name != "" {
			name := ev.Name
			at := ev.EnqueuedAtMs
			stats.LastPlayer = &name
			stats.LastPlayedAtMs = &at
		}
		return m.PutStats(ctx, stats)

	case quest.EventRetry:
		stats, err := m.Stats(ctx)
		if err != nil {
			return err
		}
		stats.TotalRetries++
		return m.PutStats(ctx, stats)

	case quest.EventComplete:
		stats, err := m.Stats(ctx)
		if err != nil {
			return err
		}
		stats.TotalCompletions++
		return m.PutStats(ctx, stats)

	case quest.EventScore:
		scores, err := m.Scores(ctx, 0)
		if err != nil {
			return err
		}
		scores = append(scores, quest.ScoreRecord{
			Name:        ev.Name,
			TimeSeconds: ev.TimeSeconds,
			CreatedAtMs: ev.EnqueuedAtMs,
		})
		sort.SliceStable(scores, func(i, j int) bool {
			return scores[i].TimeSeconds < scores[j].TimeSeconds
		})
		if len(scores) > quest.MaxStoredScores {
			scores = scores[:quest.MaxStoredScores]
		}
		return m.PutScores(ctx, scores)
	}
	return nil
}
