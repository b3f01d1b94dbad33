package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/securequest/api/internal/quest"
)

// SQLiteStore implements Store over the stats singleton row and the
// scores table, both holding JSONB documents.
//
// Counter updates are a read-modify-write without transactional
// isolation: two concurrent increments can collapse into one, last
// writer wins. Accepted for a casual demo counter, not a ledger.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Stats(ctx context.Context) (quest.StatsSnapshot, error) {
	var stats quest.StatsSnapshot
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM stats WHERE id = 1`).Scan(&data)
	if err != nil {
		return stats, fmt.Errorf("reading stats: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return stats, fmt.Errorf("decoding stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) putStats(ctx context.Context, stats quest.StatsSnapshot) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE stats SET data = jsonb(?) WHERE id = 1`, string(data))
	if err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordPlay(ctx context.Context, name string) (quest.StatsSnapshot, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalPlays++
	if name != "" {
		now := time.Now().UnixMilli()
		stats.LastPlayer = &name
		stats.LastPlayedAtMs = &now
	}
	return stats, s.putStats(ctx, stats)
}

func (s *SQLiteStore) RecordRetry(ctx context.Context) (quest.StatsSnapshot, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalRetries++
	return stats, s.putStats(ctx, stats)
}

func (s *SQLiteStore) RecordComplete(ctx context.Context) (quest.StatsSnapshot, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalCompletions++
	return stats, s.putStats(ctx, stats)
}

func (s *SQLiteStore) AddScore(ctx context.Context, name string, seconds int) ([]quest.ScoreRecord, error) {
	rec := quest.ScoreRecord{
		Name:        name,
		TimeSeconds: seconds,
		CreatedAtMs: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scores (id, time, created_at, data) VALUES (?, ?, ?, jsonb(?))`,
		uuid.NewString(), rec.TimeSeconds, rec.CreatedAtMs, string(data))
	if err != nil {
		return nil, fmt.Errorf("inserting score: %w", err)
	}

	// Retain only the fastest records.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM scores WHERE id NOT IN (
			SELECT id FROM scores ORDER BY time, created_at LIMIT ?
		)`, quest.MaxStoredScores)
	if err != nil {
		return nil, fmt.Errorf("pruning scores: %w", err)
	}

	return s.TopScores(ctx, quest.DefaultLeaderboardLimit)
}

func (s *SQLiteStore) TopScores(ctx context.Context, limit int) ([]quest.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT json(data) FROM scores ORDER BY time, created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading scores: %w", err)
	}
	defer rows.Close()

	scores := []quest.ScoreRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec quest.ScoreRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decoding score: %w", err)
		}
		scores = append(scores, rec)
	}
	return scores, rows.Err()
}
