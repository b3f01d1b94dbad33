package server

import (
	"context"

	"github.com/securequest/api/internal/quest"
)

// Store is the authoritative home of the global counters and the
// leaderboard. Counter mutations return the full updated snapshot so
// handlers can respond without a follow-up read.
type Store interface {
	Stats(ctx context.Context) (quest.StatsSnapshot, error)
	RecordPlay(ctx context.Context, name string) (quest.StatsSnapshot, error)
	RecordRetry(ctx context.Context) (quest.StatsSnapshot, error)
	RecordComplete(ctx context.Context) (quest.StatsSnapshot, error)

	// AddScore stores a completion, keeps only the lowest-time records up
	// to quest.MaxStoredScores, and returns the current top five.
	AddScore(ctx context.Context, name string, seconds int) ([]quest.ScoreRecord, error)
	// TopScores returns up to limit records, fastest first.
	TopScores(ctx context.Context, limit int) ([]quest.ScoreRecord, error)
}
