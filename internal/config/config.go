package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server configures the stats/leaderboard backend.
type Server struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/securequest.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	// StaticDir, when set to an existing directory, makes the backend
	// serve the web client alongside the API.
	StaticDir string `env:"SPA_DIR" envDefault:""`
}

// Quest configures the terminal player and its sync layer.
type Quest struct {
	// APIBase is the backend origin, e.g. http://localhost:8080.
	// Empty means no backend is configured: every sync call fails fast
	// and events pile up in the local queue.
	APIBase       string        `env:"API_BASE" envDefault:""`
	QueueDBPath   string        `env:"QUEUE_DB" envDefault:"data/quest-local.db"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"20s"`
	HTTPTimeout   time.Duration `env:"HTTP_TIMEOUT" envDefault:"4s"`
	LogLevel      slog.Level    `env:"LOG_LEVEL" envDefault:"WARN"`
}

func LoadServer() (*Server, error) {
	cfg, err := env.ParseAs[Server]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

func LoadQuest() (*Quest, error) {
	cfg, err := env.ParseAs[Quest]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
