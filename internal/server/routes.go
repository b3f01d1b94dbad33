package server

import (
	"database/sql"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, store Store, db *sql.DB, staticDir string) {
	broker := NewBroker()

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Secure Quest API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, db))

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", handleStats(store))
		r.Post("/play", handlePlay(store, broker))
		r.Post("/retry", handleRetry(store, broker))
		r.Post("/complete", handleComplete(store, broker))
		r.Get("/leaderboard", handleLeaderboard(store))
		r.Post("/score", handleScore(store, broker))
		r.Get("/events", handleEvents(broker))
	})

	if staticDir != "" {
		if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
			logger.Info("serving web client", "dir", staticDir)
			r.NotFound(handleStatic(staticDir))
		}
	}
}
