package server

import (
	"net/http"
	"strings"

	"github.com/securequest/api/internal/quest"
)

type PlayRequest struct {
	Name string `json:"name"`
}

func handleStats(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed reading stats")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handlePlay(store Store, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The name is optional: an anonymous play still counts.
		var req PlayRequest
		_ = readJSON(r, &req)
		name := quest.TruncateName(strings.TrimSpace(req.Name))

		stats, err := store.RecordPlay(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed incrementing play")
			return
		}
		broker.Publish(StatsEvent{Type: "play", Stats: stats})
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleRetry(store Store, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.RecordRetry(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed incrementing retry")
			return
		}
		broker.Publish(StatsEvent{Type: "retry", Stats: stats})
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleComplete(store Store, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.RecordComplete(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed incrementing completion")
			return
		}
		broker.Publish(StatsEvent{Type: "complete", Stats: stats})
		writeJSON(w, http.StatusOK, stats)
	}
}
