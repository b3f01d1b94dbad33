package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/securequest/api/internal/quest"
)

type ScoreRequest struct {
	Name string   `json:"name"`
	Time *float64 `json:"time"`
}

func handleScore(store Store, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScoreRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.Time == nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		seconds := int(math.Floor(*req.Time))
		if seconds < 0 {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		top, err := store.AddScore(r.Context(), quest.TruncateName(req.Name), seconds)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed saving score")
			return
		}
		if stats, err := store.Stats(r.Context()); err == nil {
			broker.Publish(StatsEvent{Type: "score", Stats: stats})
		}
		writeJSON(w, http.StatusOK, top)
	}
}

func handleLeaderboard(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := quest.DefaultLeaderboardLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		scores, err := store.TopScores(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed reading leaderboard")
			return
		}
		writeJSON(w, http.StatusOK, scores)
	}
}
