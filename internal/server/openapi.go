package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/securequest/api/internal/quest"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Secure Quest API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Global stats and leaderboard backend for the Secure Quest game.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/stats
	getStats, _ := r.NewOperationContext(http.MethodGet, "/api/stats")
	getStats.SetSummary("Global stats")
	getStats.SetDescription("Returns the global play counters and the last player.")
	getStats.AddRespStructure(quest.StatsSnapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	getStats.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(getStats)

	// POST /api/play
	postPlay, _ := r.NewOperationContext(http.MethodPost, "/api/play")
	postPlay.SetSummary("Record a play")
	postPlay.SetDescription("Increments totalPlays and records the last player. Returns the updated stats.")
	postPlay.AddReqStructure(PlayRequest{})
	postPlay.AddRespStructure(quest.StatsSnapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	postPlay.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(postPlay)

	// POST /api/retry
	postRetry, _ := r.NewOperationContext(http.MethodPost, "/api/retry")
	postRetry.SetSummary("Record a retry")
	postRetry.SetDescription("Increments totalRetries. Returns the updated stats.")
	postRetry.AddRespStructure(quest.StatsSnapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	postRetry.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(postRetry)

	// POST /api/complete
	postComplete, _ := r.NewOperationContext(http.MethodPost, "/api/complete")
	postComplete.SetSummary("Record a completion")
	postComplete.SetDescription("Increments totalCompletions. Returns the updated stats.")
	postComplete.AddRespStructure(quest.StatsSnapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	postComplete.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(postComplete)

	// GET /api/leaderboard
	getLeaderboard, _ := r.NewOperationContext(http.MethodGet, "/api/leaderboard")
	getLeaderboard.SetSummary("Leaderboard")
	getLeaderboard.SetDescription("Returns up to limit records ordered by ascending completion time. Default limit is 5.")
	getLeaderboard.AddRespStructure([]quest.ScoreRecord{}, openapi.WithHTTPStatus(http.StatusOK))
	getLeaderboard.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(getLeaderboard)

	// POST /api/score
	postScore, _ := r.NewOperationContext(http.MethodPost, "/api/score")
	postScore.SetSummary("Submit a score")
	postScore.SetDescription("Stores a completion time and returns the top five. Keeps only the fastest fifty records.")
	postScore.AddReqStructure(ScoreRequest{})
	postScore.AddRespStructure([]quest.ScoreRecord{}, openapi.WithHTTPStatus(http.StatusOK))
	postScore.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postScore.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(postScore)

	// GET /api/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/events")
	getEvents.SetSummary("SSE stats stream")
	getEvents.SetDescription("Server-Sent Events stream pushing the updated stats after every mutating call.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
