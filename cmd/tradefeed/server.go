package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rickgao/tradefeed/internal/aggregate"
	"github.com/rickgao/tradefeed/internal/connection"
	"github.com/rickgao/tradefeed/internal/model"
	"github.com/rickgao/tradefeed/internal/version"
)

// feedView is the part of *feed.Feed the status server reads.
type feedView interface {
	Snapshot() connection.Snapshot
	Signals() aggregate.Signals
	Clock() time.Time
	Stats() connection.ManagerStats
}

// createStatusHandler creates the HTTP handler for health and feed output.
func createStatusHandler(f feedView, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		snap := f.Snapshot()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		feedStatus := map[string]any{
			"state":   snap.Status,
			"target":  snap.Target.String(),
			"trades":  len(snap.Trades),
			"attempt": snap.Attempt,
		}
		if snap.Error != "" {
			feedStatus["error"] = snap.Error
		}
		health.Components["feed"] = feedStatus
		health.Components["stats"] = f.Stats()

		switch snap.Status {
		case model.StateReady:
		case model.StateUnauthorized:
			health.Status = "unhealthy"
		default:
			health.Status = "degraded"
		}

		code := http.StatusOK
		if health.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health, logger)
	})

	mux.HandleFunc("GET /trades", func(w http.ResponseWriter, r *http.Request) {
		trades := f.Snapshot().Trades

		if s := r.URL.Query().Get("limit"); s != "" {
			limit, err := strconv.Atoi(s)
			if err != nil || limit < 0 {
				http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
				return
			}
			if len(trades) > limit {
				trades = trades[:limit]
			}
		}
		if trades == nil {
			trades = []model.Trade{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"count":  len(trades),
			"trades": trades,
		}, logger)
	})

	mux.HandleFunc("GET /signals", func(w http.ResponseWriter, r *http.Request) {
		signals := f.Signals()

		if s := r.URL.Query().Get("window"); s != "" {
			window, err := time.ParseDuration(s)
			if err != nil {
				http.Error(w, "window must be a duration such as 5m", http.StatusBadRequest)
				return
			}
			latest := signals.LatestPrice
			signals = aggregate.Compute(f.Snapshot().Trades, f.Clock(), window, nil)
			signals.LatestPrice = latest
		}

		writeJSON(w, http.StatusOK, signals, logger)
	})

	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.Get(), logger)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response failed", "error", err)
	}
}
