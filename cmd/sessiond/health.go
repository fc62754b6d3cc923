package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/mt5-session/internal/session"
)

// statusSource is the part of a session the health endpoint reads.
type statusSource interface {
	Status(ctx context.Context) session.Status
}

type healthResponse struct {
	Status     string         `json:"status"`
	Session    session.Status `json:"session"`
	Components map[string]any `json:"components,omitempty"`
}

// healthStatus maps a session state to an overall status and HTTP code.
func healthStatus(st session.State) (string, int) {
	switch st {
	case session.Connected:
		return "healthy", http.StatusOK
	case session.Initializing, session.Reconnecting:
		return "degraded", http.StatusServiceUnavailable
	default:
		return "unhealthy", http.StatusServiceUnavailable
	}
}

// newHealthHandler serves the session status as JSON on path. components,
// if non-nil, adds per-component details to the response.
func newHealthHandler(path string, src statusSource, components func() map[string]any, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := healthResponse{Session: src.Status(ctx)}
		var code int
		resp.Status, code = healthStatus(resp.Session.State)
		if components != nil {
			resp.Components = components()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})

	return mux
}
