package handler

import (
	"log/slog"
	"net/http"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	engine EngineService
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler backed by engine.
func NewHealthHandler(engine EngineService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{engine: engine, logger: logger}
}

// HealthCheck reports the engine's leadership status, the most recent
// engine-level error, and the running counters.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": h.engine.Status(),
		"stats":  h.engine.Stats(),
	}

	row, err := h.engine.GetEngineState(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: read engine state failed",
			slog.String("error", err.Error()),
		)
	} else {
		resp["instance"] = row.InstanceID
		resp["heartbeat"] = row.LastHeartbeat
		resp["error"] = row.EngineError
	}

	writeJSON(w, http.StatusOK, resp)
}
