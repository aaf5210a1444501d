package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// EngineService defines the subset of the Supervisor the control handlers
// and health handler depend on.
type EngineService interface {
	Status() domain.EngineStatus
	Stats() domain.EngineStats
	GetEngineState(ctx context.Context) (domain.EngineStateRow, error)
	Stop()
	Start()
}

// ControlHandler serves the engine start/stop/stats control surface.
type ControlHandler struct {
	engine EngineService
}

// NewControlHandler creates a ControlHandler backed by engine.
func NewControlHandler(engine EngineService) *ControlHandler {
	return &ControlHandler{engine: engine}
}

// Start re-enables leadership acquisition.
// POST /start
func (h *ControlHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.engine.Start()
	writeJSON(w, http.StatusOK, map[string]string{"status": "starting"})
}

// Stop disables leadership acquisition and releases it if currently held.
// POST /stop
func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// StatsResponse mirrors domain.EngineStats plus the current status.
type StatsResponse struct {
	Status         domain.EngineStatus `json:"status"`
	ProcessedTicks int64               `json:"processed_ticks"`
	TriggersFired  int64               `json:"triggers_fired"`
	TriggersFailed int64               `json:"triggers_failed"`
}

// Stats returns the engine's live counters.
// GET /stats
func (h *ControlHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	writeJSON(w, http.StatusOK, StatsResponse{
		Status:         h.engine.Status(),
		ProcessedTicks: stats.ProcessedTicks,
		TriggersFired:  stats.TriggersFired,
		TriggersFailed: stats.TriggersFailed,
	})
}
