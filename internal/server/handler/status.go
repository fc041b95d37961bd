package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// StatusProvider reports the bot's operational state.
type StatusProvider interface {
	Status() domain.BotStatus
}

// StatusHandler serves the bot status for the dashboard.
type StatusHandler struct {
	status StatusProvider
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(status StatusProvider) *StatusHandler {
	return &StatusHandler{status: status}
}

type statusResponse struct {
	Mode          string     `json:"mode"`
	Exchange      string     `json:"exchange"`
	Simulated     bool       `json:"simulated"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	OpenPositions int        `json:"open_positions"`
	Pairs         []string   `json:"pairs"`
	Cycles        int64      `json:"cycles"`
	LastCycleAt   *time.Time `json:"last_cycle_at,omitempty"`
}

// GetStatus responds with mode, venue, uptime and cycle progress.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	resp := statusResponse{
		Mode:          st.Mode,
		Exchange:      st.Exchange,
		Simulated:     st.Simulated,
		UptimeSeconds: st.UptimeSeconds,
		OpenPositions: st.OpenPositions,
		Pairs:         st.Pairs,
		Cycles:        st.Cycles,
	}
	if resp.Pairs == nil {
		resp.Pairs = []string{}
	}
	if !st.LastCycleAt.IsZero() {
		t := st.LastCycleAt.UTC()
		resp.LastCycleAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}
