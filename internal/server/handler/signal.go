package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/service"
)

// DecisionFeed is the engine's in-memory view of recent decisions.
type DecisionFeed interface {
	LatestDecisions() []domain.Decision
	RecentDecisions(limit int) []domain.Decision
}

// DecisionHistory reads persisted decisions.
type DecisionHistory interface {
	Recent(ctx context.Context, instrument string, limit int) ([]domain.Decision, error)
}

// SignalHandler serves per-instrument signal snapshots.
type SignalHandler struct {
	feed    DecisionFeed    // nil when no engine runs in this process
	history DecisionHistory // may be nil
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler. Either source may be nil.
func NewSignalHandler(feed DecisionFeed, history DecisionHistory, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{feed: feed, history: history, logger: logger}
}

type signalsResponse struct {
	Signals []service.SignalDocument `json:"signals"`
}

// ListLatest returns the latest signal per instrument.
// GET /api/signals
func (h *SignalHandler) ListLatest(w http.ResponseWriter, r *http.Request) {
	resp := signalsResponse{Signals: []service.SignalDocument{}}
	if h.feed != nil {
		for _, dec := range h.feed.LatestDecisions() {
			resp.Signals = append(resp.Signals, service.SignalSnapshot(dec))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRecent returns recent decisions, newest first, from the decision store
// when available and from the engine's buffer otherwise.
// GET /api/signals/recent?instrument=BTC-USD&limit=20
func (h *SignalHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	instrument := r.URL.Query().Get("instrument")
	limit := parseLimit(r, 20, 500)

	decisions, err := h.recent(r.Context(), instrument, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list recent signals failed",
			slog.String("instrument", instrument),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}

	resp := signalsResponse{Signals: make([]service.SignalDocument, 0, len(decisions))}
	for _, dec := range decisions {
		resp.Signals = append(resp.Signals, service.SignalSnapshot(dec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SignalHandler) recent(ctx context.Context, instrument string, limit int) ([]domain.Decision, error) {
	if h.history != nil {
		out, err := h.history.Recent(ctx, instrument, limit)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if h.feed == nil {
		return nil, nil
	}

	// The engine buffer is not indexed by instrument; scan it in full.
	var out []domain.Decision
	for _, dec := range h.feed.RecentDecisions(math.MaxInt) {
		if instrument != "" && dec.Instrument != instrument {
			continue
		}
		out = append(out, dec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
