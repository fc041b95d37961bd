package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/service"
)

// TradeLister lists the trade history, newest first.
type TradeLister interface {
	List(ctx context.Context, instrument string, opts domain.ListOpts) ([]domain.TradeRecord, error)
}

// TradeHandler serves the trade history.
type TradeHandler struct {
	trades TradeLister
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeLister, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

type listTradesResponse struct {
	Trades []service.TradeDocument `json:"trades"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// ListTrades returns trades, optionally for one instrument.
// GET /api/trades?instrument=BTC-USD&limit=50&offset=0&since=...&until=...
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since/until must be RFC 3339 timestamps")
		return
	}
	instrument := r.URL.Query().Get("instrument")

	trades, err := h.trades.List(r.Context(), instrument, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("instrument", instrument),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	resp := listTradesResponse{
		Trades: make([]service.TradeDocument, 0, len(trades)),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for _, t := range trades {
		resp.Trades = append(resp.Trades, service.TradeView(t))
	}
	writeJSON(w, http.StatusOK, resp)
}
