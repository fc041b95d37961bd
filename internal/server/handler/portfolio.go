package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/service"
)

// PortfolioReader is the read side of the ledger.
type PortfolioReader interface {
	Summary(ctx context.Context) domain.PortfolioSummary
	Positions() []domain.Position
	Position(instrument string) (domain.Position, error)
}

// PortfolioHandler serves the portfolio summary and open positions.
type PortfolioHandler struct {
	portfolio PortfolioReader
	mode      string
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler.
func NewPortfolioHandler(portfolio PortfolioReader, mode string, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolio: portfolio,
		mode:      mode,
		logger:    logger,
	}
}

// GetPortfolio returns the portfolio summary marked at cached prices.
// GET /api/portfolio
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, service.PortfolioView(h.portfolio.Summary(r.Context()), h.mode))
}

type listPositionsResponse struct {
	Positions []service.PositionDocument `json:"positions"`
}

// ListPositions returns all open positions ordered by instrument.
// GET /api/positions
func (h *PortfolioHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	resp := listPositionsResponse{Positions: []service.PositionDocument{}}
	for _, p := range h.portfolio.Positions() {
		resp.Positions = append(resp.Positions, service.PositionView(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPosition returns the open position for one instrument.
// GET /api/positions/{instrument}
func (h *PortfolioHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	instrument := r.PathValue("instrument")
	pos, err := h.portfolio.Position(instrument)
	if errors.Is(err, domain.ErrNoPosition) {
		writeError(w, http.StatusNotFound, "no open position for "+instrument)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("instrument", instrument),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}
	writeJSON(w, http.StatusOK, service.PositionView(pos))
}
