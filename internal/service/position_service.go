package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/metrics"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
)

// PositionService exposes the ledger's read side, marks it against cached
// prices and keeps the durable snapshot current.
type PositionService struct {
	ledger    *portfolio.Ledger
	snapshots domain.SnapshotStore
	prices    *PriceService
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewPositionService creates a PositionService. snapshots, prices and audit
// may be nil.
func NewPositionService(
	ledger *portfolio.Ledger,
	snapshots domain.SnapshotStore,
	prices *PriceService,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		ledger:    ledger,
		snapshots: snapshots,
		prices:    prices,
		audit:     audit,
		logger:    logger,
	}
}

// Restore loads the latest snapshot into the ledger. A missing snapshot is
// not an error; the ledger keeps its starting balance.
func (s *PositionService) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	snap, err := s.snapshots.Latest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.InfoContext(ctx, "position_service: no snapshot, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("position_service: load snapshot: %w", err)
	}
	if err := s.ledger.Restore(snap); err != nil {
		return fmt.Errorf("position_service: restore: %w", err)
	}

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, "portfolio_restored", map[string]any{
			"snapshot_id": snap.ID,
			"cash":        snap.Cash.String(),
			"positions":   len(snap.Positions),
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "position_service: audit log failed",
				slog.String("error", auditErr.Error()),
			)
		}
	}
	s.logger.InfoContext(ctx, "position_service: portfolio restored",
		slog.Int64("snapshot_id", snap.ID),
		slog.String("cash", snap.Cash.StringFixed(2)),
		slog.Int("positions", len(snap.Positions)),
		slog.Time("taken_at", snap.TakenAt),
	)
	return nil
}

// SaveSnapshot persists the current ledger state.
func (s *PositionService) SaveSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	if err := s.snapshots.Save(ctx, s.ledger.Snapshot()); err != nil {
		return fmt.Errorf("position_service: save snapshot: %w", err)
	}
	return nil
}

// Positions returns all open positions ordered by instrument.
func (s *PositionService) Positions() []domain.Position {
	return s.ledger.Positions()
}

// Position returns the open position for instrument.
func (s *PositionService) Position(instrument string) (domain.Position, error) {
	pos, ok := s.ledger.Position(instrument)
	if !ok {
		return domain.Position{}, fmt.Errorf("position_service: %s: %w", instrument, domain.ErrNoPosition)
	}
	return pos, nil
}

// Summary values the portfolio at the latest known prices and refreshes the
// balance gauges.
func (s *PositionService) Summary(ctx context.Context) domain.PortfolioSummary {
	sum := s.ledger.Summary(s.marks(ctx))
	RecordGauges(sum)
	return sum
}

// marks returns the latest price per open instrument: the cache first, then
// each position's last mark.
func (s *PositionService) marks(ctx context.Context) map[string]decimal.Decimal {
	positions := s.ledger.Positions()
	out := make(map[string]decimal.Decimal, len(positions))
	instruments := make([]string, 0, len(positions))
	for _, p := range positions {
		out[p.Instrument] = p.MarkPrice()
		instruments = append(instruments, p.Instrument)
	}
	if s.prices == nil || len(instruments) == 0 {
		return out
	}
	cached, err := s.prices.GetPrices(ctx, instruments)
	if err != nil {
		s.logger.DebugContext(ctx, "position_service: price cache unavailable",
			slog.String("error", err.Error()),
		)
		return out
	}
	for inst, p := range cached {
		if p.IsPositive() {
			out[inst] = p
		}
	}
	return out
}

// RecordGauges publishes the summary figures as Prometheus gauges.
func RecordGauges(sum domain.PortfolioSummary) {
	metrics.CashBalance.Set(sum.Cash.InexactFloat64())
	metrics.TotalBalance.Set(sum.TotalBalance.InexactFloat64())
	metrics.RealizedPnL.Set(sum.RealizedPnL.InexactFloat64())
	metrics.OpenPositions.Set(float64(sum.OpenPositions))
	metrics.Exposure.Set(sum.Exposure.InexactFloat64())
}
