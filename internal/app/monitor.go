package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
	"github.com/alanyoungcy/coinbot/internal/service"
)

// snapshotView is a read-only portfolio rebuilt from the latest durable
// snapshot. Each refresh swaps in a fresh ledger so readers never see a
// half-restored state.
type snapshotView struct {
	risk      portfolio.Config
	snapshots domain.SnapshotStore
	trades    domain.TradeStore
	prices    *service.PriceService
	logger    *slog.Logger

	current atomic.Pointer[viewState]
}

type viewState struct {
	positions *service.PositionService
	trades    *service.TradeService
}

func newSnapshotView(risk portfolio.Config, snapshots domain.SnapshotStore, trades domain.TradeStore, prices *service.PriceService, logger *slog.Logger) *snapshotView {
	return &snapshotView{
		risk:      risk,
		snapshots: snapshots,
		trades:    trades,
		prices:    prices,
		logger:    logger,
	}
}

// Refresh rebuilds the view from the latest snapshot.
func (v *snapshotView) Refresh(ctx context.Context) error {
	ledger := portfolio.NewLedger(v.risk, v.logger)
	positions := service.NewPositionService(ledger, v.snapshots, v.prices, nil, v.logger)
	if err := positions.Restore(ctx); err != nil {
		return fmt.Errorf("monitor: refresh view: %w", err)
	}
	trades := service.NewTradeService(ledger, v.trades, positions, nil, nil, nil, nil, v.logger)
	v.current.Store(&viewState{positions: positions, trades: trades})
	return nil
}

// Run refreshes the view every interval until ctx is cancelled. Failed
// refreshes keep the previous view.
func (v *snapshotView) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := v.Refresh(ctx); err != nil {
				v.logger.WarnContext(ctx, "monitor: snapshot refresh failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (v *snapshotView) Summary(ctx context.Context) domain.PortfolioSummary {
	return v.current.Load().positions.Summary(ctx)
}

func (v *snapshotView) Positions() []domain.Position {
	return v.current.Load().positions.Positions()
}

func (v *snapshotView) Position(instrument string) (domain.Position, error) {
	return v.current.Load().positions.Position(instrument)
}

func (v *snapshotView) List(ctx context.Context, instrument string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	return v.current.Load().trades.List(ctx, instrument, opts)
}
