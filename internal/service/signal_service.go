package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
	"github.com/alanyoungcy/coinbot/internal/strategy"
)

// SignalService observes engine cycles. It caches prices, persists decisions
// and throttle state, publishes signal events, snapshots the ledger and logs
// the per-cycle portfolio summary. Every dependency except positions is
// optional.
type SignalService struct {
	decisions  domain.DecisionStore
	throttle   domain.ThrottleStore
	prices     *PriceService
	positions  *PositionService
	publishers []domain.EventPublisher
	notifier   Notifier
	logger     *slog.Logger
}

// NewSignalService creates a SignalService.
func NewSignalService(
	decisions domain.DecisionStore,
	throttle domain.ThrottleStore,
	prices *PriceService,
	positions *PositionService,
	publishers []domain.EventPublisher,
	notifier Notifier,
	logger *slog.Logger,
) *SignalService {
	return &SignalService{
		decisions:  decisions,
		throttle:   throttle,
		prices:     prices,
		positions:  positions,
		publishers: publishers,
		notifier:   notifier,
		logger:     logger,
	}
}

// LoadThrottle seeds t with the persisted BUY signal times.
func (s *SignalService) LoadThrottle(ctx context.Context, t *portfolio.Throttle) error {
	if s.throttle == nil {
		return nil
	}
	signals, err := s.throttle.LoadSignals(ctx)
	if err != nil {
		return fmt.Errorf("signal_service: load throttle: %w", err)
	}
	t.Load(signals)
	s.logger.InfoContext(ctx, "signal_service: throttle restored",
		slog.Int("instruments", len(signals)),
	)
	return nil
}

// OnCycle implements strategy.CycleObserver.
func (s *SignalService) OnCycle(ctx context.Context, report strategy.CycleReport) {
	for _, dec := range report.Decisions {
		if s.prices != nil {
			if err := s.prices.RecordPrice(ctx, dec.Instrument, dec.Price, dec.CreatedAt); err != nil {
				s.logger.DebugContext(ctx, "signal_service: cache price failed",
					slog.String("instrument", dec.Instrument),
					slog.String("error", err.Error()),
				)
			}
		}
		if dec.Action == domain.ActionBuy && s.throttle != nil {
			if err := s.throttle.SaveSignal(ctx, dec.Instrument, dec.CreatedAt); err != nil {
				s.logger.WarnContext(ctx, "signal_service: save throttle failed",
					slog.String("instrument", dec.Instrument),
					slog.String("error", err.Error()),
				)
			}
		}
		if dec.Action != domain.ActionHold {
			s.publish(ctx, "signals", signalEvent(dec))
		}
	}

	if s.decisions != nil && len(report.Decisions) > 0 {
		if err := s.decisions.InsertBatch(ctx, report.Decisions); err != nil {
			s.logger.WarnContext(ctx, "signal_service: persist decisions failed",
				slog.Int("count", len(report.Decisions)),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.positions.SaveSnapshot(ctx); err != nil {
		s.logger.WarnContext(ctx, "signal_service: save snapshot failed",
			slog.String("error", err.Error()),
		)
	}

	sum := s.positions.Summary(ctx)
	s.logger.InfoContext(ctx, "cycle complete",
		slog.Int("evaluated", len(report.Decisions)),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("duration", report.Duration),
		slog.String("cash", sum.Cash.StringFixed(2)),
		slog.String("total_balance", sum.TotalBalance.StringFixed(2)),
		slog.String("return_pct", sum.ReturnPct.StringFixed(2)),
		slog.String("realized_pnl", sum.RealizedPnL.StringFixed(2)),
		slog.Int("open_positions", sum.OpenPositions),
	)
	s.publish(ctx, "cycles", map[string]any{
		"event":          "cycle",
		"started_at":     report.StartedAt.UTC().Format(time.RFC3339),
		"duration_ms":    report.Duration.Milliseconds(),
		"evaluated":      len(report.Decisions),
		"failed":         len(report.Failed),
		"total_balance":  sum.TotalBalance.StringFixed(2),
		"open_positions": sum.OpenPositions,
	})

	if len(report.Decisions) == 0 && len(report.Failed) > 0 && s.notifier != nil {
		msg := fmt.Sprintf("All %d instruments failed this cycle.", len(report.Failed))
		for inst, err := range report.Failed {
			msg += fmt.Sprintf("\n%s: %v", inst, err)
			break
		}
		if err := s.notifier.Notify(ctx, "cycle_error", "Cycle failed", msg); err != nil {
			s.logger.WarnContext(ctx, "signal_service: notify failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// Recent returns the persisted decisions for instrument, newest first.
func (s *SignalService) Recent(ctx context.Context, instrument string, limit int) ([]domain.Decision, error) {
	if s.decisions == nil {
		return nil, fmt.Errorf("signal_service: decision history: %w", domain.ErrNotFound)
	}
	out, err := s.decisions.ListRecent(ctx, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("signal_service: list decisions: %w", err)
	}
	return out, nil
}

func (s *SignalService) publish(ctx context.Context, channel string, evt map[string]any) {
	if len(s.publishers) == 0 {
		return
	}
	payload, _ := json.Marshal(evt)
	for _, p := range s.publishers {
		if err := p.Publish(ctx, channel, payload); err != nil {
			s.logger.WarnContext(ctx, "signal_service: publish event failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}
}

func signalEvent(dec domain.Decision) map[string]any {
	evt := map[string]any{
		"event":       "signal",
		"decision_id": dec.ID,
		"instrument":  dec.Instrument,
		"action":      string(dec.Action),
		"price":       dec.Price.String(),
		"reason":      dec.Reason,
		"timestamp":   dec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if dec.Indicators.RSI != nil {
		evt["rsi"] = *dec.Indicators.RSI
	}
	if dec.Indicators.ATR != nil {
		evt["atr"] = *dec.Indicators.ATR
	}
	return evt
}
