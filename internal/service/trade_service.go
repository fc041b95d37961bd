// Package service coordinates the ledger with persistence, caches, event
// publishing and notifications.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/metrics"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TradeFormatter renders a trade record as an alert title and body.
type TradeFormatter func(trade domain.TradeRecord) (title, message string)

// TradeService books the side effects of every executed trade: the durable
// trade row, bus events, the audit entry, an alert and a fresh snapshot.
// Every dependency except the ledger is optional.
type TradeService struct {
	ledger     *portfolio.Ledger
	trades     domain.TradeStore
	positions  *PositionService
	publishers []domain.EventPublisher
	audit      domain.AuditStore
	notifier   Notifier
	format     TradeFormatter
	logger     *slog.Logger
}

// NewTradeService creates a TradeService.
func NewTradeService(
	ledger *portfolio.Ledger,
	trades domain.TradeStore,
	positions *PositionService,
	publishers []domain.EventPublisher,
	audit domain.AuditStore,
	notifier Notifier,
	format TradeFormatter,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		ledger:     ledger,
		trades:     trades,
		positions:  positions,
		publishers: publishers,
		audit:      audit,
		notifier:   notifier,
		format:     format,
		logger:     logger,
	}
}

// RecordTrade persists and announces a trade the executor has booked.
// Failures are logged; the ledger is the source of truth and is never rolled
// back here.
func (s *TradeService) RecordTrade(ctx context.Context, trade domain.TradeRecord, dec domain.Decision) {
	metrics.TradesTotal.WithLabelValues(string(trade.Kind)).Inc()

	if s.trades != nil {
		if err := s.trades.Insert(ctx, trade); err != nil {
			s.logger.ErrorContext(ctx, "trade_service: insert trade failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	evt, _ := json.Marshal(tradeEvent(trade, dec))
	for _, p := range s.publishers {
		if err := p.Publish(ctx, "trades", evt); err != nil {
			s.logger.WarnContext(ctx, "trade_service: publish event failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "trade_"+string(trade.Kind), map[string]any{
			"trade_id":   trade.ID,
			"instrument": trade.Instrument,
			"price":      trade.Price.String(),
			"quantity":   trade.Quantity.String(),
			"order_id":   trade.OrderID,
			"simulated":  trade.Simulated,
		}); err != nil {
			s.logger.WarnContext(ctx, "trade_service: audit log failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil && s.format != nil {
		title, msg := s.format(trade)
		event := "trade_exit"
		if trade.Kind == domain.TradeKindBuy {
			event = "trade_entry"
		}
		if err := s.notifier.Notify(ctx, event, title, msg); err != nil {
			s.logger.WarnContext(ctx, "trade_service: notify failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if s.positions != nil {
		if err := s.positions.SaveSnapshot(ctx); err != nil {
			s.logger.WarnContext(ctx, "trade_service: save snapshot failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// List returns trades newest first. Without a trade store it serves the
// in-memory history.
func (s *TradeService) List(ctx context.Context, instrument string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	if s.trades != nil {
		var (
			out []domain.TradeRecord
			err error
		)
		if instrument != "" {
			out, err = s.trades.ListByInstrument(ctx, instrument, opts)
		} else {
			out, err = s.trades.List(ctx, opts)
		}
		if err != nil {
			return nil, fmt.Errorf("trade_service: list trades: %w", err)
		}
		return out, nil
	}
	return filterHistory(s.ledger.History(), instrument, opts), nil
}

func filterHistory(history []domain.TradeRecord, instrument string, opts domain.ListOpts) []domain.TradeRecord {
	out := make([]domain.TradeRecord, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if instrument != "" && t.Instrument != instrument {
			continue
		}
		if opts.Since != nil && t.Timestamp.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !t.Timestamp.Before(*opts.Until) {
			continue
		}
		out = append(out, t)
	}
	if opts.Offset >= len(out) {
		return []domain.TradeRecord{}
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func tradeEvent(t domain.TradeRecord, dec domain.Decision) map[string]any {
	evt := map[string]any{
		"event":       "trade",
		"trade_id":    t.ID,
		"instrument":  t.Instrument,
		"kind":        string(t.Kind),
		"side":        string(t.Side),
		"price":       t.Price.String(),
		"quantity":    t.Quantity.String(),
		"value":       t.Value.StringFixed(2),
		"action":      string(dec.Action),
		"decision_id": dec.ID,
		"simulated":   t.Simulated,
		"timestamp":   t.Timestamp.UTC().Format(time.RFC3339),
	}
	if t.PnLUSD != nil {
		evt["pnl_usd"] = t.PnLUSD.StringFixed(2)
	}
	if t.PnLPct != nil {
		evt["pnl_pct"] = t.PnLPct.StringFixed(2)
	}
	return evt
}
