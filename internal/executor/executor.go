// Package executor applies policy decisions to the ledger, submitting market
// orders first when trading live.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/metrics"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
)

// Ledger is the subset of portfolio.Ledger the executor mutates.
type Ledger interface {
	SizeFor(instrument string, price decimal.Decimal, atr *decimal.Decimal) (decimal.Decimal, string)
	Position(instrument string) (domain.Position, bool)
	OpenPosition(instrument string, price decimal.Decimal, atr *decimal.Decimal, opts ...portfolio.TradeOption) (domain.TradeRecord, error)
	PartialClose(instrument string, price, fraction decimal.Decimal, tier portfolio.Tier, opts ...portfolio.TradeOption) (domain.TradeRecord, bool)
	FullClose(instrument string, price decimal.Decimal, reason string, opts ...portfolio.TradeOption) (domain.TradeRecord, bool)
}

// TradeRecorder receives every trade record the executor books.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, trade domain.TradeRecord, dec domain.Decision)
}

// Executor applies decisions. In paper mode fills are simulated at the
// decision price. In live mode the market order is submitted first and the
// ledger changes only after the exchange accepts it.
type Executor struct {
	ledger   Ledger
	orders   domain.OrderExecutor // nil in paper mode
	venue    string
	recorder TradeRecorder
	dedup    *Dedup
	logger   *slog.Logger
}

// NewExecutor creates an Executor. Pass a nil orders client for paper
// trading.
func NewExecutor(ledger Ledger, orders domain.OrderExecutor, venue string, recorder TradeRecorder, logger *slog.Logger) *Executor {
	return &Executor{
		ledger:   ledger,
		orders:   orders,
		venue:    venue,
		recorder: recorder,
		dedup:    NewDedup(30 * time.Second),
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// Live reports whether orders go to an exchange.
func (e *Executor) Live() bool {
	return e.orders != nil
}

// Apply executes dec. HOLD is ignored. Sizing rejections are logged and are
// not errors; exchange failures are returned with the ledger untouched.
func (e *Executor) Apply(ctx context.Context, dec domain.Decision) error {
	if dec.Action == domain.ActionHold {
		return nil
	}

	key := dec.Instrument + ":" + string(dec.Action)
	if e.Live() && e.dedup.IsDuplicate(key) {
		e.logger.WarnContext(ctx, "executor: duplicate order suppressed",
			slog.String("instrument", dec.Instrument),
			slog.String("action", string(dec.Action)),
		)
		return nil
	}

	var (
		rec    domain.TradeRecord
		booked bool
		err    error
	)
	switch {
	case dec.Action == domain.ActionBuy:
		rec, booked, err = e.buy(ctx, dec)
	case dec.Action == domain.ActionTier1Exit || dec.Action == domain.ActionTier2Exit:
		rec, booked, err = e.partial(ctx, dec)
	case dec.Action.IsFullExit():
		rec, booked, err = e.close(ctx, dec)
	default:
		err = fmt.Errorf("executor: unknown action %q", dec.Action)
	}
	if err != nil {
		e.dedup.Forget(key)
		return err
	}
	if booked && e.recorder != nil {
		e.recorder.RecordTrade(ctx, rec, dec)
	}
	return nil
}

func (e *Executor) buy(ctx context.Context, dec domain.Decision) (domain.TradeRecord, bool, error) {
	atr := atrOf(dec)
	opts := []portfolio.TradeOption{portfolio.WithReason(dec.Reason)}

	if e.Live() {
		qty, reason := e.ledger.SizeFor(dec.Instrument, dec.Price, atr)
		if !qty.IsPositive() {
			e.logger.InfoContext(ctx, "executor: entry not sized",
				slog.String("instrument", dec.Instrument),
				slog.String("reason", reason),
			)
			return domain.TradeRecord{}, false, nil
		}
		res, err := e.submit(ctx, domain.OrderSideBuy, dec.Instrument, qty.Mul(dec.Price).Round(2))
		if err != nil {
			return domain.TradeRecord{}, false, err
		}
		opts = append(opts, portfolio.WithOrderID(res.OrderID))
	} else {
		opts = append(opts, portfolio.Simulated())
	}

	rec, err := e.ledger.OpenPosition(dec.Instrument, dec.Price, atr, opts...)
	var rej *portfolio.RejectionError
	switch {
	case errors.As(err, &rej):
		if e.Live() {
			// The exchange already filled; the ledger no longer agrees.
			e.logger.ErrorContext(ctx, "executor: filled order rejected by ledger",
				slog.String("instrument", dec.Instrument),
				slog.String("reason", rej.Reason),
			)
			return domain.TradeRecord{}, false, fmt.Errorf("executor: book buy %s: %w", dec.Instrument, err)
		}
		e.logger.InfoContext(ctx, "executor: entry rejected",
			slog.String("instrument", dec.Instrument),
			slog.String("reason", rej.Reason),
		)
		return domain.TradeRecord{}, false, nil
	case err != nil:
		return domain.TradeRecord{}, false, fmt.Errorf("executor: book buy %s: %w", dec.Instrument, err)
	}

	e.logger.InfoContext(ctx, "position opened",
		slog.String("instrument", rec.Instrument),
		slog.String("price", rec.Price.String()),
		slog.String("quantity", rec.Quantity.String()),
		slog.String("value", rec.Value.StringFixed(2)),
	)
	return rec, true, nil
}

func (e *Executor) partial(ctx context.Context, dec domain.Decision) (domain.TradeRecord, bool, error) {
	tier := portfolio.Tier1
	if dec.Action == domain.ActionTier2Exit {
		tier = portfolio.Tier2
	}
	opts := []portfolio.TradeOption{portfolio.WithReason(dec.Reason)}

	if e.Live() {
		pos, ok := e.ledger.Position(dec.Instrument)
		if !ok {
			return domain.TradeRecord{}, false, nil
		}
		qty := decimal.Min(pos.TotalQuantity.Mul(dec.Fraction), pos.RemainingQuantity)
		res, err := e.submit(ctx, domain.OrderSideSell, dec.Instrument, qty)
		if err != nil {
			return domain.TradeRecord{}, false, err
		}
		opts = append(opts, portfolio.WithOrderID(res.OrderID))
	} else {
		opts = append(opts, portfolio.Simulated())
	}

	rec, ok := e.ledger.PartialClose(dec.Instrument, dec.Price, dec.Fraction, tier, opts...)
	if !ok {
		return domain.TradeRecord{}, false, nil
	}
	e.logger.InfoContext(ctx, "tier exit",
		slog.String("instrument", rec.Instrument),
		slog.Int("tier", int(tier)),
		slog.String("quantity", rec.Quantity.String()),
		slog.String("pnl", rec.PnLUSD.StringFixed(2)),
	)
	return rec, true, nil
}

func (e *Executor) close(ctx context.Context, dec domain.Decision) (domain.TradeRecord, bool, error) {
	reason := string(dec.Action) + ": " + dec.Reason
	opts := []portfolio.TradeOption{}

	if e.Live() {
		pos, ok := e.ledger.Position(dec.Instrument)
		if !ok {
			return domain.TradeRecord{}, false, nil
		}
		res, err := e.submit(ctx, domain.OrderSideSell, dec.Instrument, pos.RemainingQuantity)
		if err != nil {
			return domain.TradeRecord{}, false, err
		}
		opts = append(opts, portfolio.WithOrderID(res.OrderID))
	} else {
		opts = append(opts, portfolio.Simulated())
	}

	rec, ok := e.ledger.FullClose(dec.Instrument, dec.Price, reason, opts...)
	if !ok {
		return domain.TradeRecord{}, false, nil
	}
	e.logger.InfoContext(ctx, "position closed",
		slog.String("instrument", rec.Instrument),
		slog.String("action", string(dec.Action)),
		slog.String("price", rec.Price.String()),
		slog.String("pnl", rec.PnLUSD.StringFixed(2)),
		slog.String("pnl_pct", rec.PnLPct.StringFixed(2)),
	)
	return rec, true, nil
}

// submit sends a market order. amount is the quote amount for buys and the
// base quantity for sells.
func (e *Executor) submit(ctx context.Context, side domain.OrderSide, instrument string, amount decimal.Decimal) (domain.OrderResult, error) {
	start := time.Now()
	var (
		res domain.OrderResult
		err error
	)
	if side == domain.OrderSideBuy {
		res, err = e.orders.SubmitMarketBuy(ctx, instrument, amount)
	} else {
		res, err = e.orders.SubmitMarketSell(ctx, instrument, amount)
	}
	metrics.OrderLatency.WithLabelValues(e.venue, string(side)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(side), "error").Inc()
		return domain.OrderResult{}, fmt.Errorf("executor: submit %s %s: %w", side, instrument, err)
	}
	metrics.OrdersTotal.WithLabelValues(string(side), "accepted").Inc()
	e.logger.InfoContext(ctx, "order submitted",
		slog.String("instrument", instrument),
		slog.String("side", string(side)),
		slog.String("amount", amount.String()),
		slog.String("order_id", res.OrderID),
	)
	return res, nil
}

// Run periodically evicts expired dedup entries until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.dedup.Cleanup()
		}
	}
}

func atrOf(dec domain.Decision) *decimal.Decimal {
	if dec.Indicators.ATR == nil || *dec.Indicators.ATR <= 0 {
		return nil
	}
	v := decimal.NewFromFloat(*dec.Indicators.ATR)
	return &v
}
