// Package portfolio owns position state and cash accounting: the signal
// throttle, the position sizer and the ledger.
package portfolio

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// dustQuantity is the remaining size below which a position is considered
// fully closed.
var dustQuantity = decimal.New(1, -4)

var hundred = decimal.NewFromInt(100)

// Tier identifies a partial profit-taking stage.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
)

func (t Tier) kind() domain.TradeKind {
	if t == Tier2 {
		return domain.TradeKindTier2
	}
	return domain.TradeKindTier1
}

// RejectionError is returned by OpenPosition when sizing declines the entry.
// It is a normal outcome, not a fault.
type RejectionError struct {
	Instrument string
	Reason     string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("portfolio: open %s rejected: %s", e.Instrument, e.Reason)
}

// TradeOption annotates the trade record produced by a ledger mutation.
type TradeOption func(*domain.TradeRecord)

// WithOrderID attaches the exchange order id.
func WithOrderID(id string) TradeOption {
	return func(r *domain.TradeRecord) { r.OrderID = id }
}

// Simulated marks the record as a paper fill.
func Simulated() TradeOption {
	return func(r *domain.TradeRecord) { r.Simulated = true }
}

// WithReason overrides the record's reason label.
func WithReason(reason string) TradeOption {
	return func(r *domain.TradeRecord) { r.Reason = reason }
}

// Ledger holds open positions, cash and the trade history. All methods are
// safe for concurrent use; every mutation is applied atomically under one
// lock.
type Ledger struct {
	mu        sync.RWMutex
	cfg       Config
	sizer     *Sizer
	logger    *slog.Logger
	now       func() time.Time
	starting  decimal.Decimal
	cash      decimal.Decimal
	realized  decimal.Decimal
	positions map[string]*domain.Position
	history   []domain.TradeRecord
}

// NewLedger creates a ledger funded with cfg.StartingBalance.
func NewLedger(cfg Config, logger *slog.Logger) *Ledger {
	return &Ledger{
		cfg:       cfg,
		sizer:     NewSizer(cfg),
		logger:    logger.With(slog.String("component", "ledger")),
		now:       time.Now,
		starting:  cfg.StartingBalance,
		cash:      cfg.StartingBalance,
		positions: make(map[string]*domain.Position),
	}
}

// SetClock replaces the time source, used by backtests and tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// violation handles a broken invariant: panic in strict mode, otherwise log
// and let the caller no-op. The returned error wraps domain.ErrInvariant.
func (l *Ledger) violation(op, instrument string, cause error) error {
	err := fmt.Errorf("portfolio: %s %s: %w: %w", op, instrument, domain.ErrInvariant, cause)
	if l.cfg.Strict {
		panic(err)
	}
	l.logger.Error("ledger: invariant violation",
		slog.String("op", op),
		slog.String("instrument", instrument),
		slog.String("error", err.Error()),
	)
	return err
}

// SizeFor previews the quantity OpenPosition would buy without changing any
// state. Live execution uses it to size the exchange order first.
func (l *Ledger) SizeFor(instrument string, price decimal.Decimal, atr *decimal.Decimal) (decimal.Decimal, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.positions[instrument]; ok {
		return decimal.Zero, "position already open"
	}
	// Open positions are valued at entry price so sizing does not depend on
	// which instruments happened to be marked this cycle.
	return l.sizer.Size(l.cash, l.totalLocked(nil), len(l.positions), price, atr)
}

// OpenPosition sizes and opens a position at price. A sizing rejection is
// returned as *RejectionError with no state change.
func (l *Ledger) OpenPosition(instrument string, price decimal.Decimal, atr *decimal.Decimal, opts ...TradeOption) (domain.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.positions[instrument]; ok {
		return domain.TradeRecord{}, l.violation("open", instrument, domain.ErrPositionExists)
	}

	// Open positions are valued at entry price, as in SizeFor.
	total := l.totalLocked(nil)
	qty, reason := l.sizer.Size(l.cash, total, len(l.positions), price, atr)
	if !qty.IsPositive() {
		return domain.TradeRecord{}, &RejectionError{Instrument: instrument, Reason: reason}
	}
	value := qty.Mul(price)
	if value.GreaterThan(l.cash) {
		return domain.TradeRecord{}, &RejectionError{Instrument: instrument, Reason: "insufficient cash"}
	}

	now := l.now()
	pos := &domain.Position{
		Instrument:        instrument,
		EntryPrice:        price,
		TotalQuantity:     qty,
		RemainingQuantity: qty,
		HighestPrice:      price,
		LastPrice:         price,
		UnrealizedPnL:     decimal.Zero,
		OpenedAt:          now,
		UpdatedAt:         now,
	}
	if atr != nil && atr.IsPositive() {
		stop := price.Sub(l.cfg.ATRStopMultiplier.Mul(*atr))
		pos.StopLossPrice = &stop
	}

	l.cash = l.cash.Sub(value)
	l.positions[instrument] = pos

	rec := domain.TradeRecord{
		ID:         uuid.NewString(),
		Instrument: instrument,
		Kind:       domain.TradeKindBuy,
		Side:       domain.OrderSideBuy,
		EntryPrice: price,
		Price:      price,
		Quantity:   qty,
		Value:      value,
		Reason:     reason,
		Timestamp:  now,
	}
	for _, opt := range opts {
		opt(&rec)
	}
	l.history = append(l.history, rec)
	return rec, nil
}

// UpdatePosition marks the position at price, raises the high-water mark and
// maintains the trailing stop. It returns false when no position exists.
func (l *Ledger) UpdatePosition(instrument string, price decimal.Decimal) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return domain.Position{}, false
	}

	pos.LastPrice = price
	pos.UnrealizedPnL = price.Sub(pos.EntryPrice).Mul(pos.RemainingQuantity)
	pos.UpdatedAt = l.now()
	if price.GreaterThan(pos.HighestPrice) {
		pos.HighestPrice = price
	}

	candidate := pos.HighestPrice.Mul(decimal.NewFromInt(1).Sub(l.cfg.TrailingDistance))
	if !pos.TrailingActive {
		gain := price.Sub(pos.EntryPrice).Div(pos.EntryPrice)
		if gain.GreaterThanOrEqual(l.cfg.TrailingActivation) || pos.Tier2Exited {
			pos.TrailingActive = true
			pos.TrailingStopPrice = &candidate
			l.logger.Info("ledger: trailing stop armed",
				slog.String("instrument", instrument),
				slog.String("stop", candidate.String()),
			)
		}
	} else if pos.TrailingStopPrice == nil || candidate.GreaterThan(*pos.TrailingStopPrice) {
		pos.TrailingStopPrice = &candidate
	}

	return copyPosition(pos), true
}

// PartialClose sells fraction of the original size for tier at price. It is
// a no-op returning false when there is no position; repeating an executed
// tier is an invariant violation.
func (l *Ledger) PartialClose(instrument string, price, fraction decimal.Decimal, tier Tier, opts ...TradeOption) (domain.TradeRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return domain.TradeRecord{}, false
	}
	if (tier == Tier1 && pos.Tier1Exited) || (tier == Tier2 && pos.Tier2Exited) {
		_ = l.violation("partial_close", instrument, fmt.Errorf("tier %d already executed", tier))
		return domain.TradeRecord{}, false
	}
	if !fraction.IsPositive() {
		return domain.TradeRecord{}, false
	}

	sell := decimal.Min(pos.TotalQuantity.Mul(fraction), pos.RemainingQuantity)
	rec := l.realizeLocked(pos, price, sell, tier.kind(), fmt.Sprintf("tier %d take profit", tier))

	pos.RemainingQuantity = pos.RemainingQuantity.Sub(sell)
	if tier == Tier1 {
		pos.Tier1Exited = true
	} else {
		pos.Tier2Exited = true
	}
	pos.LastPrice = price
	pos.UnrealizedPnL = price.Sub(pos.EntryPrice).Mul(pos.RemainingQuantity)
	pos.UpdatedAt = rec.Timestamp

	if pos.RemainingQuantity.LessThanOrEqual(dustQuantity) {
		if pos.RemainingQuantity.IsNegative() {
			_ = l.violation("partial_close", instrument, errors.New("remaining quantity below zero"))
		}
		delete(l.positions, instrument)
	}

	for _, opt := range opts {
		opt(&rec)
	}
	l.history = append(l.history, rec)
	return rec, true
}

// FullClose sells the whole remainder at price and deletes the position. It
// is a no-op returning false when there is no position.
func (l *Ledger) FullClose(instrument string, price decimal.Decimal, reason string, opts ...TradeOption) (domain.TradeRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return domain.TradeRecord{}, false
	}

	rec := l.realizeLocked(pos, price, pos.RemainingQuantity, domain.TradeKindFullExit, reason)
	delete(l.positions, instrument)

	for _, opt := range opts {
		opt(&rec)
	}
	l.history = append(l.history, rec)
	return rec, true
}

// realizeLocked books the sale of qty at price: credits cash, accumulates
// realized PnL and returns the trade record. The caller appends it.
func (l *Ledger) realizeLocked(pos *domain.Position, price, qty decimal.Decimal, kind domain.TradeKind, reason string) domain.TradeRecord {
	pnl := price.Sub(pos.EntryPrice).Mul(qty)
	pct := price.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(hundred)
	value := price.Mul(qty)

	l.cash = l.cash.Add(value)
	l.realized = l.realized.Add(pnl)

	return domain.TradeRecord{
		ID:         uuid.NewString(),
		Instrument: pos.Instrument,
		Kind:       kind,
		Side:       domain.OrderSideSell,
		EntryPrice: pos.EntryPrice,
		Price:      price,
		Quantity:   qty,
		Value:      value,
		PnLUSD:     &pnl,
		PnLPct:     &pct,
		Reason:     reason,
		Timestamp:  l.now(),
	}
}

// CheckTrailingStopTriggered reports whether the trailing stop is armed and
// price is at or below it.
func (l *Ledger) CheckTrailingStopTriggered(instrument string, price decimal.Decimal) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[instrument]
	if !ok || !pos.TrailingActive || pos.TrailingStopPrice == nil {
		return false
	}
	return price.LessThanOrEqual(*pos.TrailingStopPrice)
}

// Position returns a copy of the open position for instrument.
func (l *Ledger) Position(instrument string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return domain.Position{}, false
	}
	return copyPosition(pos), true
}

// Positions returns copies of all open positions ordered by instrument.
func (l *Ledger) Positions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, copyPosition(pos))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// RealizedPnL returns the accumulated realized PnL.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realized
}

// StartingBalance returns the immutable funding baseline.
func (l *Ledger) StartingBalance() decimal.Decimal {
	return l.starting
}

// History returns a copy of the trade history, oldest first.
func (l *Ledger) History() []domain.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.TradeRecord, len(l.history))
	copy(out, l.history)
	return out
}

// TotalBalance returns cash plus the value of every open position. Each
// position is valued at prices[instrument] when present and positive, and at
// its entry price otherwise. The fallback understates moves on instruments
// with no fresh quote.
func (l *Ledger) TotalBalance(prices map[string]decimal.Decimal) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalLocked(prices)
}

// TotalBalanceAtEntry values every position at its entry price. Together with
// cash it always equals the starting balance plus realized PnL.
func (l *Ledger) TotalBalanceAtEntry() decimal.Decimal {
	return l.TotalBalance(nil)
}

func (l *Ledger) totalLocked(prices map[string]decimal.Decimal) decimal.Decimal {
	total := l.cash
	for inst, pos := range l.positions {
		price := pos.EntryPrice
		if p, ok := prices[inst]; ok && p.IsPositive() {
			price = p
		}
		total = total.Add(price.Mul(pos.RemainingQuantity))
	}
	return total
}

func copyPosition(p *domain.Position) domain.Position {
	out := *p
	if p.TrailingStopPrice != nil {
		v := *p.TrailingStopPrice
		out.TrailingStopPrice = &v
	}
	if p.StopLossPrice != nil {
		v := *p.StopLossPrice
		out.StopLossPrice = &v
	}
	return out
}
