package portfolio

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// Summary returns the headline figures. Positions are valued at
// prices[instrument] when available and at entry price otherwise.
func (l *Ledger) Summary(prices map[string]decimal.Decimal) domain.PortfolioSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := l.totalLocked(prices)
	positionValue := total.Sub(l.cash)

	unrealized := decimal.Zero
	for inst, pos := range l.positions {
		price := pos.EntryPrice
		if p, ok := prices[inst]; ok && p.IsPositive() {
			price = p
		}
		unrealized = unrealized.Add(price.Sub(pos.EntryPrice).Mul(pos.RemainingQuantity))
	}

	var trades, wins int
	for _, rec := range l.history {
		if rec.Side != domain.OrderSideSell {
			continue
		}
		trades++
		if rec.IsWin() {
			wins++
		}
	}

	s := domain.PortfolioSummary{
		StartingBalance: l.starting,
		Cash:            l.cash,
		PositionValue:   positionValue,
		TotalBalance:    total,
		RealizedPnL:     l.realized,
		UnrealizedPnL:   unrealized,
		OpenPositions:   len(l.positions),
		MaxPositions:    l.cfg.MaxPositions,
		TotalTrades:     trades,
		WinningTrades:   wins,
		MaxExposure:     l.cfg.MaxExposure,
		UpdatedAt:       l.now(),
	}
	if l.starting.IsPositive() {
		s.ReturnPct = total.Sub(l.starting).Div(l.starting).Mul(hundred)
	}
	if total.IsPositive() {
		s.Exposure = positionValue.Div(total)
	}
	return s
}

// Snapshot captures the ledger for persistence.
func (l *Ledger) Snapshot() domain.PortfolioSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		positions = append(positions, copyPosition(pos))
	}
	return domain.PortfolioSnapshot{
		StartingBalance: l.starting,
		Cash:            l.cash,
		RealizedPnL:     l.realized,
		Positions:       positions,
		TakenAt:         l.now(),
	}
}

// Restore replaces the state of an untouched ledger with snap. It refuses to
// run once any trade has been booked.
func (l *Ledger) Restore(snap domain.PortfolioSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.history) > 0 || len(l.positions) > 0 {
		return errors.New("portfolio: restore: ledger already in use")
	}
	if snap.Cash.IsNegative() {
		return fmt.Errorf("portfolio: restore: negative cash %s", snap.Cash)
	}

	positions := make(map[string]*domain.Position, len(snap.Positions))
	for i := range snap.Positions {
		pos := snap.Positions[i]
		if !pos.RemainingQuantity.IsPositive() || pos.RemainingQuantity.GreaterThan(pos.TotalQuantity) {
			return fmt.Errorf("portfolio: restore %s: remaining %s outside (0, %s]",
				pos.Instrument, pos.RemainingQuantity, pos.TotalQuantity)
		}
		if !pos.EntryPrice.IsPositive() {
			return fmt.Errorf("portfolio: restore %s: entry price %s", pos.Instrument, pos.EntryPrice)
		}
		if _, dup := positions[pos.Instrument]; dup {
			return fmt.Errorf("portfolio: restore %s: %w", pos.Instrument, domain.ErrPositionExists)
		}
		if pos.HighestPrice.LessThan(pos.EntryPrice) {
			pos.HighestPrice = pos.EntryPrice
		}
		restored := copyPosition(&pos)
		positions[pos.Instrument] = &restored
	}

	if snap.StartingBalance.IsPositive() {
		l.starting = snap.StartingBalance
	}
	l.cash = snap.Cash
	l.realized = snap.RealizedPnL
	l.positions = positions
	return nil
}
