package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open long position in one instrument. At most one exists per
// instrument and RemainingQuantity is always in (0, TotalQuantity].
type Position struct {
	Instrument        string
	EntryPrice        decimal.Decimal
	TotalQuantity     decimal.Decimal
	RemainingQuantity decimal.Decimal
	HighestPrice      decimal.Decimal
	Tier1Exited       bool
	Tier2Exited       bool
	TrailingActive    bool
	TrailingStopPrice *decimal.Decimal
	StopLossPrice     *decimal.Decimal // ATR stop at entry; used when the current ATR is unknown
	LastPrice         decimal.Decimal
	UnrealizedPnL     decimal.Decimal
	OpenedAt          time.Time
	UpdatedAt         time.Time
}

// MarkPrice is the price used to value the position: the last seen price,
// or the entry price when no update has been applied yet.
func (p Position) MarkPrice() decimal.Decimal {
	if p.LastPrice.IsPositive() {
		return p.LastPrice
	}
	return p.EntryPrice
}

// UnrealizedPct is the unrealized gain at the mark price, in percent.
func (p Position) UnrealizedPct() decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return p.MarkPrice().Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}

// PortfolioSnapshot is the persisted form of the ledger used to restore state
// after a restart.
type PortfolioSnapshot struct {
	ID              int64
	StartingBalance decimal.Decimal
	Cash            decimal.Decimal
	RealizedPnL     decimal.Decimal
	Positions       []Position
	TakenAt         time.Time
}
