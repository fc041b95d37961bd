package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeKind labels which ledger transition produced a trade record.
type TradeKind string

const (
	TradeKindBuy      TradeKind = "BUY"
	TradeKindTier1    TradeKind = "TIER_1_EXIT"
	TradeKindTier2    TradeKind = "TIER_2_EXIT"
	TradeKindFullExit TradeKind = "FULL_EXIT"
)

// TradeRecord is an immutable entry in the trade history. PnL fields are nil
// for entries.
type TradeRecord struct {
	ID         string
	Instrument string
	Kind       TradeKind
	Side       OrderSide
	EntryPrice decimal.Decimal
	Price      decimal.Decimal // fill price: entry for buys, exit for sells
	Quantity   decimal.Decimal
	Value      decimal.Decimal
	PnLUSD     *decimal.Decimal
	PnLPct     *decimal.Decimal
	Reason     string
	OrderID    string
	Simulated  bool
	Timestamp  time.Time
}

// IsWin reports whether the record realized a positive PnL.
func (t TradeRecord) IsWin() bool {
	return t.PnLUSD != nil && t.PnLUSD.IsPositive()
}
