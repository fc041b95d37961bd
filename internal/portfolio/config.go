package portfolio

import (
	"github.com/shopspring/decimal"
)

// Config holds the risk parameters shared by the sizer and the ledger.
type Config struct {
	StartingBalance    decimal.Decimal
	MaxPositions       int
	MaxExposure        decimal.Decimal // fraction of total balance allowed in positions
	MaxPerTrade        decimal.Decimal // fraction of total balance per entry
	MinTradeUSD        decimal.Decimal
	RiskPerTrade       decimal.Decimal // fraction of total balance lost at the ATR stop
	ATRStopMultiplier  decimal.Decimal
	TrailingActivation decimal.Decimal // gain fraction that arms the trailing stop
	TrailingDistance   decimal.Decimal // fraction below the high

	// Strict makes invariant violations panic instead of logging a no-op.
	Strict bool
}

// DefaultConfig returns the stock risk parameters.
func DefaultConfig() Config {
	return Config{
		StartingBalance:    decimal.NewFromInt(1000),
		MaxPositions:       4,
		MaxExposure:        decimal.RequireFromString("0.75"),
		MaxPerTrade:        decimal.RequireFromString("0.25"),
		MinTradeUSD:        decimal.NewFromInt(50),
		RiskPerTrade:       decimal.RequireFromString("0.02"),
		ATRStopMultiplier:  decimal.RequireFromString("1.5"),
		TrailingActivation: decimal.RequireFromString("0.15"),
		TrailingDistance:   decimal.RequireFromString("0.03"),
	}
}
