package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/indicator"
)

// Targets are absolute take-profit prices for one instrument, used instead of
// the percentage fallback when ATR is unavailable.
type Targets struct {
	TP1 decimal.Decimal
	TP2 decimal.Decimal
}

// Params holds every threshold the decision policy uses.
type Params struct {
	Indicators indicator.Params

	RSIOversold      float64
	RSISuperOversold float64
	RSIOverbought    float64 // 0 disables the overbought exit
	MaxVolatility    float64 // ATR/price ceiling for entries

	MinBuyCandles  int
	MinSellCandles int

	ATRStopMultiplier decimal.Decimal
	ATRTP1Multiplier  decimal.Decimal
	ATRTP2Multiplier  decimal.Decimal

	Tier1Fraction decimal.Decimal
	Tier2Fraction decimal.Decimal

	StaticTP1   decimal.Decimal // gain fraction
	StaticTP2   decimal.Decimal
	PairTargets map[string]Targets
}

// DefaultParams returns the production thresholds.
func DefaultParams() Params {
	return Params{
		Indicators:        indicator.DefaultParams(),
		RSIOversold:       32,
		RSISuperOversold:  25,
		RSIOverbought:     70,
		MaxVolatility:     0.03,
		MinBuyCandles:     50,
		MinSellCandles:    15,
		ATRStopMultiplier: decimal.RequireFromString("1.5"),
		ATRTP1Multiplier:  decimal.RequireFromString("2.0"),
		ATRTP2Multiplier:  decimal.RequireFromString("4.0"),
		Tier1Fraction:     decimal.RequireFromString("0.30"),
		Tier2Fraction:     decimal.RequireFromString("0.30"),
		StaticTP1:         decimal.RequireFromString("0.10"),
		StaticTP2:         decimal.RequireFromString("0.20"),
	}
}
