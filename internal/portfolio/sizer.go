package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// quantityPrecision is the number of decimal places kept on sized
// quantities. Truncation keeps quantity*price at or below the trade budget.
const quantityPrecision = 8

// Sizer computes entry quantities under the exposure and risk limits.
type Sizer struct {
	cfg Config
}

// NewSizer creates a Sizer from cfg.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size returns the quantity to buy at price and a rationale. A zero quantity
// always comes with the rejection reason. atr may be nil when unavailable.
func (s *Sizer) Size(cash, total decimal.Decimal, openCount int, price decimal.Decimal, atr *decimal.Decimal) (decimal.Decimal, string) {
	if openCount >= s.cfg.MaxPositions {
		return decimal.Zero, fmt.Sprintf("max positions reached (%d/%d)", openCount, s.cfg.MaxPositions)
	}
	if !price.IsPositive() {
		return decimal.Zero, "invalid price " + price.String()
	}

	used := total.Sub(cash)
	available := s.cfg.MaxExposure.Mul(total).Sub(used)
	maxTrade := decimal.Min(available, s.cfg.MaxPerTrade.Mul(total))
	if maxTrade.LessThan(s.cfg.MinTradeUSD) {
		return decimal.Zero, fmt.Sprintf("trade too small ($%s < $%s minimum)",
			maxTrade.StringFixed(2), s.cfg.MinTradeUSD.StringFixed(2))
	}

	limit := "per-trade cap"
	if maxTrade.GreaterThan(cash) {
		maxTrade = cash
		limit = "available cash"
	}

	if atr != nil && atr.IsPositive() {
		stopFrac := s.cfg.ATRStopMultiplier.Mul(*atr).Div(price)
		if stopFrac.IsPositive() {
			riskUSD := total.Mul(s.cfg.RiskPerTrade).Div(stopFrac)
			if riskUSD.LessThan(maxTrade) {
				maxTrade = riskUSD
				limit = "ATR risk cap"
			}
		}
	}

	qty, _ := maxTrade.QuoRem(price, quantityPrecision)
	if !qty.IsPositive() {
		return decimal.Zero, "insufficient cash"
	}
	return qty, fmt.Sprintf("$%s by %s", qty.Mul(price).StringFixed(2), limit)
}
