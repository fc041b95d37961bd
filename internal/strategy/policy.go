package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/indicator"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
)

// Book is the view of the ledger the policy reads and marks.
type Book interface {
	Position(instrument string) (domain.Position, bool)
	UpdatePosition(instrument string, price decimal.Decimal) (domain.Position, bool)
	CheckTrailingStopTriggered(instrument string, price decimal.Decimal) bool
}

// Input is everything the policy needs to decide one instrument.
type Input struct {
	Instrument string
	Candles    []domain.Candle // oldest first
	Price      decimal.Decimal
	Now        time.Time
}

// Policy chooses the action for an instrument from its indicators, the
// throttle and the ledger state.
//
// Entries require RSI below the oversold threshold, price above the EMA,
// acceptable volatility and a bullish MACD. An RSI below the super-oversold
// threshold waives the MACD condition.
type Policy struct {
	params   Params
	book     Book
	throttle *portfolio.Throttle
	compute  func([]domain.Candle, indicator.Params) domain.Indicators
}

// NewPolicy creates a Policy.
func NewPolicy(params Params, book Book, throttle *portfolio.Throttle) *Policy {
	return &Policy{
		params:   params,
		book:     book,
		throttle: throttle,
		compute:  indicator.Compute,
	}
}

// Params returns the thresholds in use.
func (p *Policy) Params() Params {
	return p.params
}

// Decide evaluates one instrument. With an open position it first marks the
// position at the input price so the trailing stop is current. A BUY records
// the signal in the throttle.
func (p *Policy) Decide(in Input) domain.Decision {
	ind := p.compute(in.Candles, p.params.Indicators)
	dec := domain.Decision{
		ID:         uuid.NewString(),
		Instrument: in.Instrument,
		Action:     domain.ActionHold,
		Price:      in.Price,
		Indicators: ind,
		CreatedAt:  in.Now,
	}

	if _, ok := p.book.Position(in.Instrument); ok {
		p.decideExit(&dec, in, ind)
		return dec
	}

	dec.ThrottleStatus = p.throttle.Status(in.Instrument, in.Now)
	if !p.throttle.CanSignal(in.Instrument, in.Now) {
		dec.Reason = "throttled"
		return dec
	}
	if len(in.Candles) < p.params.MinBuyCandles {
		dec.Reason = fmt.Sprintf("insufficient data: %d candles", len(in.Candles))
		return dec
	}

	canBuy, reason := p.buyFilter(ind, in.Price.InexactFloat64())
	dec.CanBuy = canBuy
	dec.Reason = reason
	if canBuy {
		dec.Action = domain.ActionBuy
		p.throttle.RecordSignal(in.Instrument, in.Now)
		dec.ThrottleStatus = p.throttle.Status(in.Instrument, in.Now)
	}
	return dec
}

func (p *Policy) buyFilter(ind domain.Indicators, price float64) (bool, string) {
	if ind.RSI == nil || ind.EMA == nil || ind.MACD == nil || ind.MACDSignal == nil || ind.ATR == nil {
		return false, "insufficient data"
	}
	if price <= 0 {
		return false, "insufficient data: no price"
	}

	rsi := *ind.RSI
	oversold := rsi < p.params.RSIOversold
	superOversold := rsi < p.params.RSISuperOversold
	uptrend := price > *ind.EMA
	bullish := *ind.MACD > *ind.MACDSignal
	volatility := *ind.ATR / price
	calm := volatility < p.params.MaxVolatility

	emergency := superOversold && uptrend && calm
	normal := oversold && uptrend && calm && bullish

	switch {
	case emergency:
		return true, fmt.Sprintf("emergency oversold entry: RSI %.2f < %.0f", rsi, p.params.RSISuperOversold)
	case normal:
		return true, fmt.Sprintf("all filters passed: RSI %.2f, EMA uptrend, MACD bullish", rsi)
	case !oversold:
		return false, fmt.Sprintf("RSI not oversold: %.2f", rsi)
	case !uptrend:
		return false, fmt.Sprintf("price below EMA%d: %.6f <= %.6f", p.params.Indicators.EMAPeriod, price, *ind.EMA)
	case !bullish && !superOversold:
		return false, fmt.Sprintf("MACD bearish and RSI not super oversold: %.2f", rsi)
	case !calm:
		return false, fmt.Sprintf("volatility too high: %.2f%%", volatility*100)
	}
	return false, "multiple filter failures"
}

func (p *Policy) decideExit(dec *domain.Decision, in Input, ind domain.Indicators) {
	if len(in.Candles) < p.params.MinSellCandles {
		dec.Reason = fmt.Sprintf("insufficient data: %d candles", len(in.Candles))
		return
	}

	pos, ok := p.book.UpdatePosition(in.Instrument, in.Price)
	if !ok {
		dec.Reason = "position closed during evaluation"
		return
	}
	price := in.Price

	var atr *decimal.Decimal
	if ind.ATR != nil && *ind.ATR > 0 {
		v := decimal.NewFromFloat(*ind.ATR)
		atr = &v
	}

	// Without a current ATR the stop recorded at entry still applies.
	var stop *decimal.Decimal
	switch {
	case atr != nil:
		v := pos.EntryPrice.Sub(p.params.ATRStopMultiplier.Mul(*atr))
		stop = &v
	case pos.StopLossPrice != nil:
		stop = pos.StopLossPrice
	}
	if stop != nil && price.LessThanOrEqual(*stop) {
		dec.Action = domain.ActionStopExit
		dec.Reason = fmt.Sprintf("ATR stop triggered: %s <= %s", price, stop.Round(8))
		return
	}

	tp1, tp2 := p.targets(pos, atr)
	if !pos.Tier1Exited {
		if price.GreaterThanOrEqual(tp1) {
			dec.Action = domain.ActionTier1Exit
			dec.Fraction = p.params.Tier1Fraction
			dec.Reason = fmt.Sprintf("TP1 reached: %s >= %s", price, tp1.Round(8))
			return
		}
	} else if !pos.Tier2Exited && price.GreaterThanOrEqual(tp2) {
		dec.Action = domain.ActionTier2Exit
		dec.Fraction = p.params.Tier2Fraction
		dec.Reason = fmt.Sprintf("TP2 reached: %s >= %s", price, tp2.Round(8))
		return
	}

	if p.book.CheckTrailingStopTriggered(in.Instrument, price) {
		dec.Action = domain.ActionTrailingExit
		dec.Reason = fmt.Sprintf("trailing stop triggered: %s <= %s", price, pos.TrailingStopPrice.Round(8))
		return
	}

	if p.params.RSIOverbought > 0 && ind.RSI != nil && *ind.RSI > p.params.RSIOverbought {
		dec.Action = domain.ActionRSIExit
		dec.Reason = fmt.Sprintf("RSI overbought: %.2f", *ind.RSI)
		return
	}

	switch {
	case !pos.Tier1Exited:
		dec.Reason = fmt.Sprintf("waiting for TP1 at %s", tp1.Round(8))
	case !pos.Tier2Exited:
		dec.Reason = fmt.Sprintf("waiting for TP2 at %s", tp2.Round(8))
	case pos.TrailingActive && pos.TrailingStopPrice != nil:
		dec.Reason = fmt.Sprintf("trailing stop armed at %s", pos.TrailingStopPrice.Round(8))
	default:
		dec.Reason = "waiting for trailing stop activation"
	}
}

// targets returns the two take-profit prices. ATR targets are measured from
// the entry price; without ATR the per-instrument targets apply, then the
// percentage fallback.
func (p *Policy) targets(pos domain.Position, atr *decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if atr != nil {
		return pos.EntryPrice.Add(p.params.ATRTP1Multiplier.Mul(*atr)),
			pos.EntryPrice.Add(p.params.ATRTP2Multiplier.Mul(*atr))
	}
	if t, ok := p.params.PairTargets[pos.Instrument]; ok && t.TP1.IsPositive() && t.TP2.IsPositive() {
		return t.TP1, t.TP2
	}
	one := decimal.NewFromInt(1)
	return pos.EntryPrice.Mul(one.Add(p.params.StaticTP1)),
		pos.EntryPrice.Mul(one.Add(p.params.StaticTP2))
}
