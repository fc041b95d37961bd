// Package indicator implements the technical indicators consumed by the
// decision policy. All functions are pure and report false when the supplied
// history is too short.
package indicator

import "github.com/alanyoungcy/coinbot/internal/domain"

// Params configures indicator periods.
type Params struct {
	RSIPeriod        int
	RSIExcludeLatest bool
	EMAPeriod        int
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	ATRPeriod        int
}

// DefaultParams returns the standard periods: RSI 14, EMA 50, MACD 12/26/9,
// ATR 14.
func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		RSIExcludeLatest: true,
		EMAPeriod:        50,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		ATRPeriod:        14,
	}
}

// Compute evaluates every indicator over candles (oldest first). Indicators
// without enough history are left nil.
func Compute(candles []domain.Candle, p Params) domain.Indicators {
	closes := Closes(candles)

	var out domain.Indicators
	if v, ok := RSI(closes, p.RSIPeriod, p.RSIExcludeLatest); ok {
		out.RSI = &v
	}
	if v, ok := EMA(closes, p.EMAPeriod); ok {
		out.EMA = &v
	}
	if m, ok := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal); ok {
		line, sig := m.Line, m.Signal
		out.MACD = &line
		out.MACDSignal = &sig
	}
	if v, ok := ATR(candles, p.ATRPeriod); ok {
		out.ATR = &v
	}
	return out
}

// Closes extracts closing prices.
func Closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
