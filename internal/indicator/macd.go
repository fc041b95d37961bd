package indicator

// MACDResult is the latest MACD reading.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// Bullish reports whether the MACD line is above its signal line.
func (m MACDResult) Bullish() bool {
	return m.Line > m.Signal
}

// MACD computes the MACD line (fast EMA minus slow EMA) and its signal line,
// an EMA of the MACD line itself. It needs at least slow+signal closes.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, bool) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal {
		return MACDResult{}, false
	}

	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	// Align both series on the close each value belongs to.
	offset := slow - fast
	line := make([]float64, len(slowSeries))
	for i := range slowSeries {
		line[i] = fastSeries[i+offset] - slowSeries[i]
	}

	sig := emaSeries(line, signal)
	if len(sig) == 0 {
		return MACDResult{}, false
	}

	last := line[len(line)-1]
	lastSig := sig[len(sig)-1]
	return MACDResult{
		Line:      last,
		Signal:    lastSig,
		Histogram: last - lastSig,
	}, true
}
