package indicator

// RSI computes the relative strength index over the last period price changes
// using simple averages of gains and losses. When excludeCurrent is set the
// final close is dropped first, since the newest candle is still forming.
// An interval with no losses reads 100.
func RSI(closes []float64, period int, excludeCurrent bool) (float64, bool) {
	if excludeCurrent && len(closes) > 1 {
		closes = closes[:len(closes)-1]
	}
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	window := closes[len(closes)-(period+1):]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
