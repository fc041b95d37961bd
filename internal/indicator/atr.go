package indicator

import (
	"math"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// ATR returns the simple average of the last period true ranges. A true range
// needs the previous close, so period+1 candles are required.
func ATR(candles []domain.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}

	window := candles[len(candles)-(period+1):]
	var sum float64
	for i := 1; i < len(window); i++ {
		sum += trueRange(window[i], window[i-1].Close)
	}
	return sum / float64(period), true
}

func trueRange(c domain.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}
