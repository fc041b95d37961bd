package indicator

// emaSeries returns the exponential moving average of values, seeded with the
// simple average of the first period values. The result has
// len(values)-period+1 entries; element i corresponds to values[i+period-1].
// It returns nil when there are fewer than period values.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	alpha := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, mean(values[:period]))
	for _, v := range values[period:] {
		prev := out[len(out)-1]
		out = append(out, alpha*v+(1-alpha)*prev)
	}
	return out
}

// EMA returns the latest exponential moving average of closes.
func EMA(closes []float64, period int) (float64, bool) {
	series := emaSeries(closes, period)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
