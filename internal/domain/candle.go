package domain

import "time"

// Granularity is the candle width requested from an exchange.
type Granularity string

const (
	GranularityOneMinute     Granularity = "ONE_MINUTE"
	GranularityFiveMinute    Granularity = "FIVE_MINUTE"
	GranularityFifteenMinute Granularity = "FIFTEEN_MINUTE"
	GranularityOneHour       Granularity = "ONE_HOUR"
	GranularityOneDay        Granularity = "ONE_DAY"
)

var granularityDurations = map[Granularity]time.Duration{
	GranularityOneMinute:     time.Minute,
	GranularityFiveMinute:    5 * time.Minute,
	GranularityFifteenMinute: 15 * time.Minute,
	GranularityOneHour:       time.Hour,
	GranularityOneDay:        24 * time.Hour,
}

// Duration returns the width of one candle, or zero for an unknown value.
func (g Granularity) Duration() time.Duration {
	return granularityDurations[g]
}

// Valid reports whether g is a supported granularity.
func (g Granularity) Valid() bool {
	_, ok := granularityDurations[g]
	return ok
}

// Candle is one OHLCV bar. Prices are float64 because they only feed
// indicator math; money amounts are converted to decimal at the ledger.
type Candle struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
