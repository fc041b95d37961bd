package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the per-instrument outcome of one decision cycle.
type Action string

const (
	ActionBuy          Action = "BUY"
	ActionHold         Action = "HOLD"
	ActionTier1Exit    Action = "TIER1-EXIT"
	ActionTier2Exit    Action = "TIER2-EXIT"
	ActionTrailingExit Action = "TRAILING-EXIT"
	ActionStopExit     Action = "STOP-EXIT"
	ActionRSIExit      Action = "RSI-EXIT"
)

// IsExit reports whether the action sells some or all of a position.
func (a Action) IsExit() bool {
	switch a {
	case ActionTier1Exit, ActionTier2Exit, ActionTrailingExit, ActionStopExit, ActionRSIExit:
		return true
	}
	return false
}

// IsFullExit reports whether the action closes the whole remainder.
func (a Action) IsFullExit() bool {
	return a.IsExit() && a != ActionTier1Exit && a != ActionTier2Exit
}

// Indicators holds the technical readings for one instrument. A nil field
// means there was not enough history to compute it.
type Indicators struct {
	RSI        *float64
	EMA        *float64
	MACD       *float64
	MACDSignal *float64
	ATR        *float64
}

// Decision is what the policy chose for an instrument in one cycle.
type Decision struct {
	ID             string
	Instrument     string
	Action         Action
	Price          decimal.Decimal
	Fraction       decimal.Decimal // share of the original size for tier exits
	Reason         string
	CanBuy         bool
	ThrottleStatus string
	Indicators     Indicators
	CreatedAt      time.Time
}

// BotStatus is a summary of the bot's current operational state.
type BotStatus struct {
	Mode          string
	Exchange      string
	Simulated     bool
	UptimeSeconds int64
	OpenPositions int
	Pairs         []string
	Cycles        int64
	LastCycleAt   time.Time
}
