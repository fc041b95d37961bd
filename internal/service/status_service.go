package service

import (
	"time"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// CycleStats reports engine progress.
type CycleStats interface {
	Stats() (cycles int64, lastCycle time.Time)
	Pairs() []string
}

// PositionLister lists open positions.
type PositionLister interface {
	Positions() []domain.Position
}

// StatusService reports the bot's operational state.
type StatusService struct {
	mode      string
	exchange  string
	simulated bool
	started   time.Time
	engine    CycleStats // nil in monitor mode
	positions PositionLister
}

// NewStatusService creates a StatusService.
func NewStatusService(mode, exchange string, simulated bool, engine CycleStats, positions PositionLister) *StatusService {
	return &StatusService{
		mode:      mode,
		exchange:  exchange,
		simulated: simulated,
		started:   time.Now(),
		engine:    engine,
		positions: positions,
	}
}

// Status returns the current bot status.
func (s *StatusService) Status() domain.BotStatus {
	st := domain.BotStatus{
		Mode:          s.mode,
		Exchange:      s.exchange,
		Simulated:     s.simulated,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		OpenPositions: len(s.positions.Positions()),
		Pairs:         []string{},
	}
	if s.engine != nil {
		st.Cycles, st.LastCycleAt = s.engine.Stats()
		st.Pairs = s.engine.Pairs()
	}
	return st
}
