package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSummary is the read-only figure set exposed to the API and the
// dashboard export.
type PortfolioSummary struct {
	StartingBalance decimal.Decimal
	Cash            decimal.Decimal
	PositionValue   decimal.Decimal
	TotalBalance    decimal.Decimal
	ReturnPct       decimal.Decimal
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	OpenPositions   int
	MaxPositions    int
	TotalTrades     int
	WinningTrades   int
	Exposure        decimal.Decimal // fraction of total balance held in positions
	MaxExposure     decimal.Decimal
	UpdatedAt       time.Time
}
