package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MarketData serves candles and spot prices.
type MarketData interface {
	// GetCandles returns bars in [start, end], oldest first.
	GetCandles(ctx context.Context, instrument string, start, end time.Time, g Granularity) ([]Candle, error)
	GetCurrentPrice(ctx context.Context, instrument string) (decimal.Decimal, error)
}

// OrderExecutor submits market orders. Implementations retry transport
// failures themselves; callers never retry a submission.
type OrderExecutor interface {
	SubmitMarketBuy(ctx context.Context, instrument string, quoteAmount decimal.Decimal) (OrderResult, error)
	SubmitMarketSell(ctx context.Context, instrument string, baseQuantity decimal.Decimal) (OrderResult, error)
}

// Exchange is a venue that provides both market data and order execution.
type Exchange interface {
	MarketData
	OrderExecutor
	Name() string
}
