package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := NewPriceCache(time.Minute)
	c.now = func() time.Time { return now }

	c.SetPrice(ctx, "BTC-USD", decimal.NewFromInt(50000), now.Add(-10*time.Second))
	c.SetPrice(ctx, "ETH-USD", decimal.NewFromInt(3000), now.Add(-2*time.Minute))

	price, ts, err := c.GetPrice(ctx, "BTC-USD")
	if err != nil || !price.Equal(decimal.NewFromInt(50000)) || !ts.Equal(now.Add(-10*time.Second)) {
		t.Errorf("GetPrice = %s %v %v", price, ts, err)
	}

	if _, _, err := c.GetPrice(ctx, "ETH-USD"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expired price err = %v, want ErrNotFound", err)
	}
	if _, _, err := c.GetPrice(ctx, "SOL-USD"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing price err = %v, want ErrNotFound", err)
	}

	prices, err := c.GetPrices(ctx, []string{"BTC-USD", "ETH-USD", "SOL-USD"})
	if err != nil {
		t.Fatal(err)
	}
	if len(prices) != 1 || !prices["BTC-USD"].Equal(decimal.NewFromInt(50000)) {
		t.Errorf("GetPrices = %v", prices)
	}
}

func TestPriceCacheNoTTL(t *testing.T) {
	ctx := context.Background()
	c := NewPriceCache(0)
	c.SetPrice(ctx, "BTC-USD", decimal.NewFromInt(1), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if _, _, err := c.GetPrice(ctx, "BTC-USD"); err != nil {
		t.Errorf("GetPrice: %v", err)
	}
}
