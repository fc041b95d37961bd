// Package memory holds in-process fallbacks for the Redis-backed caches,
// used when Redis is disabled and in backtests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

type pricePoint struct {
	price decimal.Decimal
	ts    time.Time
}

// PriceCache implements domain.PriceCache in a map. A positive ttl hides
// prices older than ttl from readers.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
	ttl    time.Duration
	now    func() time.Time
}

// NewPriceCache creates an empty PriceCache.
func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		prices: make(map[string]pricePoint),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetPrice stores the latest price for instrument.
func (c *PriceCache) SetPrice(_ context.Context, instrument string, price decimal.Decimal, ts time.Time) error {
	c.mu.Lock()
	c.prices[instrument] = pricePoint{price: price, ts: ts}
	c.mu.Unlock()
	return nil
}

// GetPrice returns the latest price and timestamp, or domain.ErrNotFound.
func (c *PriceCache) GetPrice(_ context.Context, instrument string) (decimal.Decimal, time.Time, error) {
	c.mu.RLock()
	p, ok := c.prices[instrument]
	c.mu.RUnlock()
	if !ok || c.expired(p) {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

// GetPrices returns the cached prices for instruments. Missing and expired
// entries are omitted.
func (c *PriceCache) GetPrices(_ context.Context, instruments []string) (map[string]decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(instruments))
	for _, inst := range instruments {
		if p, ok := c.prices[inst]; ok && !c.expired(p) {
			out[inst] = p.price
		}
	}
	return out, nil
}

// expired compares against the price's own timestamp, so it is only
// meaningful for wall-clock feeds.
func (c *PriceCache) expired(p pricePoint) bool {
	return c.ttl > 0 && c.now().Sub(p.ts) > c.ttl
}

var _ domain.PriceCache = (*PriceCache)(nil)
