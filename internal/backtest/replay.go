package backtest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// Replay serves preloaded candles as domain.MarketData. Nothing after the
// cursor is visible, so a strategy replayed against it cannot see the future.
type Replay struct {
	mu      sync.RWMutex
	candles map[string][]domain.Candle // oldest first
	cursor  time.Time
}

// NewReplay creates a Replay over candles keyed by instrument. The slices
// are sorted in place.
func NewReplay(candles map[string][]domain.Candle) *Replay {
	for _, cs := range candles {
		sort.Slice(cs, func(i, j int) bool { return cs[i].Start.Before(cs[j].Start) })
	}
	return &Replay{candles: candles}
}

// Advance moves the cursor to t.
func (r *Replay) Advance(t time.Time) {
	r.mu.Lock()
	r.cursor = t
	r.mu.Unlock()
}

// Timeline returns every distinct candle start in [from, to] across all
// instruments, in order.
func (r *Replay) Timeline(from, to time.Time) []time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]bool)
	var out []time.Time
	for _, cs := range r.candles {
		for _, c := range cs {
			if c.Start.Before(from) || c.Start.After(to) || seen[c.Start.UnixNano()] {
				continue
			}
			seen[c.Start.UnixNano()] = true
			out = append(out, c.Start)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

// GetCandles returns the bars starting in [start, end] that are not after
// the cursor.
func (r *Replay) GetCandles(_ context.Context, instrument string, start, end time.Time, _ domain.Granularity) ([]domain.Candle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.candles[instrument]
	if !ok {
		return nil, fmt.Errorf("backtest: no candles for %s: %w", instrument, domain.ErrNotFound)
	}
	if !r.cursor.IsZero() && r.cursor.Before(end) {
		end = r.cursor
	}
	lo := sort.Search(len(cs), func(i int) bool { return !cs[i].Start.Before(start) })
	hi := sort.Search(len(cs), func(i int) bool { return cs[i].Start.After(end) })
	if lo >= hi {
		return nil, nil
	}
	return slices.Clone(cs[lo:hi]), nil
}

// GetCurrentPrice returns the close of the newest bar at or before the
// cursor.
func (r *Replay) GetCurrentPrice(_ context.Context, instrument string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs := r.candles[instrument]
	i := sort.Search(len(cs), func(i int) bool { return cs[i].Start.After(r.cursor) })
	if i == 0 {
		return decimal.Zero, fmt.Errorf("backtest: price %s at %s: %w", instrument, r.cursor.Format(time.RFC3339), domain.ErrInsufficientData)
	}
	return decimal.NewFromFloat(cs[i-1].Close), nil
}

var _ domain.MarketData = (*Replay)(nil)
