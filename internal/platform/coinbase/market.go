package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// maxCandlesPerRequest is the server's cap on candles per call.
const maxCandlesPerRequest = 300

// productPath returns the product endpoint, public or private.
func (c *Client) productPath(instrument string, suffix string) string {
	base := "/api/v3/brokerage/market/products/"
	if c.Authenticated() {
		base = "/api/v3/brokerage/products/"
	}
	return base + url.PathEscape(instrument) + suffix
}

// GetCandles returns candles in [start, end) oldest first. Long ranges are
// fetched in windows of at most maxCandlesPerRequest.
func (c *Client) GetCandles(ctx context.Context, instrument string, start, end time.Time, g domain.Granularity) ([]domain.Candle, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("coinbase: get candles %s: unsupported granularity %q", instrument, g)
	}
	step := g.Duration()
	window := step * maxCandlesPerRequest

	seen := make(map[int64]bool)
	var out []domain.Candle
	for from := start; from.Before(end); from = from.Add(window) {
		to := from.Add(window)
		if to.After(end) {
			to = end
		}

		q := url.Values{}
		q.Set("start", unixString(from))
		q.Set("end", unixString(to))
		q.Set("granularity", string(g))

		body, err := c.do(ctx, http.MethodGet, c.productPath(instrument, "/candles"), q, nil, c.Authenticated())
		if err != nil {
			return nil, fmt.Errorf("coinbase: get candles %s: %w", instrument, err)
		}
		var resp struct {
			Candles []APICandle `json:"candles"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("coinbase: decode candles: %w", err)
		}
		for _, ac := range resp.Candles {
			cd, err := ac.ToDomain()
			if err != nil {
				return nil, fmt.Errorf("coinbase: candles %s: %w", instrument, err)
			}
			if key := cd.Start.Unix(); !seen[key] {
				seen[key] = true
				out = append(out, cd)
			}
		}
	}

	// The API returns newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// GetProduct returns product details and refreshes the increments cache.
func (c *Client) GetProduct(ctx context.Context, instrument string) (Product, error) {
	body, err := c.do(ctx, http.MethodGet, c.productPath(instrument, ""), nil, nil, c.Authenticated())
	if err != nil {
		return Product{}, fmt.Errorf("coinbase: get product %s: %w", instrument, err)
	}
	var p Product
	if err := json.Unmarshal(body, &p); err != nil {
		return Product{}, fmt.Errorf("coinbase: decode product: %w", err)
	}

	c.mu.Lock()
	c.products[instrument] = p
	c.mu.Unlock()
	return p, nil
}

// GetCurrentPrice returns the product's last traded price.
func (c *Client) GetCurrentPrice(ctx context.Context, instrument string) (decimal.Decimal, error) {
	p, err := c.GetProduct(ctx, instrument)
	if err != nil {
		return decimal.Zero, err
	}
	if !p.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("coinbase: price %s: %w", instrument, domain.ErrInsufficientData)
	}
	return p.Price, nil
}

// product returns cached product details, fetching them on first use.
func (c *Client) product(ctx context.Context, instrument string) (Product, error) {
	c.mu.Lock()
	p, ok := c.products[instrument]
	c.mu.Unlock()
	if ok {
		return p, nil
	}
	return c.GetProduct(ctx, instrument)
}
