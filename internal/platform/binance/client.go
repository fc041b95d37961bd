// Package binance adapts the Binance spot API to domain.Exchange.
// Instruments use the dash form ("BTC-USD"); a USD quote maps to the
// configured stablecoin.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// maxKlinesPerRequest is the server's cap on klines per call.
const maxKlinesPerRequest = 1000

var intervals = map[domain.Granularity]string{
	domain.GranularityOneMinute:     "1m",
	domain.GranularityFiveMinute:    "5m",
	domain.GranularityFifteenMinute: "15m",
	domain.GranularityOneHour:       "1h",
	domain.GranularityOneDay:        "1d",
}

// Config configures a Client.
type Config struct {
	APIKey         string
	SecretKey      string
	BaseURL        string // empty for production
	QuoteAsset     string // replaces "USD" in instruments, default USDT
	RequestsPerSec float64
	Burst          int
	MaxRetries     int
}

// Client wraps the go-binance spot client with rate limiting and retries.
type Client struct {
	api        *gobinance.Client
	quote      string
	limiter    *rate.Limiter
	maxRetries uint
	backoff    func() backoff.BackOff
	logger     *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	api := gobinance.NewClient(cfg.APIKey, cfg.SecretKey)
	api.HTTPClient = &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	if cfg.BaseURL != "" {
		api.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	return &Client{
		api:        api,
		quote:      strings.ToUpper(cfg.QuoteAsset),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		maxRetries: uint(cfg.MaxRetries),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		logger: logger.With(slog.String("component", "binance")),
	}
}

// Name returns "binance".
func (c *Client) Name() string {
	return "binance"
}

// Symbol converts "BTC-USD" to "BTCUSDT".
func (c *Client) Symbol(instrument string) string {
	base, quote, ok := strings.Cut(strings.ToUpper(instrument), "-")
	if !ok {
		return strings.ToUpper(instrument)
	}
	if quote == "USD" {
		quote = c.quote
	}
	return base + quote
}

// GetCandles returns klines in [start, end) oldest first.
func (c *Client) GetCandles(ctx context.Context, instrument string, start, end time.Time, g domain.Granularity) ([]domain.Candle, error) {
	interval, ok := intervals[g]
	if !ok {
		return nil, fmt.Errorf("binance: get candles %s: unsupported granularity %q", instrument, g)
	}
	symbol := c.Symbol(instrument)
	window := g.Duration() * maxKlinesPerRequest

	var out []domain.Candle
	for from := start; from.Before(end); from = from.Add(window) {
		to := from.Add(window)
		if to.After(end) {
			to = end
		}
		klines, err := retry(ctx, c, func() ([]*gobinance.Kline, error) {
			return c.api.NewKlinesService().
				Symbol(symbol).
				Interval(interval).
				StartTime(from.UnixMilli()).
				EndTime(to.UnixMilli() - 1).
				Limit(maxKlinesPerRequest).
				Do(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("binance: get candles %s: %w", instrument, err)
		}
		for _, k := range klines {
			cd, err := toCandle(k)
			if err != nil {
				return nil, fmt.Errorf("binance: candles %s: %w", instrument, err)
			}
			out = append(out, cd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// GetCurrentPrice returns the latest ticker price.
func (c *Client) GetCurrentPrice(ctx context.Context, instrument string) (decimal.Decimal, error) {
	symbol := c.Symbol(instrument)
	prices, err := retry(ctx, c, func() ([]*gobinance.SymbolPrice, error) {
		return c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: price %s: %w", instrument, err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			v, err := decimal.NewFromString(p.Price)
			if err != nil {
				return decimal.Zero, fmt.Errorf("binance: parse price %q: %w", p.Price, err)
			}
			return v, nil
		}
	}
	return decimal.Zero, fmt.Errorf("binance: price %s: %w", instrument, domain.ErrNotFound)
}

// SubmitMarketBuy spends quote on instrument at market.
func (c *Client) SubmitMarketBuy(ctx context.Context, instrument string, quote decimal.Decimal) (domain.OrderResult, error) {
	res, err := c.createOrder(ctx, instrument, gobinance.SideTypeBuy, func(s *gobinance.CreateOrderService) {
		s.QuoteOrderQty(quote.StringFixed(2))
	})
	if err != nil {
		return domain.OrderResult{}, err
	}
	res.Side = domain.OrderSideBuy
	res.QuoteAmount = quote.Round(2)
	return res, nil
}

// SubmitMarketSell sells base units of instrument at market.
func (c *Client) SubmitMarketSell(ctx context.Context, instrument string, base decimal.Decimal) (domain.OrderResult, error) {
	res, err := c.createOrder(ctx, instrument, gobinance.SideTypeSell, func(s *gobinance.CreateOrderService) {
		s.Quantity(base.Truncate(8).String())
	})
	if err != nil {
		return domain.OrderResult{}, err
	}
	res.Side = domain.OrderSideSell
	res.BaseAmount = base.Truncate(8)
	return res, nil
}

// createOrder submits a market order. The client order id is fixed before
// the first attempt so a retried request cannot fill twice.
func (c *Client) createOrder(ctx context.Context, instrument string, side gobinance.SideType, size func(*gobinance.CreateOrderService)) (domain.OrderResult, error) {
	symbol := c.Symbol(instrument)
	clientID := strings.ReplaceAll(uuid.NewString(), "-", "")

	resp, err := retry(ctx, c, func() (*gobinance.CreateOrderResponse, error) {
		svc := c.api.NewCreateOrderService().
			Symbol(symbol).
			Side(side).
			Type(gobinance.OrderTypeMarket).
			NewClientOrderID(clientID)
		size(svc)
		return svc.Do(ctx)
	})
	if err != nil {
		if common.IsAPIError(err) {
			return domain.OrderResult{}, fmt.Errorf("binance: %s %s: %w: %w", side, instrument, domain.ErrOrderRejected, err)
		}
		return domain.OrderResult{}, fmt.Errorf("binance: %s %s: %w", side, instrument, err)
	}

	status := domain.OrderStatusSubmitted
	if resp.Status == gobinance.OrderStatusTypeFilled {
		status = domain.OrderStatusFilled
	}
	return domain.OrderResult{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		Instrument:  instrument,
		Status:      status,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// retry runs op under the rate limiter, retrying everything except API
// errors (which the exchange has already judged).
func retry[T any](ctx context.Context, c *Client, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		var zero T
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(fmt.Errorf("%w: %w", domain.ErrContextDone, err))
		}
		v, err := op()
		if err == nil {
			return v, nil
		}
		var apiErr *common.APIError
		if errors.As(err, &apiErr) || ctx.Err() != nil {
			return zero, backoff.Permanent(err)
		}
		c.logger.DebugContext(ctx, "binance: retrying request", slog.String("error", err.Error()))
		return zero, err
	}, backoff.WithBackOff(c.backoff()), backoff.WithMaxTries(c.maxRetries+1))
}

func toCandle(k *gobinance.Kline) (domain.Candle, error) {
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parse kline field %q: %w", s, err)
		}
		vals[i] = v
	}
	return domain.Candle{
		Start:  time.UnixMilli(k.OpenTime).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
