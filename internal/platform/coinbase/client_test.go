package coinbase

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/crypto"
	"github.com/alanyoungcy/coinbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, srv *httptest.Server, signed bool) *Client {
	t.Helper()
	var signer *crypto.Signer
	if signed {
		seed := make([]byte, ed25519.SeedSize)
		s, err := crypto.NewSigner("test-key", ed25519.NewKeyFromSeed(seed))
		if err != nil {
			t.Fatalf("NewSigner: %v", err)
		}
		signer = s
	}
	c, err := NewClient(Config{BaseURL: srv.URL, RequestsPerSec: 1000, Burst: 100, MaxRetries: 2}, signer, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

const productJSON = `{"product_id":"BTC-USD","price":"50000.12","base_increment":"0.00000001","quote_increment":"0.01","base_min_size":"0.00000001","quote_min_size":"1","trading_disabled":false}`

func TestGetCandlesOldestFirstAcrossWindows(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !strings.HasPrefix(r.URL.Path, "/api/v3/brokerage/market/products/BTC-USD/candles") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("public request carried an Authorization header")
		}
		var start, end int64
		fmt.Sscan(r.URL.Query().Get("start"), &start)
		fmt.Sscan(r.URL.Query().Get("end"), &end)

		// Newest first, one candle per minute.
		var candles []string
		for ts := end - 60; ts >= start; ts -= 60 {
			candles = append(candles, fmt.Sprintf(`{"start":"%d","low":"1","high":"3","open":"2","close":"2.5","volume":"10"}`, ts))
		}
		fmt.Fprintf(w, `{"candles":[%s]}`, strings.Join(candles, ","))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, false)
	end := time.Unix(1_700_000_000, 0).Truncate(time.Minute)
	start := end.Add(-500 * time.Minute)

	got, err := c.GetCandles(context.Background(), "BTC-USD", start, end, domain.GranularityOneMinute)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if calls != 2 {
		t.Errorf("requests = %d, want 2", calls)
	}
	if len(got) != 500 {
		t.Fatalf("candles = %d, want 500", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Start.Before(got[i].Start) {
			t.Fatalf("candles not ascending at %d", i)
		}
	}
	if got[0].Close != 2.5 || got[0].High != 3 {
		t.Errorf("first candle = %+v", got[0])
	}
}

func TestGetCurrentPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/brokerage/products/BTC-USD" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Error("missing bearer token")
		}
		io.WriteString(w, productJSON)
	}))
	defer srv.Close()

	price, err := newTestClient(t, srv, true).GetCurrentPrice(context.Background(), "BTC-USD")
	if err != nil {
		t.Fatalf("GetCurrentPrice: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("50000.12")) {
		t.Errorf("price = %s", price)
	}
}

func TestRetryOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, productJSON)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, false).GetCurrentPrice(context.Background(), "BTC-USD"); err != nil {
		t.Fatalf("GetCurrentPrice: %v", err)
	}
	if calls != 2 {
		t.Errorf("requests = %d, want 2", calls)
	}
}

func TestNoRetryOnUnauthorized(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, true).GetCurrentPrice(context.Background(), "BTC-USD")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if calls != 1 {
		t.Errorf("requests = %d, want 1", calls)
	}
}

func TestSubmitMarketOrders(t *testing.T) {
	var bodies []createOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/brokerage/products/BTC-USD":
			io.WriteString(w, productJSON)
		case ordersPath:
			var req createOrderRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			bodies = append(bodies, req)
			fmt.Fprintf(w, `{"success":true,"success_response":{"order_id":"ord-%d"}}`, len(bodies))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, true)
	ctx := context.Background()

	buy, err := c.SubmitMarketBuy(ctx, "BTC-USD", decimal.RequireFromString("250.129"))
	if err != nil {
		t.Fatalf("SubmitMarketBuy: %v", err)
	}
	sell, err := c.SubmitMarketSell(ctx, "BTC-USD", decimal.RequireFromString("0.123456789"))
	if err != nil {
		t.Fatalf("SubmitMarketSell: %v", err)
	}

	if buy.OrderID != "ord-1" || sell.OrderID != "ord-2" {
		t.Errorf("order ids = %s, %s", buy.OrderID, sell.OrderID)
	}
	if got := bodies[0].OrderConfiguration.MarketMarketIOC.QuoteSize; got != "250.12" {
		t.Errorf("quote_size = %s, want 250.12", got)
	}
	if got := bodies[1].OrderConfiguration.MarketMarketIOC.BaseSize; got != "0.12345678" {
		t.Errorf("base_size = %s, want 0.12345678", got)
	}
	if bodies[0].Side != "BUY" || bodies[1].Side != "SELL" || bodies[0].ClientOrderID == "" {
		t.Errorf("unexpected order bodies: %+v", bodies)
	}
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == ordersPath {
			io.WriteString(w, `{"success":false,"error_response":{"error":"INSUFFICIENT_FUND","message":"Insufficient balance"}}`)
			return
		}
		io.WriteString(w, productJSON)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, true).SubmitMarketBuy(context.Background(), "BTC-USD", decimal.NewFromInt(100))
	if !errors.Is(err, domain.ErrOrderRejected) || !strings.Contains(err.Error(), "Insufficient balance") {
		t.Errorf("error = %v", err)
	}
}

func TestPrivateCallWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, productJSON)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, false).SubmitMarketBuy(context.Background(), "BTC-USD", decimal.NewFromInt(100))
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestTruncateTo(t *testing.T) {
	tests := []struct {
		v, inc, want string
	}{
		{"1.239", "0.01", "1.23"},
		{"0.999", "0.1", "0.9"},
		{"5", "0.00000001", "5"},
		{"1.123456789", "0", "1.12345678"},
	}
	for _, tt := range tests {
		got := truncateTo(decimal.RequireFromString(tt.v), decimal.RequireFromString(tt.inc))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("truncateTo(%s, %s) = %s, want %s", tt.v, tt.inc, got, tt.want)
		}
	}
}
