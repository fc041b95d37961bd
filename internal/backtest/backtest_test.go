package backtest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
	"github.com/alanyoungcy/coinbot/internal/strategy"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func risingCandles(n int, base float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		c := base + float64(i)*0.01
		out[i] = domain.Candle{
			Start: t0.Add(time.Duration(i) * time.Minute),
			Open:  c,
			High:  c + 0.005,
			Low:   c - 0.005,
			Close: c,
		}
	}
	return out
}

type stubSource struct {
	candles map[string][]domain.Candle
	err     error
}

func (s stubSource) GetCandles(_ context.Context, inst string, start, end time.Time, _ domain.Granularity) ([]domain.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Candle
	for _, c := range s.candles[inst] {
		if !c.Start.Before(start) && !c.Start.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s stubSource) GetCurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("not used")
}

func newTestRunner(src domain.MarketData) *Runner {
	return NewRunner(src, strategy.DefaultParams(), portfolio.DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunSteadyRiseHolds(t *testing.T) {
	src := stubSource{candles: map[string][]domain.Candle{
		"BTC-USD": risingCandles(200, 100),
		"ETH-USD": risingCandles(200, 50),
	}}

	rep, err := newTestRunner(src).Run(context.Background(), Config{
		Pairs:          []string{"BTC-USD", "ETH-USD"},
		Granularity:    domain.GranularityOneMinute,
		Lookback:       100 * time.Minute,
		Start:          t0.Add(60 * time.Minute),
		End:            t0.Add(199 * time.Minute),
		Warmup:         60,
		ThrottleWindow: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.Steps != 140 || len(rep.EquityCurve) != 140 {
		t.Errorf("steps = %d, curve = %d, want 140", rep.Steps, len(rep.EquityCurve))
	}
	if got := rep.Decisions[string(domain.ActionHold)]; got != 280 {
		t.Errorf("HOLD decisions = %d, want 280", got)
	}
	if len(rep.Trades) != 0 {
		t.Errorf("trades = %d, want 0", len(rep.Trades))
	}
	if !rep.Portfolio.TotalBalance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("total balance = %s", rep.Portfolio.TotalBalance)
	}
	if !rep.MaxDrawdownPct.IsZero() {
		t.Errorf("drawdown = %s", rep.MaxDrawdownPct)
	}
	if !rep.Start.Equal(t0.Add(60*time.Minute)) || !rep.End.Equal(t0.Add(199*time.Minute)) {
		t.Errorf("window = %s..%s", rep.Start, rep.End)
	}
	// Each step is stamped when its bar closes.
	if got := rep.EquityCurve[0].Time; !got.Equal(t0.Add(61 * time.Minute)) {
		t.Errorf("first step at %s, want close of the 60th bar", got)
	}
	if got := rep.EquityCurve[len(rep.EquityCurve)-1].Time; !got.Equal(t0.Add(200 * time.Minute)) {
		t.Errorf("last step at %s, want %s", got, t0.Add(200*time.Minute))
	}
}

func TestRunRejectsBadWindow(t *testing.T) {
	r := newTestRunner(stubSource{})
	tests := []struct {
		name string
		cfg  Config
	}{
		{"end before start", Config{Granularity: domain.GranularityOneMinute, Start: t0, End: t0.Add(-time.Hour)}},
		{"bad granularity", Config{Granularity: "TWO_MINUTE", Start: t0, End: t0.Add(time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Run(context.Background(), tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunPropagatesLoadError(t *testing.T) {
	boom := errors.New("exchange down")
	_, err := newTestRunner(stubSource{err: boom}).Run(context.Background(), Config{
		Pairs:       []string{"BTC-USD"},
		Granularity: domain.GranularityOneMinute,
		Start:       t0,
		End:         t0.Add(time.Hour),
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestRunNoCandlesInWindow(t *testing.T) {
	src := stubSource{candles: map[string][]domain.Candle{"BTC-USD": risingCandles(10, 100)}}
	_, err := newTestRunner(src).Run(context.Background(), Config{
		Pairs:       []string{"BTC-USD"},
		Granularity: domain.GranularityOneMinute,
		Start:       t0.Add(24 * time.Hour),
		End:         t0.Add(25 * time.Hour),
	})
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestReplayHidesFuture(t *testing.T) {
	ctx := context.Background()
	r := NewReplay(map[string][]domain.Candle{"BTC-USD": risingCandles(10, 100)})
	r.Advance(t0.Add(4 * time.Minute))

	cs, err := r.GetCandles(ctx, "BTC-USD", t0, t0.Add(time.Hour), domain.GranularityOneMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 5 || !cs[4].Start.Equal(t0.Add(4*time.Minute)) {
		t.Errorf("got %d candles ending %v", len(cs), cs[len(cs)-1].Start)
	}

	price, err := r.GetCurrentPrice(ctx, "BTC-USD")
	if err != nil || !price.Equal(decimal.NewFromFloat(cs[4].Close)) {
		t.Errorf("price = %s, err = %v", price, err)
	}

	if _, err := r.GetCandles(ctx, "DOGE-USD", t0, t0.Add(time.Hour), domain.GranularityOneMinute); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown instrument err = %v", err)
	}
}

func TestTimelineMergesInstruments(t *testing.T) {
	a := risingCandles(3, 1)
	b := []domain.Candle{
		{Start: t0.Add(90 * time.Second), Close: 1},
		{Start: t0.Add(2 * time.Minute), Close: 1},
	}
	r := NewReplay(map[string][]domain.Candle{"A": a, "B": b})

	got := r.Timeline(t0, t0.Add(time.Hour))
	want := []time.Time{t0, t0.Add(time.Minute), t0.Add(90 * time.Second), t0.Add(2 * time.Minute)}
	if len(got) != len(want) {
		t.Fatalf("timeline = %v", got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("timeline[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMaxDrawdownPct(t *testing.T) {
	curve := func(vals ...int64) []EquityPoint {
		out := make([]EquityPoint, len(vals))
		for i, v := range vals {
			out[i] = EquityPoint{Balance: decimal.NewFromInt(v)}
		}
		return out
	}
	tests := []struct {
		name  string
		curve []EquityPoint
		want  string
	}{
		{"empty", nil, "0"},
		{"monotonic", curve(100, 110, 120), "0"},
		{"single dip", curve(100, 80, 120), "20"},
		{"deeper later", curve(100, 90, 200, 150), "25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maxDrawdownPct(tt.curve); got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
