package strategy

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/indicator"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buyReadings passes every entry filter at a price of 10.
func buyReadings() domain.Indicators {
	return domain.Indicators{
		RSI:        fp(30),
		EMA:        fp(9),
		MACD:       fp(0.2),
		MACDSignal: fp(0.1),
		ATR:        fp(0.1),
	}
}

type policyFixture struct {
	ledger   *portfolio.Ledger
	throttle *portfolio.Throttle
	policy   *Policy
}

func newPolicyFixture(ind domain.Indicators) *policyFixture {
	cfg := portfolio.DefaultConfig()
	cfg.Strict = true
	ledger := portfolio.NewLedger(cfg, discardLogger())
	throttle := portfolio.NewThrottle(15 * time.Minute)
	p := NewPolicy(DefaultParams(), ledger, throttle)
	p.compute = func([]domain.Candle, indicator.Params) domain.Indicators { return ind }
	return &policyFixture{ledger: ledger, throttle: throttle, policy: p}
}

func (f *policyFixture) decide(inst, price string, candles int) domain.Decision {
	return f.policy.Decide(Input{
		Instrument: inst,
		Candles:    make([]domain.Candle, candles),
		Price:      d(price),
		Now:        testNow,
	})
}

func TestPolicyEntry(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*domain.Indicators)
		candles    int
		wantAction domain.Action
		wantReason string
	}{
		{"all filters pass", nil, 60, domain.ActionBuy, "all filters passed"},
		{"emergency bypass ignores MACD", func(i *domain.Indicators) { i.RSI = fp(20); i.MACD = fp(0) }, 60, domain.ActionBuy, "emergency"},
		{"rsi not oversold", func(i *domain.Indicators) { i.RSI = fp(40) }, 60, domain.ActionHold, "RSI not oversold"},
		{"below ema", func(i *domain.Indicators) { i.EMA = fp(11) }, 60, domain.ActionHold, "below EMA"},
		{"macd bearish", func(i *domain.Indicators) { i.MACD = fp(0) }, 60, domain.ActionHold, "MACD bearish"},
		{"too volatile", func(i *domain.Indicators) { i.ATR = fp(0.5) }, 60, domain.ActionHold, "volatility too high"},
		{"emergency still needs calm market", func(i *domain.Indicators) { i.RSI = fp(20); i.ATR = fp(0.5) }, 60, domain.ActionHold, "volatility too high"},
		{"missing indicator", func(i *domain.Indicators) { i.MACDSignal = nil }, 60, domain.ActionHold, "insufficient data"},
		{"short history", nil, 49, domain.ActionHold, "insufficient data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind := buyReadings()
			if tt.mutate != nil {
				tt.mutate(&ind)
			}
			f := newPolicyFixture(ind)

			dec := f.decide("BTC-USD", "10", tt.candles)
			if dec.Action != tt.wantAction {
				t.Fatalf("expected %s, got %s (%s)", tt.wantAction, dec.Action, dec.Reason)
			}
			if !strings.Contains(dec.Reason, tt.wantReason) {
				t.Errorf("expected reason containing %q, got %q", tt.wantReason, dec.Reason)
			}
			recorded := !f.throttle.CanSignal("BTC-USD", testNow)
			if recorded != (tt.wantAction == domain.ActionBuy) {
				t.Errorf("throttle recorded=%v for action %s", recorded, dec.Action)
			}
		})
	}
}

func TestPolicyThrottled(t *testing.T) {
	f := newPolicyFixture(buyReadings())
	f.throttle.RecordSignal("ETH-USD", testNow.Add(-5*time.Minute))

	dec := f.decide("ETH-USD", "10", 60)
	if dec.Action != domain.ActionHold || dec.Reason != "throttled" {
		t.Fatalf("expected throttled hold, got %s (%s)", dec.Action, dec.Reason)
	}
	if dec.ThrottleStatus != "10m remaining" {
		t.Errorf("unexpected throttle status %q", dec.ThrottleStatus)
	}
}

func TestPolicyExit(t *testing.T) {
	tests := []struct {
		name       string
		ind        domain.Indicators
		tiers      []portfolio.Tier
		price      string
		wantAction domain.Action
		wantReason string
	}{
		{"atr stop", domain.Indicators{ATR: fp(1)}, nil, "8.5", domain.ActionStopExit, "ATR stop"},
		{"stop overrides tiers", domain.Indicators{ATR: fp(1)}, []portfolio.Tier{portfolio.Tier1}, "8", domain.ActionStopExit, "ATR stop"},
		{"tier 1 at atr target", domain.Indicators{ATR: fp(0.5)}, nil, "11", domain.ActionTier1Exit, "TP1"},
		{"tier 1 before tier 2", domain.Indicators{ATR: fp(0.5)}, nil, "12", domain.ActionTier1Exit, "TP1"},
		{"tier 2 after tier 1", domain.Indicators{ATR: fp(0.5)}, []portfolio.Tier{portfolio.Tier1}, "12", domain.ActionTier2Exit, "TP2"},
		{"static fallback without atr", domain.Indicators{}, nil, "11", domain.ActionTier1Exit, "TP1"},
		{"rsi overbought", domain.Indicators{ATR: fp(0.5), RSI: fp(75)}, nil, "10.2", domain.ActionRSIExit, "overbought"},
		{"waiting for tier 1", domain.Indicators{ATR: fp(0.5), RSI: fp(50)}, nil, "10.2", domain.ActionHold, "waiting for TP1"},
		{"waiting for tier 2", domain.Indicators{ATR: fp(0.5)}, []portfolio.Tier{portfolio.Tier1}, "11.5", domain.ActionHold, "waiting for TP2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPolicyFixture(tt.ind)
			if _, err := f.ledger.OpenPosition("SOL-USD", d("10"), nil); err != nil {
				t.Fatalf("open: %v", err)
			}
			for _, tier := range tt.tiers {
				f.ledger.PartialClose("SOL-USD", d("10.5"), d("0.3"), tier)
			}

			dec := f.decide("SOL-USD", tt.price, 20)
			if dec.Action != tt.wantAction {
				t.Fatalf("expected %s, got %s (%s)", tt.wantAction, dec.Action, dec.Reason)
			}
			if !strings.Contains(dec.Reason, tt.wantReason) {
				t.Errorf("expected reason containing %q, got %q", tt.wantReason, dec.Reason)
			}
			if dec.Action == domain.ActionTier1Exit && !dec.Fraction.Equal(d("0.3")) {
				t.Errorf("expected fraction 0.3, got %s", dec.Fraction)
			}
		})
	}
}

func TestPolicyEntryStopWithoutATR(t *testing.T) {
	f := newPolicyFixture(domain.Indicators{})
	atr := d("1")
	if _, err := f.ledger.OpenPosition("DOT-USD", d("10"), &atr); err != nil {
		t.Fatalf("open: %v", err)
	}

	dec := f.decide("DOT-USD", "9", 20)
	if dec.Action != domain.ActionHold {
		t.Fatalf("expected hold above the entry stop, got %s (%s)", dec.Action, dec.Reason)
	}
	dec = f.decide("DOT-USD", "8.5", 20)
	if dec.Action != domain.ActionStopExit || !strings.Contains(dec.Reason, "8.5") {
		t.Fatalf("expected entry stop exit at 8.5, got %s (%s)", dec.Action, dec.Reason)
	}
}

func TestPolicyTrailingExit(t *testing.T) {
	f := newPolicyFixture(domain.Indicators{ATR: fp(0.5)})
	if _, err := f.ledger.OpenPosition("AVAX-USD", d("10"), nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.ledger.PartialClose("AVAX-USD", d("11"), d("0.3"), portfolio.Tier1)
	f.ledger.PartialClose("AVAX-USD", d("12"), d("0.3"), portfolio.Tier2)

	dec := f.decide("AVAX-USD", "12.5", 20)
	if dec.Action != domain.ActionHold || !strings.Contains(dec.Reason, "trailing stop armed at 12.125") {
		t.Fatalf("expected armed trailing stop, got %s (%s)", dec.Action, dec.Reason)
	}

	dec = f.decide("AVAX-USD", "12.1", 20)
	if dec.Action != domain.ActionTrailingExit {
		t.Fatalf("expected trailing exit, got %s (%s)", dec.Action, dec.Reason)
	}
	if !dec.Action.IsFullExit() {
		t.Error("trailing exit must close the remainder")
	}
}

func TestPolicyPairTargets(t *testing.T) {
	f := newPolicyFixture(domain.Indicators{})
	f.policy.params.PairTargets = map[string]Targets{
		"XLM-USD": {TP1: d("0.46"), TP2: d("0.50")},
	}
	if _, err := f.ledger.OpenPosition("XLM-USD", d("0.40"), nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	dec := f.decide("XLM-USD", "0.45", 20)
	if dec.Action != domain.ActionHold {
		t.Fatalf("expected hold below target, got %s", dec.Action)
	}
	dec = f.decide("XLM-USD", "0.46", 20)
	if dec.Action != domain.ActionTier1Exit {
		t.Fatalf("expected tier 1 at pair target, got %s (%s)", dec.Action, dec.Reason)
	}
}

func TestPolicyExitNeedsHistory(t *testing.T) {
	f := newPolicyFixture(domain.Indicators{ATR: fp(1)})
	if _, err := f.ledger.OpenPosition("LTC-USD", d("10"), nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	dec := f.decide("LTC-USD", "5", 14)
	if dec.Action != domain.ActionHold || !strings.Contains(dec.Reason, "insufficient data") {
		t.Fatalf("expected insufficient data hold, got %s (%s)", dec.Action, dec.Reason)
	}
}
