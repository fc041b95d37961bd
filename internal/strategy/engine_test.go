package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

type fakeMarket struct {
	closes map[string]float64
	fail   map[string]error
}

func (m *fakeMarket) GetCandles(_ context.Context, inst string, start, end time.Time, _ domain.Granularity) ([]domain.Candle, error) {
	if err := m.fail[inst]; err != nil {
		return nil, err
	}
	out := make([]domain.Candle, 60)
	for i := range out {
		c := m.closes[inst]
		out[i] = domain.Candle{Start: start.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c}
	}
	return out, nil
}

func (m *fakeMarket) GetCurrentPrice(_ context.Context, inst string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(m.closes[inst]), nil
}

type recordingApplier struct {
	mu      sync.Mutex
	applied []domain.Decision
	err     error
}

func (a *recordingApplier) Apply(_ context.Context, dec domain.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, dec)
	return a.err
}

type countingObserver struct {
	reports []CycleReport
}

func (o *countingObserver) OnCycle(_ context.Context, r CycleReport) {
	o.reports = append(o.reports, r)
}

func TestEngineIsolatesFailures(t *testing.T) {
	f := newPolicyFixture(buyReadings())
	market := &fakeMarket{
		closes: map[string]float64{"BTC-USD": 10, "ETH-USD": 10},
		fail:   map[string]error{"BAD-USD": errors.New("connection reset")},
	}
	applier := &recordingApplier{}
	obs := &countingObserver{}

	e := NewEngine(EngineConfig{
		Pairs:       []string{"BTC-USD", "BAD-USD", "ETH-USD"},
		Granularity: domain.GranularityOneMinute,
		Lookback:    time.Hour,
	}, market, f.policy, applier, discardLogger())
	e.now = func() time.Time { return testNow }
	e.AddObserver(obs)

	report := e.RunCycle(context.Background())

	if len(report.Decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(report.Decisions))
	}
	if _, ok := report.Failed["BAD-USD"]; !ok {
		t.Error("expected BAD-USD in failed set")
	}
	if len(applier.applied) != 2 {
		t.Errorf("expected 2 applied decisions, got %d", len(applier.applied))
	}
	for _, dec := range applier.applied {
		if dec.Action != domain.ActionBuy {
			t.Errorf("expected BUY, got %s for %s", dec.Action, dec.Instrument)
		}
	}
	if len(obs.reports) != 1 {
		t.Errorf("expected one observed report, got %d", len(obs.reports))
	}

	latest := e.LatestDecisions()
	if len(latest) != 2 || latest[0].Instrument != "BTC-USD" || latest[1].Instrument != "ETH-USD" {
		t.Errorf("unexpected latest decisions %+v", latest)
	}
	recent := e.RecentDecisions(1)
	if len(recent) != 1 || recent[0].Instrument != "ETH-USD" {
		t.Errorf("expected newest decision for ETH-USD, got %+v", recent)
	}
	if cycles, last := e.Stats(); cycles != 1 || !last.Equal(testNow) {
		t.Errorf("unexpected stats %d %v", cycles, last)
	}
}

func TestEngineApplyErrorDoesNotStopCycle(t *testing.T) {
	f := newPolicyFixture(buyReadings())
	market := &fakeMarket{closes: map[string]float64{"BTC-USD": 10, "ETH-USD": 10}}
	applier := &recordingApplier{err: errors.New("order rejected")}

	e := NewEngine(EngineConfig{
		Pairs:       []string{"BTC-USD", "ETH-USD"},
		Granularity: domain.GranularityOneMinute,
		Lookback:    time.Hour,
	}, market, f.policy, applier, discardLogger())
	e.now = func() time.Time { return testNow }

	report := e.RunCycle(context.Background())
	if len(applier.applied) != 2 {
		t.Fatalf("expected both instruments attempted, got %d", len(applier.applied))
	}
	if len(report.Failed) != 2 {
		t.Errorf("expected both apply errors reported, got %d", len(report.Failed))
	}
}

func TestEngineSecondCycleIsThrottled(t *testing.T) {
	f := newPolicyFixture(buyReadings())
	market := &fakeMarket{closes: map[string]float64{"BTC-USD": 10}}
	applier := &recordingApplier{}

	e := NewEngine(EngineConfig{
		Pairs:       []string{"BTC-USD"},
		Granularity: domain.GranularityOneMinute,
		Lookback:    time.Hour,
	}, market, f.policy, applier, discardLogger())
	e.now = func() time.Time { return testNow }

	e.RunCycle(context.Background())
	report := e.RunCycle(context.Background())

	if got := report.Decisions[0]; got.Action != domain.ActionHold || got.Reason != "throttled" {
		t.Errorf("expected throttled hold on second cycle, got %s (%s)", got.Action, got.Reason)
	}
	if len(applier.applied) != 1 {
		t.Errorf("expected one applied decision, got %d", len(applier.applied))
	}
}
