package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/metrics"
)

// Applier turns a decision into ledger (and possibly exchange) state.
type Applier interface {
	Apply(ctx context.Context, dec domain.Decision) error
}

// CycleObserver is notified once per completed cycle.
type CycleObserver interface {
	OnCycle(ctx context.Context, report CycleReport)
}

// CycleReport summarises one pass over all instruments.
type CycleReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Decisions []domain.Decision
	Failed    map[string]error
}

// EngineConfig controls what the engine fetches each cycle.
type EngineConfig struct {
	Pairs            []string
	Granularity      domain.Granularity
	Lookback         time.Duration
	UseLivePrice     bool // query the spot price instead of the last close
	FetchConcurrency int
}

type fetchResult struct {
	candles []domain.Candle
	price   decimal.Decimal
	err     error
}

// Engine runs the decision cycle: fetch market data for every pair (in
// parallel), then decide and apply each pair in order. A failure on one pair
// never stops the others.
type Engine struct {
	cfg       EngineConfig
	market    domain.MarketData
	policy    *Policy
	applier   Applier
	observers []CycleObserver
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	latest      map[string]domain.Decision
	recent      []domain.Decision
	recentLimit int
	cycles      int64
	lastCycle   time.Time
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig, market domain.MarketData, policy *Policy, applier Applier, logger *slog.Logger) *Engine {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	return &Engine{
		cfg:         cfg,
		market:      market,
		policy:      policy,
		applier:     applier,
		logger:      logger.With(slog.String("component", "strategy_engine")),
		now:         time.Now,
		latest:      make(map[string]domain.Decision),
		recentLimit: 500,
	}
}

// SetClock replaces the wall clock, for replaying history.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// AddObserver registers an observer for cycle reports.
func (e *Engine) AddObserver(o CycleObserver) {
	e.observers = append(e.observers, o)
}

// Pairs returns the instruments the engine evaluates.
func (e *Engine) Pairs() []string {
	out := make([]string, len(e.cfg.Pairs))
	copy(out, e.cfg.Pairs)
	return out
}

// Run executes a cycle immediately and then every interval until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	e.logger.InfoContext(ctx, "strategy engine started",
		slog.Int("pairs", len(e.cfg.Pairs)),
		slog.Duration("interval", interval),
	)
	defer e.logger.Info("strategy engine stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		e.RunCycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle performs one pass over every configured pair.
func (e *Engine) RunCycle(ctx context.Context) CycleReport {
	start := e.now()
	report := CycleReport{
		StartedAt: start,
		Failed:    make(map[string]error),
	}

	results := e.fetchAll(ctx, start)

	for i, inst := range e.cfg.Pairs {
		if ctx.Err() != nil {
			break
		}
		res := results[i]
		if res.err != nil {
			report.Failed[inst] = res.err
			metrics.FetchErrorsTotal.WithLabelValues(inst).Inc()
			e.logger.WarnContext(ctx, "strategy_engine: skipping instrument",
				slog.String("instrument", inst),
				slog.String("error", res.err.Error()),
			)
			continue
		}

		dec := e.policy.Decide(Input{
			Instrument: inst,
			Candles:    res.candles,
			Price:      res.price,
			Now:        e.now(),
		})
		metrics.DecisionsTotal.WithLabelValues(string(dec.Action)).Inc()

		if dec.Action != domain.ActionHold {
			if err := e.applier.Apply(ctx, dec); err != nil {
				report.Failed[inst] = err
				e.logger.ErrorContext(ctx, "strategy_engine: apply decision",
					slog.String("instrument", inst),
					slog.String("action", string(dec.Action)),
					slog.String("error", err.Error()),
				)
			}
		}

		e.logger.DebugContext(ctx, "decision",
			slog.String("instrument", inst),
			slog.String("action", string(dec.Action)),
			slog.String("price", dec.Price.String()),
			slog.String("reason", dec.Reason),
		)
		report.Decisions = append(report.Decisions, dec)
		e.remember(dec)
	}

	report.Duration = e.now().Sub(start)
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(report.Duration.Seconds())

	e.mu.Lock()
	e.cycles++
	e.lastCycle = start
	e.mu.Unlock()

	for _, o := range e.observers {
		o.OnCycle(ctx, report)
	}
	return report
}

// fetchAll loads candles and prices for all pairs concurrently. Errors are
// kept per pair rather than cancelling the group.
func (e *Engine) fetchAll(ctx context.Context, now time.Time) []fetchResult {
	results := make([]fetchResult, len(e.cfg.Pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FetchConcurrency)
	for i, inst := range e.cfg.Pairs {
		g.Go(func() error {
			results[i] = e.fetch(gctx, inst, now)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) fetch(ctx context.Context, inst string, now time.Time) fetchResult {
	candles, err := e.market.GetCandles(ctx, inst, now.Add(-e.cfg.Lookback), now, e.cfg.Granularity)
	if err != nil {
		return fetchResult{err: fmt.Errorf("get candles: %w", err)}
	}
	if len(candles) == 0 {
		return fetchResult{err: fmt.Errorf("get candles: %w", domain.ErrInsufficientData)}
	}

	price := decimal.NewFromFloat(candles[len(candles)-1].Close)
	if e.cfg.UseLivePrice {
		live, err := e.market.GetCurrentPrice(ctx, inst)
		switch {
		case err == nil && live.IsPositive():
			price = live
		case err != nil && !errors.Is(err, context.Canceled):
			e.logger.DebugContext(ctx, "strategy_engine: live price unavailable, using last close",
				slog.String("instrument", inst),
				slog.String("error", err.Error()),
			)
		}
	}
	if !price.IsPositive() {
		return fetchResult{err: fmt.Errorf("non-positive price %s: %w", price, domain.ErrInsufficientData)}
	}
	return fetchResult{candles: candles, price: price}
}

func (e *Engine) remember(dec domain.Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.latest[dec.Instrument] = dec
	e.recent = append(e.recent, dec)
	if len(e.recent) > e.recentLimit {
		e.recent = e.recent[len(e.recent)-e.recentLimit:]
	}
}

// LatestDecisions returns the most recent decision per instrument, ordered by
// instrument.
func (e *Engine) LatestDecisions() []domain.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Decision, 0, len(e.latest))
	for _, d := range e.latest {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// RecentDecisions returns up to limit decisions, newest first.
func (e *Engine) RecentDecisions(limit int) []domain.Decision {
	if limit <= 0 {
		limit = 20
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.recent)
	if limit > n {
		limit = n
	}
	out := make([]domain.Decision, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recent[i])
	}
	return out
}

// Stats returns the number of completed cycles and when the last one began.
func (e *Engine) Stats() (int64, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycles, e.lastCycle
}
