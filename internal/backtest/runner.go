// Package backtest replays historical candles through the decision engine
// and a simulated ledger and reports the outcome.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/executor"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
	"github.com/alanyoungcy/coinbot/internal/service"
	"github.com/alanyoungcy/coinbot/internal/strategy"
)

// Config is one replay window.
type Config struct {
	Pairs          []string
	Granularity    domain.Granularity
	Lookback       time.Duration // history visible to each decision
	Start          time.Time
	End            time.Time
	Warmup         int // bars loaded before Start to seed the indicators
	ThrottleWindow time.Duration
}

// EquityPoint is the marked total balance after one step.
type EquityPoint struct {
	Time    time.Time       `json:"time"`
	Balance decimal.Decimal `json:"balance"`
}

// Report is the outcome of a replay.
type Report struct {
	Start          time.Time                  `json:"start"`
	End            time.Time                  `json:"end"`
	Steps          int                        `json:"steps"`
	Decisions      map[string]int             `json:"decisions"`
	Portfolio      service.PortfolioDocument  `json:"portfolio"`
	Positions      []service.PositionDocument `json:"open_positions"`
	Trades         []service.TradeDocument    `json:"trades"`
	MaxDrawdownPct decimal.Decimal            `json:"max_drawdown_pct"`
	EquityCurve    []EquityPoint              `json:"equity_curve"`
}

// Runner executes replays against a historical data source.
type Runner struct {
	source domain.MarketData
	params strategy.Params
	risk   portfolio.Config
	logger *slog.Logger
}

// NewRunner creates a Runner. source is only used to load history.
func NewRunner(source domain.MarketData, params strategy.Params, risk portfolio.Config, logger *slog.Logger) *Runner {
	return &Runner{
		source: source,
		params: params,
		risk:   risk,
		logger: logger.With(slog.String("component", "backtest")),
	}
}

// Run loads history for every pair and replays it step by step. Each step is
// one full engine cycle with the clock at the bar's close, the first moment
// its close price is known.
func (r *Runner) Run(ctx context.Context, cfg Config) (Report, error) {
	if !cfg.End.After(cfg.Start) {
		return Report{}, errors.New("backtest: end must be after start")
	}
	if !cfg.Granularity.Valid() {
		return Report{}, fmt.Errorf("backtest: unsupported granularity %q", cfg.Granularity)
	}

	replay, err := r.load(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	timeline := replay.Timeline(cfg.Start, cfg.End)
	if len(timeline) == 0 {
		return Report{}, fmt.Errorf("backtest: no candles between %s and %s: %w",
			cfg.Start.Format(time.RFC3339), cfg.End.Format(time.RFC3339), domain.ErrInsufficientData)
	}

	var now time.Time
	clock := func() time.Time { return now }

	ledger := portfolio.NewLedger(r.risk, r.logger)
	ledger.SetClock(clock)
	policy := strategy.NewPolicy(r.params, ledger, portfolio.NewThrottle(cfg.ThrottleWindow))
	exec := executor.NewExecutor(ledger, nil, "backtest", nil, r.logger)
	engine := strategy.NewEngine(strategy.EngineConfig{
		Pairs:            cfg.Pairs,
		Granularity:      cfg.Granularity,
		Lookback:         cfg.Lookback,
		FetchConcurrency: 1,
	}, replay, policy, exec, slog.New(slog.DiscardHandler))
	engine.SetClock(clock)

	r.logger.InfoContext(ctx, "backtest started",
		slog.Int("pairs", len(cfg.Pairs)),
		slog.Int("steps", len(timeline)),
		slog.Time("start", timeline[0]),
		slog.Time("end", timeline[len(timeline)-1]),
	)

	report := Report{
		Start:       timeline[0],
		End:         timeline[len(timeline)-1],
		Decisions:   make(map[string]int),
		EquityCurve: make([]EquityPoint, 0, len(timeline)),
	}
	marks := make(map[string]decimal.Decimal, len(cfg.Pairs))
	step := cfg.Granularity.Duration()
	for _, t := range timeline {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		now = t.Add(step)
		replay.Advance(t)

		cycle := engine.RunCycle(ctx)
		for _, dec := range cycle.Decisions {
			marks[dec.Instrument] = dec.Price
			report.Decisions[string(dec.Action)]++
		}
		report.Steps++
		report.EquityCurve = append(report.EquityCurve, EquityPoint{Time: now, Balance: ledger.TotalBalance(marks)})
	}

	sum := ledger.Summary(marks)
	report.Portfolio = service.PortfolioView(sum, "backtest")
	for _, p := range ledger.Positions() {
		report.Positions = append(report.Positions, service.PositionView(p))
	}
	for _, t := range ledger.History() {
		report.Trades = append(report.Trades, service.TradeView(t))
	}
	report.MaxDrawdownPct = maxDrawdownPct(report.EquityCurve)

	r.logger.InfoContext(ctx, "backtest finished",
		slog.Int("steps", report.Steps),
		slog.Int("trades", sum.TotalTrades),
		slog.Int("winning_trades", sum.WinningTrades),
		slog.String("total_balance", sum.TotalBalance.StringFixed(2)),
		slog.String("return_pct", sum.ReturnPct.StringFixed(2)),
		slog.String("max_drawdown_pct", report.MaxDrawdownPct.StringFixed(2)),
	)
	return report, nil
}

// load fetches Warmup bars before Start through End for every pair.
func (r *Runner) load(ctx context.Context, cfg Config) (*Replay, error) {
	from := cfg.Start.Add(-time.Duration(cfg.Warmup) * cfg.Granularity.Duration())
	data := make(map[string][]domain.Candle, len(cfg.Pairs))
	for _, inst := range cfg.Pairs {
		cs, err := r.source.GetCandles(ctx, inst, from, cfg.End, cfg.Granularity)
		if err != nil {
			return nil, fmt.Errorf("backtest: load %s: %w", inst, err)
		}
		r.logger.DebugContext(ctx, "backtest: history loaded",
			slog.String("instrument", inst),
			slog.Int("candles", len(cs)),
		)
		data[inst] = cs
	}
	return NewReplay(data), nil
}

// maxDrawdownPct is the largest peak-to-trough fall of the curve, in
// percent of the peak.
func maxDrawdownPct(curve []EquityPoint) decimal.Decimal {
	var peak, worst decimal.Decimal
	for _, p := range curve {
		if p.Balance.GreaterThan(peak) {
			peak = p.Balance
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(p.Balance).Div(peak).Mul(decimal.NewFromInt(100))
		if dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst.Round(2)
}
