package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/alanyoungcy/coinbot/internal/backtest"
	"github.com/alanyoungcy/coinbot/internal/config"
	"github.com/alanyoungcy/coinbot/internal/domain"
)

// BacktestMode replays the configured window through the decision engine
// and writes the report to every blob writer, or to stdout when none is
// configured.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	start, err := config.ParseDate(a.cfg.Backtest.Start)
	if err != nil {
		return fmt.Errorf("backtest mode: start: %w", err)
	}
	end := time.Now().UTC()
	if a.cfg.Backtest.End != "" {
		if end, err = config.ParseDate(a.cfg.Backtest.End); err != nil {
			return fmt.Errorf("backtest mode: end: %w", err)
		}
	}

	runner := backtest.NewRunner(deps.Exchange, strategyParams(a.cfg), riskConfig(a.cfg), a.logger)
	report, err := runner.Run(ctx, backtest.Config{
		Pairs:          a.cfg.Trading.Pairs,
		Granularity:    domain.Granularity(a.cfg.Trading.Granularity),
		Lookback:       a.cfg.Trading.CandleLookback.Duration,
		Start:          start,
		End:            end,
		Warmup:         a.cfg.Backtest.Warmup,
		ThrottleWindow: a.cfg.Throttle.Window.Duration,
	})
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("backtest mode: encode report: %w", err)
	}

	if len(deps.BlobWriters) == 0 {
		_, err := os.Stdout.Write(append(body, '\n'))
		return err
	}
	key := reportKey(a.cfg.Export.Prefix, start, end)
	for _, w := range deps.BlobWriters {
		if err := w.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
			return fmt.Errorf("backtest mode: write report %s: %w", key, err)
		}
	}
	a.logger.InfoContext(ctx, "backtest report written", slog.String("key", key))
	return nil
}

func reportKey(prefix string, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s.json", start.UTC().Format("20060102T1504"), end.UTC().Format("20060102T1504"))
	return path.Join(prefix, "backtest", name)
}
