package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/executor"
	"github.com/alanyoungcy/coinbot/internal/notify"
	"github.com/alanyoungcy/coinbot/internal/pipeline"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
	"github.com/alanyoungcy/coinbot/internal/server/handler"
	"github.com/alanyoungcy/coinbot/internal/server/ws"
	"github.com/alanyoungcy/coinbot/internal/service"
	"github.com/alanyoungcy/coinbot/internal/strategy"
)

// liveLockKey guards against two processes trading the same account.
const liveLockKey = "runner:live"

// TradeMode runs the decision loop against the configured exchange. Paper
// trading books simulated fills; live trading submits market orders first.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies, live bool) error {
	mode := "paper"
	if live {
		mode = "live"
	}
	a.logger.InfoContext(ctx, "starting trade mode", slog.String("mode", mode))

	var lock domain.Lock
	if live {
		if deps.LockManager == nil {
			a.logger.WarnContext(ctx, "trade mode: redis disabled, running live without the single-runner lock")
		} else {
			var err error
			lock, err = deps.LockManager.Acquire(ctx, liveLockKey, a.cfg.Redis.LockTTL.Duration)
			if err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					return fmt.Errorf("trade mode: another live runner holds the lock: %w", err)
				}
				return fmt.Errorf("trade mode: acquire live lock: %w", err)
			}
			defer lock.Release()
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if lock != nil {
		g.Go(func() error {
			return watchLock(ctx, lock)
		})
	}

	// Ledger and its durable state.
	ledger := portfolio.NewLedger(riskConfig(a.cfg), a.logger)
	throttle := portfolio.NewThrottle(a.cfg.Throttle.Window.Duration)

	// The hub needs the status service, which needs the engine; resolve it
	// lazily so the hub can be a publisher for the services built below.
	var status *service.StatusService
	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(deps.SignalBus, statusFunc(func() domain.BotStatus { return status.Status() }), a.logger)
	}
	publishers := a.publishers(deps, hub)

	var priceBus domain.EventPublisher
	if len(publishers) > 0 {
		priceBus = fanout(publishers)
	}
	priceSvc := service.NewPriceService(deps.PriceCache, priceBus, a.logger)
	positionSvc := service.NewPositionService(ledger, deps.SnapshotStore, priceSvc, deps.AuditStore, a.logger)
	if err := positionSvc.Restore(ctx); err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	signalSvc := service.NewSignalService(
		deps.DecisionStore, deps.ThrottleStore, priceSvc, positionSvc,
		publishers, deps.Notifier, a.logger,
	)
	if err := signalSvc.LoadThrottle(ctx, throttle); err != nil {
		a.logger.WarnContext(ctx, "trade mode: throttle state not restored",
			slog.String("error", err.Error()),
		)
	}

	tradeSvc := service.NewTradeService(
		ledger, deps.TradeStore, positionSvc, publishers,
		deps.AuditStore, deps.Notifier, notify.FormatTrade, a.logger,
	)

	// Executor: only live mode hands it an order client.
	var orders domain.OrderExecutor
	if live {
		orders = deps.Exchange
	}
	exec := executor.NewExecutor(ledger, orders, deps.Exchange.Name(), tradeSvc, a.logger)

	policy := strategy.NewPolicy(strategyParams(a.cfg), ledger, throttle)
	engine := strategy.NewEngine(engineConfig(a.cfg), deps.Exchange, policy, exec, a.logger)
	engine.AddObserver(signalSvc)
	if a.cfg.Export.Enabled && len(deps.BlobWriters) > 0 {
		exportSvc := service.NewExportService(
			deps.BlobWriters, a.cfg.Export.Prefix, mode,
			positionSvc, tradeSvc, engine.LatestDecisions, a.logger,
		)
		engine.AddObserver(exportSvc)
	}

	status = service.NewStatusService(mode, deps.Exchange.Name(), !live, engine, positionSvc)

	g.Go(func() error {
		return engine.Run(ctx, a.cfg.Trading.LoopInterval.Duration)
	})
	g.Go(func() error {
		return exec.Run(ctx)
	})

	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, hub, apiSources{
			status:    status,
			portfolio: positionSvc,
			trades:    tradeSvc,
			feed:      engine,
			history:   signalSvc,
			mode:      mode,
		})
	}

	return g.Wait()
}

// MonitorMode serves the dashboard API for a bot running elsewhere. The
// portfolio view is rebuilt from the latest snapshot every loop interval and
// live events are relayed from the bus.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	if deps.SnapshotStore == nil {
		a.logger.WarnContext(ctx, "monitor mode: postgres disabled, portfolio view shows the starting balance only")
	}
	if deps.SignalBus == nil {
		a.logger.WarnContext(ctx, "monitor mode: redis disabled, no live events will reach websocket clients")
	}

	g, ctx := errgroup.WithContext(ctx)

	priceSvc := service.NewPriceService(deps.PriceCache, nil, a.logger)
	view := newSnapshotView(riskConfig(a.cfg), deps.SnapshotStore, deps.TradeStore, priceSvc, a.logger)
	if err := view.Refresh(ctx); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}
	g.Go(func() error {
		return view.Run(ctx, a.cfg.Trading.LoopInterval.Duration)
	})

	// History only: no engine or ledger in this process.
	signalSvc := service.NewSignalService(deps.DecisionStore, nil, nil, nil, nil, nil, a.logger)
	status := service.NewStatusService("monitor", a.cfg.Exchange.Provider, false, nil, view)
	hub := ws.NewHub(deps.SignalBus, status, a.logger)

	a.startHTTPServer(ctx, g, deps, hub, apiSources{
		status:    status,
		portfolio: view,
		trades:    view,
		history:   signalSvc,
		mode:      "monitor",
	})

	return g.Wait()
}

// publishers lists where services announce events. With Redis the bus is
// the only in-process target and the hub relays from it; without Redis the
// hub is fed directly.
func (a *App) publishers(deps *Dependencies, hub *ws.Hub) []domain.EventPublisher {
	var out []domain.EventPublisher
	switch {
	case deps.SignalBus != nil:
		out = append(out, deps.SignalBus)
	case hub != nil:
		out = append(out, hub)
	}
	if deps.Kafka != nil {
		out = append(out, deps.Kafka)
	}
	return out
}

// startArchiver schedules the retention job when archiving is enabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled {
		return
	}
	if deps.Archiver == nil && deps.decisionPruner == nil {
		a.logger.WarnContext(ctx, "archive enabled but nothing to archive or prune")
		return
	}

	archiver := pipeline.NewArchiver(deps.Archiver, deps.decisionPruner, a.cfg.Archive.RetentionDays, a.logger)
	g.Go(func() error {
		if a.cfg.Archive.Schedule != "" {
			return archiver.RunCron(ctx, a.cfg.Archive.Schedule)
		}
		return archiver.RunEvery(ctx, a.cfg.Archive.Interval.Duration)
	})
}

// watchLock returns an error once lock is lost, which stops the group and
// with it all order submission.
func watchLock(ctx context.Context, lock domain.Lock) error {
	select {
	case <-ctx.Done():
		return nil
	case <-lock.Lost():
		return fmt.Errorf("trade mode: live lock lost: %w", lock.Err())
	}
}

// statusFunc adapts a function to ws.StatusProvider.
type statusFunc func() domain.BotStatus

func (f statusFunc) Status() domain.BotStatus { return f() }

// apiSources are the read models behind the REST handlers.
type apiSources struct {
	status    handler.StatusProvider
	portfolio handler.PortfolioReader
	trades    handler.TradeLister
	feed      handler.DecisionFeed // nil without a local engine
	history   handler.DecisionHistory
	mode      string
}
