package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/coinbot/internal/config"
	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/server"
	"github.com/alanyoungcy/coinbot/internal/server/handler"
	"github.com/alanyoungcy/coinbot/internal/server/middleware"
	"github.com/alanyoungcy/coinbot/internal/server/ws"
)

// startHTTPServer adds the API server and the WebSocket hub to g. The server
// is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub, src apiSources) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Health, a.logger),
		Status:    handler.NewStatusHandler(src.status),
		Portfolio: handler.NewPortfolioHandler(src.portfolio, src.mode, a.logger),
		Trades:    handler.NewTradeHandler(src.trades, a.logger),
		Signals:   handler.NewSignalHandler(src.feed, src.history, a.logger),
		Config:    handler.NewConfigHandler(config.RedactedConfig(a.cfg)),
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	// Without Redis each process limits on its own.
	var limiter domain.RateLimiter = middleware.NewLocalLimiter()
	if deps.RateLimiter != nil {
		limiter = deps.RateLimiter
	}

	srvCfg := server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}
	if a.cfg.Metrics.Enabled {
		srvCfg.MetricsPath = a.cfg.Metrics.Path
	}
	srv := server.NewServer(srvCfg, handlers, hub, limiter, a.logger)

	if hub != nil {
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown", slog.String("error", err.Error()))
		}
		return nil
	})
}
