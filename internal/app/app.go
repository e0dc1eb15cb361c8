// Package app provides top-level lifecycle management for the escrow engine.
// It wires dependencies, builds the services, and runs the HTTP server, the
// WebSocket hub, the notification worker and the expiry scheduler as one
// errgroup.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vignex/escrow-engine/internal/clock"
	"github.com/vignex/escrow-engine/internal/config"
	"github.com/vignex/escrow-engine/internal/expiry"
	"github.com/vignex/escrow-engine/internal/notify"
	"github.com/vignex/escrow-engine/internal/server"
	"github.com/vignex/escrow-engine/internal/server/handler"
	"github.com/vignex/escrow-engine/internal/server/ws"
	"github.com/vignex/escrow-engine/internal/service"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after a
// shutdown signal.
const shutdownGrace = 10 * time.Second

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts every component, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting escrow engine",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	clk := clock.NewSystem()

	userSvc := service.NewUserService(deps.UserStore, clk, a.cfg.Engine.StartingBalance, a.logger)
	adSvc := service.NewAdService(deps.AdStore, deps.UserStore, deps.SignalBus, deps.AuditStore, clk, a.logger)
	tradeSvc := service.NewTradeService(
		deps.UserStore,
		deps.AdStore,
		deps.TradeStore,
		deps.AuditStore,
		deps.TxRunner,
		deps.LockManager,
		deps.RateLimiter,
		deps.RateSource,
		deps.SignalBus,
		clk,
		service.TradeConfig{
			LockTTL:      a.cfg.Engine.LockTTL.Duration,
			CreateLimit:  a.cfg.Engine.CreateLimit,
			CreateWindow: a.cfg.Engine.CreateWindow.Duration,
			FallbackRate: a.cfg.Engine.ReferencePrice,
		},
		a.logger,
	)
	directorySvc := service.NewDirectoryService(deps.TradeStore, a.logger)

	scheduler := expiry.NewScheduler(
		deps.TradeStore,
		tradeSvc,
		clk,
		a.cfg.Engine.ExpiryInterval.Duration,
		a.cfg.Engine.ExpiryBatch,
		a.logger,
	)

	wsHub := ws.NewHub(deps.SignalBus, a.logger)
	notifyWorker := notify.NewWorker(deps.SignalBus, deps.Notifier, a.logger)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			Limiter:     deps.RateLimiter,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health: handler.NewHealthHandler(a.logger),
			Users:  handler.NewUserHandler(userSvc, a.logger),
			Ads:    handler.NewAdHandler(adSvc, a.logger),
			Trades: handler.NewTradeHandler(tradeSvc, directorySvc, a.logger),
		},
		wsHub,
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		return wsHub.Run(gctx)
	})
	g.Go(func() error {
		return notifyWorker.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down escrow engine")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
