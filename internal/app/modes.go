package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pipwatch/internal/monitor"
	"github.com/alanyoungcy/pipwatch/internal/server"
	"github.com/alanyoungcy/pipwatch/internal/server/handler"
	"github.com/alanyoungcy/pipwatch/internal/server/ws"
	"github.com/alanyoungcy/pipwatch/internal/service"
)

// MonitorMode runs the TP/SL monitoring loop without the HTTP API. Positions
// are managed by another instance running in server mode against the same
// database.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	quoteSvc := a.newQuoteService(deps)
	a.startMonitor(ctx, g, deps, quoteSvc)
	a.startArchiveLoop(ctx, g, deps)

	return g.Wait()
}

// ServerMode runs the HTTP + WebSocket API without the monitoring loop.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	quoteSvc := a.newQuoteService(deps)
	a.startHTTPServer(ctx, g, deps, quoteSvc)

	return g.Wait()
}

// FullMode runs everything: the monitoring loop, the archive loop, and the
// HTTP + WebSocket API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	quoteSvc := a.newQuoteService(deps)
	a.startMonitor(ctx, g, deps, quoteSvc)
	a.startArchiveLoop(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, quoteSvc)
	}

	return g.Wait()
}

// newQuoteService builds the shared cache-then-provider quote path. Both the
// monitor and the HTTP API consume quotes through it, so they draw from the
// same provider quota.
func (a *App) newQuoteService(deps *Dependencies) *service.QuoteService {
	return service.NewQuoteService(
		deps.QuoteSource,
		deps.QuoteCache,
		deps.RateLimiter,
		deps.SignalBus,
		a.cfg.TwelveData.RateLimit,
		a.cfg.TwelveData.RateWindow.Duration,
		a.logger,
	)
}

// startMonitor adds the TP/SL monitoring loop to the errgroup. Cancellation
// is a clean shutdown, not an error.
func (a *App) startMonitor(ctx context.Context, g *errgroup.Group, deps *Dependencies, quoteSvc *service.QuoteService) {
	mon := monitor.New(
		deps.PositionStore,
		quoteSvc,
		deps.Notifier,
		deps.SignalBus,
		deps.LockManager,
		monitor.Config{
			Interval:            a.cfg.Monitor.Interval.Duration,
			QuoteTimeout:        a.cfg.Monitor.QuoteTimeout.Duration,
			MaxConcurrentQuotes: a.cfg.Monitor.MaxConcurrentQuotes,
			CloseTimeout:        a.cfg.Monitor.CloseTimeout.Duration,
		},
		a.logger,
	)

	g.Go(func() error {
		err := mon.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// startArchiveLoop adds a daily job that exports ledger records older than
// the configured retention to cold storage. One export runs at startup so a
// rarely-restarted instance does not sit on an overdue backlog. No-op when
// archival is disabled.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	g.Go(func() error {
		a.archiveExpired(ctx, deps)

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.archiveExpired(ctx, deps)
			}
		}
	})
}

// archiveExpired exports every ledger record older than the retention window.
func (a *App) archiveExpired(ctx context.Context, deps *Dependencies) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	count, err := deps.Archiver.ArchiveClosedPositions(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "archive loop: export failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if count > 0 {
		a.logger.InfoContext(ctx, "archive loop: exported ledger records",
			slog.Int64("records", count),
			slog.Time("cutoff", cutoff),
		)
	}
}

// startHTTPServer adds the HTTP + WebSocket API goroutines to the errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, quoteSvc *service.QuoteService) {
	tradeSvc := service.NewTradeService(deps.PositionStore, quoteSvc, deps.SignalBus, a.logger)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Positions: handler.NewPositionHandler(tradeSvc, a.logger),
		Prices:    handler.NewPriceHandler(quoteSvc, a.logger),
	}
	if deps.Archiver != nil && deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.Archiver, deps.BlobReader, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
