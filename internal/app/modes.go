package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/binarymarket/internal/crypto"
	"github.com/alanyoungcy/binarymarket/internal/server"
	"github.com/alanyoungcy/binarymarket/internal/server/ws"
	"github.com/alanyoungcy/binarymarket/internal/service"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// NewEngine builds the market engine from the configuration and wired
// dependencies. archiver may be nil.
func (a *App) NewEngine(deps *Dependencies, archiver service.MarketArchiver) *service.Engine {
	mc := a.cfg.Market
	engineDeps := service.EngineDeps{
		Store:     deps.Store,
		Locks:     deps.Locks,
		Cache:     deps.Cache,
		Publisher: deps.Publisher,
		Archiver:  archiver,
		Metrics:   deps.Metrics,
		Logger:    a.logger,
	}
	// A notifier without senders stays unset.
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		engineDeps.Notifier = deps.Notifier
	}

	return service.NewEngine(service.EngineConfig{
		Global:           a.cfg.Global(),
		RentFloor:        mc.RentFloorLamports,
		BettingCutoff:    mc.BettingCutoff.Duration,
		StrictResolution: mc.StrictResolution,
		BurnOnClaim:      mc.BurnOnClaim,
		GateMint:         a.cfg.GateMint(),
		GateMinimum:      mc.GateMinimum,
		LockTTL:          mc.LockTTL.Duration,
		AutoArchive:      a.cfg.Archive.OnResolve,
	}, engineDeps)
}

// ServeMode runs the HTTP API, the WebSocket relay when Redis is enabled, and
// blocks until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering serve mode",
		slog.String("backend", a.cfg.Store.Backend),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("archive", a.cfg.Archive.Enabled),
		slog.String("global_config", crypto.GlobalAddress(uint8(a.cfg.Market.GlobalBump)).Hex()),
	)

	g, ctx := errgroup.WithContext(ctx)

	var archive *service.ArchiveService
	if deps.BlobWriter != nil && deps.BlobReader != nil {
		archive = service.NewArchiveService(deps.Store, deps.BlobWriter, deps.BlobReader, a.logger)
	}

	var archiver service.MarketArchiver
	if archive != nil {
		archiver = archive
	}
	engine := a.NewEngine(deps, archiver)

	srvDeps := server.Deps{
		Markets:  engine,
		Accounts: engine,
		Limiter:  deps.Limiter,
		Metrics:  deps.Metrics,
		Checks:   deps.Checks,
	}
	if archive != nil {
		srvDeps.Archive = archive
	}
	if deps.SignalBus != nil {
		hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			Metrics:        deps.Metrics,
		})
		srvDeps.Hub = hub
		srvDeps.Stream = deps.SignalBus
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("ws hub: %w", err)
			}
			return nil
		})
	}

	a.startHTTPServer(ctx, g, srvDeps)

	if deps.Notifier.Enabled() {
		msg := fmt.Sprintf("marketd serving on port %d (%s store)", a.cfg.Server.Port, a.cfg.Store.Backend)
		if err := deps.Notifier.NotifyAll(ctx, "marketd started", msg); err != nil {
			a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
		}
	}

	return g.Wait()
}

// MigrateMode applies the embedded schema migrations and exits.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	if deps.Postgres == nil {
		return errors.New("app: migrate mode needs the postgres backend")
	}
	a.logger.InfoContext(ctx, "applying migrations")
	applied, err := deps.Postgres.RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	a.logger.InfoContext(ctx, "migrations applied",
		slog.Int("count", len(applied)),
		slog.Any("files", applied),
	)
	return nil
}

// startHTTPServer adds an HTTP server goroutine to the given errgroup. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps server.Deps) {
	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, deps, a.logger)

	g.Go(func() error {
		port := a.cfg.Server.Port
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
