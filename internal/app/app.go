// Package app provides the top-level application lifecycle. It wires
// together stores, the confidential value service, the token ledger, the
// market services, and the HTTP server, and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/veilworks/blindbet/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
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

// Run is the main entry point. It wires all dependencies, starts the oracle,
// event hub, archiver, and HTTP server goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", strings.ToLower(a.cfg.Mode)),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	// Decryption oracle: drains the enclave queue and finalizes claims.
	g.Go(func() error {
		err := deps.Oracle.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	// WebSocket hub: fans the event feed out to connected clients.
	g.Go(func() error {
		err := deps.Hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	// Archiver: exports settled markets to object storage when enabled.
	if deps.Archiver != nil {
		g.Go(func() error {
			err := deps.Archiver.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	// HTTP server.
	g.Go(func() error {
		return deps.Server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return deps.Server.Shutdown(shutCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
