// Package app provides the top-level lifecycle of the buy alert service. It
// wires stores, caches, blob storage, venues and notification platforms, then
// starts the goroutines of the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/buyalert/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	closers    []func()
}

// New creates a new App. configPath is where threshold changes are written
// back.
func New(cfg *config.Config, configPath string, logger *slog.Logger) *App {
	return &App{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// Run wires all dependencies, selects the operating mode and blocks until
// the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "app: starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.configPath, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "alert":
		return a.AlertMode(ctx, deps)
	case "dry-run":
		return a.DryRunMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("app: shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
