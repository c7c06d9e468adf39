// Package app provides the top-level application lifecycle for the
// up/down bot. It wires together the venue, feed, stores, cache, blob
// storage, and notifications, runs the trading engine until shutdown,
// and flushes the session statistics and daily archive on the way out.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmarquez/updownbot/internal/config"
	"github.com/dmarquez/updownbot/internal/detector"
	"github.com/dmarquez/updownbot/internal/domain"
	"github.com/dmarquez/updownbot/internal/engine"
	"github.com/dmarquez/updownbot/internal/executor"
	"github.com/dmarquez/updownbot/internal/feed"
	"github.com/dmarquez/updownbot/internal/risk"
	"github.com/dmarquez/updownbot/internal/stats"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
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

// Run is the main entry point. It wires all dependencies, builds the
// engine, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("series", a.cfg.Trading.Series),
		slog.String("feed", a.cfg.Trading.Feed),
		slog.Bool("dry_run", a.cfg.DryRun),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	tracker := stats.NewTracker(a.logger)

	det := detector.New(detector.Config{
		TargetPairCost: a.cfg.Trading.TargetPairCost,
		OrderSize:      a.cfg.Trading.OrderSize,
		Cooldown:       a.cfg.Trading.Cooldown.Duration,
	}, a.logger)

	gate := risk.NewGate(risk.Limits{
		MaxDailyLoss:          a.cfg.Risk.MaxDailyLoss,
		MaxPositionSize:       a.cfg.Risk.MaxPositionSize,
		MaxTradesPerDay:       a.cfg.Risk.MaxTradesPerDay,
		MinBalanceRequired:    a.cfg.Risk.MinBalanceRequired,
		MaxBalanceUtilization: a.cfg.Risk.MaxBalanceUtilization,
	}, a.logger)

	exec := executor.New(deps.Venue, executor.Config{
		OrderType: domain.OrderType(strings.ToUpper(a.cfg.Trading.OrderType)),
	}, a.logger)

	useWSS := strings.EqualFold(a.cfg.Trading.Feed, "wss")

	// The WS client and engine hold references to each other: the client
	// hands decoded events to the engine, the engine retargets the
	// client's subscription on market rollover. The client connects only
	// after the engine exists so the handler never sees a nil engine.
	var eng *engine.Engine
	var sub engine.Subscriber
	var ws *feed.WSClient
	if useWSS {
		ws = feed.NewWSClient(a.cfg.Polymarket.WsHost, func(ev domain.BookEvent) {
			eng.HandleEvent(ev)
		}, a.logger)
		sub = ws
	}

	eng = engine.New(engine.Config{
		Series:       a.cfg.Trading.Series,
		UseWSS:       useWSS,
		PollInterval: a.cfg.Trading.PollInterval.Duration,
		Debounce:     a.cfg.Trading.Debounce.Duration,
		BalanceTTL:   a.cfg.Trading.BalanceTTL.Duration,
		BalanceSlack: a.cfg.Trading.BalanceSlack,
	}, engine.Deps{
		Finder:    deps.Finder,
		Venue:     deps.Venue,
		Fetcher:   deps.Fetcher,
		Subscribe: sub,
		Detector:  det,
		Gate:      gate,
		Executor:  exec,
		Tracker:   tracker,
		Store:     deps.Store,
		Bus:       deps.Bus,
		Notifier:  deps.Notifier,
		Logger:    a.logger,
	})

	if ws != nil {
		if err := ws.Connect(ctx); err != nil {
			return fmt.Errorf("app: connect feed: %w", err)
		}
		a.closers = append(a.closers, func() { _ = ws.Close() })
	}

	runErr := eng.Run(ctx)

	tracker.LogFinal()
	if deps.Archiver != nil {
		// The run context is already cancelled; give the export its own.
		exportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := deps.Archiver.ExportDay(exportCtx, time.Now()); err != nil {
			a.logger.Error("daily archive export failed", slog.String("error", err.Error()))
		}
	}

	if errors.Is(runErr, context.Canceled) {
		return context.Canceled
	}
	return runErr
}

// Close tears down all resources in reverse registration order. It is
// safe to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
