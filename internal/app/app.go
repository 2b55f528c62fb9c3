// Package app provides the top-level application lifecycle for the arbitrage
// engine. It wires together all dependencies (venue clients, caches, stores,
// blob storage, and notifications), builds the trading components, and runs
// the scan loop until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mkravets/crossarb/internal/config"
	"github.com/mkravets/crossarb/internal/domain"
	"github.com/mkravets/crossarb/internal/position"
	"github.com/mkravets/crossarb/internal/scanner"
	"github.com/mkravets/crossarb/internal/scheduler"
	"github.com/mkravets/crossarb/internal/stats"
)

// shutdownTimeout bounds the end-of-run persistence work after the main
// context is already cancelled.
const shutdownTimeout = 15 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
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

// Run is the main entry point. It wires all dependencies, verifies venue
// connectivity, starts the quote stream and the scan loop, and blocks until
// the context is cancelled. Cancellation is the normal way to stop a session
// and is not reported as an error.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting engine",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.Any("symbols", a.cfg.Trading.Symbols),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if err := a.checkConnectivity(ctx, deps); err != nil {
		return err
	}

	startedAt := time.Now().UTC()
	agg := stats.New(deps.Archiver, a.logger, startedAt)

	sizer, err := position.NewSizer(
		a.cfg.Trading.SizingPolicy,
		a.cfg.Trading.NotionalUSD,
		a.cfg.Trading.RiskFraction,
		a.cfg.Trading.MaxNotionalUSD,
	)
	if err != nil {
		return fmt.Errorf("app: build sizer: %w", err)
	}

	mgr := position.NewManager(deps.Gateway, sizer, position.Limits{
		MaxPositions:        a.cfg.Risk.MaxPositions,
		Leverage:            a.cfg.Risk.Leverage,
		StopLossPercent:     a.cfg.Risk.StopLossPercent,
		TakeProfitPercent:   a.cfg.Risk.TakeProfitPercent,
		TargetSpreadPercent: a.cfg.Trading.TargetSpreadPercent,
		MaxHoldDuration:     a.cfg.Risk.MaxHoldDuration.Duration,
		MaxQuoteAge:         a.cfg.Risk.MaxQuoteAge.Duration,
		FeeRate:             a.cfg.Risk.FeeRate,
		MaxDailyLoss:        a.cfg.Risk.MaxDailyLoss,
	}, agg, deps.Recorder, a.logger)

	sc := scanner.New(scanner.Config{
		MinSpreadPercent: a.cfg.Trading.MinSpreadPercent,
	}, a.logger)

	sched := scheduler.New(scheduler.Config{
		Interval:      a.cfg.Trading.ScanInterval.Duration,
		FetchTimeout:  a.cfg.Trading.FetchTimeout.Duration,
		TickTimeout:   a.cfg.Trading.TickTimeout.Duration,
		StatsLogEvery: a.cfg.Trading.StatsLogEvery,
		Symbols:       a.cfg.Trading.Symbols,
	}, deps.RefSource, deps.CmpSource, sc, mgr, agg, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	if deps.Ticker != nil {
		g.Go(func() error {
			// The stream is an optimization; losing it degrades to REST-only
			// quotes and must not stop the scan loop.
			_ = deps.Ticker.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return sched.Run(gctx)
	})

	runErr := g.Wait()

	a.finishSession(deps, agg, startedAt)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("app: run: %w", runErr)
	}
	return nil
}

// checkConnectivity verifies both venues respond before the loop starts, so a
// bad endpoint or token map fails fast instead of producing empty scans.
func (a *App) checkConnectivity(ctx context.Context, deps *Dependencies) error {
	if err := deps.Mexc.Ping(ctx); err != nil {
		return fmt.Errorf("app: mexc connectivity: %w", err)
	}
	if len(a.cfg.Trading.Symbols) > 0 {
		sym := a.cfg.Trading.Symbols[0]
		if _, err := deps.CmpSource.GetQuote(ctx, sym); err != nil {
			return fmt.Errorf("app: dex connectivity (%s): %w", sym, err)
		}
	}
	a.logger.InfoContext(ctx, "venue connectivity verified")
	return nil
}

// finishSession persists the end-of-run snapshot and sends the summary
// notification. The parent context is already cancelled at this point, so all
// work runs on a fresh bounded context and failures are logged, not returned.
func (a *App) finishSession(deps *Dependencies, agg *stats.Aggregator, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	snap := domain.SessionSnapshot{
		ID:        uuid.NewString(),
		Mode:      a.cfg.Mode,
		Symbols:   a.cfg.Trading.Symbols,
		StartedAt: startedAt,
		EndedAt:   time.Now().UTC(),
		Stats:     agg.Snapshot(),
	}

	for _, store := range deps.SessionStores {
		if err := store.SaveSession(ctx, snap); err != nil {
			a.logger.ErrorContext(ctx, "save session snapshot",
				slog.String("session_id", snap.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if deps.Notifier != nil {
		msg := fmt.Sprintf(
			"trades: %d, win rate: %.1f%%, pnl: %+.2f USDT",
			snap.Stats.TotalTrades, snap.Stats.WinRate(), snap.Stats.TotalPnL,
		)
		if err := deps.Notifier.NotifyAll(ctx, "Session finished", msg); err != nil {
			a.logger.WarnContext(ctx, "session summary notification",
				slog.String("error", err.Error()),
			)
		}
	}

	a.logger.Info("session finished",
		slog.String("session_id", snap.ID),
		slog.Int("trades", snap.Stats.TotalTrades),
		slog.Float64("total_pnl", snap.Stats.TotalPnL),
	)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
