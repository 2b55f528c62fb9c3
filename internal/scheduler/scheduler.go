// Package scheduler drives the engine: a single cooperative tick loop that
// fetches both venues, scans for opportunities, admits entries, evaluates
// exits, and rolls the daily statistics window. All mutation of the position
// manager and the stats aggregator happens on this one goroutine.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkravets/crossarb/internal/domain"
	"github.com/mkravets/crossarb/internal/position"
	"github.com/mkravets/crossarb/internal/scanner"
	"github.com/mkravets/crossarb/internal/stats"
)

// Config controls the tick loop.
type Config struct {
	Interval      time.Duration // time between tick starts
	FetchTimeout  time.Duration // per-venue quote fetch deadline
	TickTimeout   time.Duration // hard deadline for one whole tick
	StatsLogEvery int           // log a stats snapshot every N ticks, 0 disables
	Symbols       []string      // scan order, fixed for the run
}

// Scheduler owns the tick loop and all cross-component sequencing.
type Scheduler struct {
	cfg     Config
	ref     domain.QuoteSource
	cmp     domain.QuoteSource
	scanner *scanner.Scanner
	manager *position.Manager
	stats   *stats.Aggregator
	logger  *slog.Logger

	now   func() time.Time
	ticks int
}

func New(cfg Config, ref, cmp domain.QuoteSource, sc *scanner.Scanner, mgr *position.Manager, agg *stats.Aggregator, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		ref:     ref,
		cmp:     cmp,
		scanner: sc,
		manager: mgr,
		stats:   agg,
		logger:  logger.With(slog.String("component", "scheduler")),
		now:     time.Now,
	}
}

// SetClock overrides the scheduler's clock. Intended for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run executes the tick loop until ctx is cancelled, then flattens every open
// position before returning. The first tick fires immediately. Cancellation
// is observed between ticks only; a tick already in flight runs to completion
// on a detached context so a mid-tick close is never abandoned halfway.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Any("symbols", s.cfg.Symbols),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one full cycle: fetch, scan, enter, exit, rollover. Its context
// is detached from Run's so cancellation mid-tick cannot orphan gateway
// calls.
func (s *Scheduler) tick() {
	ctx := context.Background()
	if s.cfg.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TickTimeout)
		defer cancel()
	}

	s.ticks++
	ref, cmp := s.fetchQuotes(ctx)

	opps := s.scanner.Scan(ref, cmp, s.cfg.Symbols, s.now())
	for _, opp := range opps {
		if err := s.manager.ConsiderEntry(ctx, opp); err != nil {
			s.logger.WarnContext(ctx, "entry failed",
				slog.String("symbol", opp.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	s.manager.EvaluateExits(ctx, ref, cmp)
	s.stats.Rollover(ctx, s.now())

	if s.cfg.StatsLogEvery > 0 && s.ticks%s.cfg.StatsLogEvery == 0 {
		s.logSnapshot(ctx)
	}
}

// fetchQuotes queries both venues concurrently. A venue failure degrades that
// venue to an empty map rather than aborting the tick; downstream rules treat
// the missing quotes as unavailable.
func (s *Scheduler) fetchQuotes(ctx context.Context) (ref, cmp map[string]domain.Quote) {
	g, gctx := errgroup.WithContext(ctx)

	fetch := func(src domain.QuoteSource, out *map[string]domain.Quote) func() error {
		return func() error {
			fctx := gctx
			if s.cfg.FetchTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, s.cfg.FetchTimeout)
				defer cancel()
			}
			quotes, err := src.GetQuotes(fctx, s.cfg.Symbols)
			if err != nil {
				s.logger.WarnContext(ctx, "quote fetch failed",
					slog.String("venue", src.Name()),
					slog.String("error", err.Error()),
				)
				// Returning nil keeps the other venue's fetch alive; the
				// venue simply contributes no quotes this tick.
				return nil
			}
			*out = quotes
			return nil
		}
	}

	g.Go(fetch(s.ref, &ref))
	g.Go(fetch(s.cmp, &cmp))
	_ = g.Wait()

	if ref == nil {
		ref = map[string]domain.Quote{}
	}
	if cmp == nil {
		cmp = map[string]domain.Quote{}
	}
	return ref, cmp
}

// shutdown fetches a final set of reference quotes on a best-effort basis and
// closes every open position. Positions whose close fails stay tracked; the
// manager logs the residual exposure.
func (s *Scheduler) shutdown() {
	ctx := context.Background()
	if s.cfg.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TickTimeout)
		defer cancel()
	}

	open := s.manager.OpenCount()
	s.logger.InfoContext(ctx, "shutdown, closing open positions",
		slog.Int("open_positions", open),
	)
	if open == 0 {
		return
	}

	ref, err := s.ref.GetQuotes(ctx, s.manager.Symbols())
	if err != nil {
		s.logger.WarnContext(ctx, "final quote fetch failed, closing without fresh prices",
			slog.String("venue", s.ref.Name()),
			slog.String("error", err.Error()),
		)
		ref = map[string]domain.Quote{}
	}
	s.manager.CloseAll(ctx, ref)
	s.logSnapshot(ctx)
}

func (s *Scheduler) logSnapshot(ctx context.Context) {
	snap := s.stats.Snapshot()
	s.logger.InfoContext(ctx, "session stats",
		slog.Int("total_trades", snap.TotalTrades),
		slog.Int("winning_trades", snap.WinningTrades),
		slog.Float64("win_rate_pct", snap.WinRate()),
		slog.Float64("total_pnl", snap.TotalPnL),
		slog.Float64("daily_pnl", snap.DailyPnL),
		slog.Int("open_positions", s.manager.OpenCount()),
	)
}
