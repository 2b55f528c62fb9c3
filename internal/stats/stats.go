// Package stats maintains the cumulative and daily trading counters derived
// from position manager events, including the calendar-day rollover.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkravets/crossarb/internal/domain"
)

// Aggregator accumulates session statistics. Like the position map it is
// mutated only from the scheduler goroutine, so it carries no lock.
type Aggregator struct {
	archiver domain.DayArchiver // may be nil
	logger   *slog.Logger

	totalTrades   int
	winningTrades int
	totalPnL      float64
	dailyPnL      float64
	dailyTrades   int
	lastResetDate time.Time
}

// New creates an Aggregator whose daily window starts on the calendar date of
// now. archiver may be nil when no persistence is wired.
func New(archiver domain.DayArchiver, logger *slog.Logger, now time.Time) *Aggregator {
	return &Aggregator{
		archiver:      archiver,
		logger:        logger.With(slog.String("component", "stats")),
		lastResetDate: midnight(now),
	}
}

// RecordOpen counts a newly opened position.
func (a *Aggregator) RecordOpen() {
	a.totalTrades++
	a.dailyTrades++
}

// RecordClose books the realized PnL of a closed position.
func (a *Aggregator) RecordClose(pnl float64) {
	a.totalPnL += pnl
	a.dailyPnL += pnl
	if pnl > 0 {
		a.winningTrades++
	}
}

// Rollover compares the calendar date of now against the last reset date. On
// a date change it archives the prior day's totals exactly once and resets
// the daily counters; cumulative totals are never touched.
func (a *Aggregator) Rollover(ctx context.Context, now time.Time) {
	day := midnight(now)
	if day.Equal(a.lastResetDate) {
		return
	}

	report := domain.DailyReport{
		Date:   a.lastResetDate,
		PnL:    a.dailyPnL,
		Trades: a.dailyTrades,
	}
	a.logger.InfoContext(ctx, "daily totals archived",
		slog.Time("date", report.Date),
		slog.Float64("pnl", report.PnL),
		slog.Int("trades", report.Trades),
	)
	if a.archiver != nil {
		if err := a.archiver.ArchiveDay(ctx, report); err != nil {
			a.logger.WarnContext(ctx, "day archive failed",
				slog.Time("date", report.Date),
				slog.String("error", err.Error()),
			)
		}
	}

	a.dailyPnL = 0
	a.dailyTrades = 0
	a.lastResetDate = day
}

// WinRate returns the percentage of winning trades, 0 when no trades exist.
func (a *Aggregator) WinRate() float64 {
	return a.Snapshot().WinRate()
}

// DailyPnL returns the PnL accumulated since the last daily reset.
func (a *Aggregator) DailyPnL() float64 { return a.dailyPnL }

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() domain.SessionStats {
	return domain.SessionStats{
		TotalTrades:   a.totalTrades,
		WinningTrades: a.winningTrades,
		TotalPnL:      a.totalPnL,
		DailyPnL:      a.dailyPnL,
		DailyTrades:   a.dailyTrades,
		LastResetDate: a.lastResetDate,
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
