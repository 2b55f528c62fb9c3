package stats

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/mkravets/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureArchiver struct {
	reports []domain.DailyReport
}

func (c *captureArchiver) ArchiveDay(_ context.Context, r domain.DailyReport) error {
	c.reports = append(c.reports, r)
	return nil
}

func TestWinRate(t *testing.T) {
	a := New(nil, testLogger(), time.Now())

	if got := a.WinRate(); got != 0 {
		t.Errorf("WinRate() with no trades = %v, want 0", got)
	}

	a.RecordOpen()
	a.RecordOpen()
	a.RecordOpen()
	a.RecordOpen()
	a.RecordClose(10)  // win
	a.RecordClose(-5)  // loss
	a.RecordClose(2.5) // win

	if got := a.WinRate(); got != 50 {
		t.Errorf("WinRate() = %v, want 50 (2 wins of 4 trades)", got)
	}
}

func TestRecordClose_Accumulates(t *testing.T) {
	a := New(nil, testLogger(), time.Now())

	a.RecordOpen()
	a.RecordClose(19.92)
	a.RecordOpen()
	a.RecordClose(-4.5)

	snap := a.Snapshot()
	if math.Abs(snap.TotalPnL-15.42) > 1e-9 {
		t.Errorf("TotalPnL = %v, want 15.42", snap.TotalPnL)
	}
	if math.Abs(snap.DailyPnL-15.42) > 1e-9 {
		t.Errorf("DailyPnL = %v, want 15.42", snap.DailyPnL)
	}
	if snap.WinningTrades != 1 {
		t.Errorf("WinningTrades = %v, want 1", snap.WinningTrades)
	}
	if snap.TotalTrades != 2 || snap.DailyTrades != 2 {
		t.Errorf("trades = %v total / %v daily, want 2/2", snap.TotalTrades, snap.DailyTrades)
	}
}

func TestRollover_DateChange(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 2, 0, 5, 0, 0, time.UTC)

	arch := &captureArchiver{}
	a := New(arch, testLogger(), day1)

	a.RecordOpen()
	a.RecordClose(50)
	a.RecordClose(25) // totalPnl 75, dailyPnl 75

	// Same day: no reset.
	a.Rollover(context.Background(), day1.Add(2*time.Hour))
	if snap := a.Snapshot(); snap.DailyPnL != 75 {
		t.Fatalf("DailyPnL after same-day rollover = %v, want 75", snap.DailyPnL)
	}
	if len(arch.reports) != 0 {
		t.Fatalf("archived %d reports before date change, want 0", len(arch.reports))
	}

	// New day: daily resets, cumulative untouched, prior day archived once.
	a.Rollover(context.Background(), day2)

	snap := a.Snapshot()
	if snap.DailyPnL != 0 {
		t.Errorf("DailyPnL after rollover = %v, want 0", snap.DailyPnL)
	}
	if snap.DailyTrades != 0 {
		t.Errorf("DailyTrades after rollover = %v, want 0", snap.DailyTrades)
	}
	if snap.TotalPnL != 75 {
		t.Errorf("TotalPnL after rollover = %v, want 75 (cumulative untouched)", snap.TotalPnL)
	}
	if snap.TotalTrades != 1 {
		t.Errorf("TotalTrades after rollover = %v, want 1", snap.TotalTrades)
	}

	if len(arch.reports) != 1 {
		t.Fatalf("archived %d reports, want exactly 1", len(arch.reports))
	}
	r := arch.reports[0]
	if !r.Date.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("archived date = %v, want 2024-01-01", r.Date)
	}
	if r.PnL != 75 || r.Trades != 1 {
		t.Errorf("archived report = pnl %v / trades %v, want 75/1", r.PnL, r.Trades)
	}

	// Repeating the rollover on the same new day must not archive again.
	a.Rollover(context.Background(), day2.Add(time.Hour))
	if len(arch.reports) != 1 {
		t.Errorf("archived %d reports after repeat rollover, want 1", len(arch.reports))
	}
}
