package domain

import "time"

// SessionStats is the cumulative and daily trading statistics for one run.
type SessionStats struct {
	TotalTrades   int
	WinningTrades int
	TotalPnL      float64
	DailyPnL      float64
	DailyTrades   int
	LastResetDate time.Time // calendar date of the last daily reset, UTC midnight
}

// WinRate returns the percentage of winning trades, or 0 when no trades have
// been recorded.
func (s SessionStats) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades) * 100
}

// DailyReport is the archived totals for one completed calendar day.
type DailyReport struct {
	Date   time.Time // UTC midnight of the reported day
	PnL    float64
	Trades int
}

// SessionSnapshot is the end-of-run statistics record emitted at shutdown.
type SessionSnapshot struct {
	ID        string
	Mode      string
	Symbols   []string
	StartedAt time.Time
	EndedAt   time.Time
	Stats     SessionStats
}
