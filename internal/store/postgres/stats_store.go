package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkravets/crossarb/internal/domain"
)

// StatsStore implements domain.DayArchiver and domain.SessionStore using
// PostgreSQL.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a new StatsStore backed by the given connection pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// ArchiveDay persists the totals for one completed calendar day. The day
// column is the primary key and conflicts are ignored, so a repeated archive
// of the same date can never duplicate or overwrite totals.
func (s *StatsStore) ArchiveDay(ctx context.Context, report domain.DailyReport) error {
	const query = `
		INSERT INTO daily_stats (day, pnl, trades)
		VALUES ($1, $2, $3)
		ON CONFLICT (day) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, report.Date, report.PnL, report.Trades)
	if err != nil {
		return fmt.Errorf("postgres: archive day %s: %w", report.Date.Format("2006-01-02"), err)
	}
	return nil
}

// SaveSession persists the end-of-run statistics snapshot.
func (s *StatsStore) SaveSession(ctx context.Context, snap domain.SessionSnapshot) error {
	const query = `
		INSERT INTO sessions (
			id, mode, symbols, started_at, ended_at,
			total_trades, winning_trades, total_pnl
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		snap.ID, snap.Mode, snap.Symbols, snap.StartedAt, snap.EndedAt,
		snap.Stats.TotalTrades, snap.Stats.WinningTrades, snap.Stats.TotalPnL,
	)
	if err != nil {
		return fmt.Errorf("postgres: save session %s: %w", snap.ID, err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.DayArchiver  = (*StatsStore)(nil)
	_ domain.SessionStore = (*StatsStore)(nil)
)
