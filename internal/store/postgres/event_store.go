package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkravets/crossarb/internal/domain"
)

// EventStore implements domain.TradeEventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Insert persists one trade event. Re-inserting an event id is a no-op so a
// retried recorder call cannot duplicate rows.
func (s *EventStore) Insert(ctx context.Context, ev domain.TradeEvent) error {
	const query = `
		INSERT INTO trade_events (
			id, event_type, position_id, symbol, side,
			size, price, spread_percent, pnl, fee,
			close_reason, occurred_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12
		) ON CONFLICT (id) DO NOTHING`

	var reason *string
	if ev.Reason != "" {
		r := string(ev.Reason)
		reason = &r
	}

	_, err := s.pool.Exec(ctx, query,
		ev.ID, string(ev.Type), ev.PositionID, ev.Symbol, string(ev.Side),
		ev.Size, ev.Price, ev.SpreadPercent, ev.PnL, ev.Fee,
		reason, ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade event %s: %w", ev.ID, err)
	}
	return nil
}

// ListRecent returns the most recent trade events, newest first.
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeEvent, error) {
	const query = `
		SELECT id, event_type, position_id, symbol, side,
		       size, price, spread_percent, pnl, fee,
		       COALESCE(close_reason, ''), occurred_at
		FROM trade_events
		ORDER BY occurred_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events: %w", err)
	}
	defer rows.Close()

	var events []domain.TradeEvent
	for rows.Next() {
		var ev domain.TradeEvent
		var evType, side, reason string
		if err := rows.Scan(
			&ev.ID, &evType, &ev.PositionID, &ev.Symbol, &side,
			&ev.Size, &ev.Price, &ev.SpreadPercent, &ev.PnL, &ev.Fee,
			&reason, &ev.At,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade event: %w", err)
		}
		ev.Type = domain.TradeEventType(evType)
		ev.Side = domain.Side(side)
		ev.Reason = domain.CloseReason(reason)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Compile-time interface check.
var _ domain.TradeEventStore = (*EventStore)(nil)
