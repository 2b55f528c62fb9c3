package domain

import (
	"context"
	"time"
)

// QuoteSource supplies current prices for one venue. Implementations may
// return a partial map on partial upstream failure; a symbol missing from the
// result is not an error.
type QuoteSource interface {
	// GetQuotes fetches quotes for the given symbols. Symbols that could not
	// be priced are omitted from the returned map.
	GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
	// GetQuote fetches a single quote. It returns ErrQuoteUnavailable when the
	// venue has no price for the symbol.
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	// Name identifies the venue for logging.
	Name() string
}

// Balance is the account balance reported by the order gateway.
type Balance struct {
	Free  float64
	Total float64
}

// Fill is the gateway's report of an executed order.
type Fill struct {
	OrderID string
	Price   float64 // 0 when the gateway does not report a fill price
}

// OrderGateway opens and closes exposure on the reference venue. A gateway is
// constructed once per run in either test (simulated fills) or live mode; the
// mode never changes for the lifetime of the run.
type OrderGateway interface {
	Open(ctx context.Context, symbol string, side Side, size float64) (Fill, error)
	Close(ctx context.Context, symbol string) (Fill, error)
	Balance(ctx context.Context) (Balance, error)
}

// TradeRecorder receives the typed open/close events emitted by the position
// manager. Recording failures must never affect position tracking.
type TradeRecorder interface {
	Record(ctx context.Context, ev TradeEvent) error
}

// DayArchiver persists the totals for a completed calendar day. Archiving is
// idempotent per day: re-archiving the same date must not duplicate totals.
type DayArchiver interface {
	ArchiveDay(ctx context.Context, report DailyReport) error
}

// SessionStore persists the end-of-run statistics snapshot.
type SessionStore interface {
	SaveSession(ctx context.Context, snap SessionSnapshot) error
}

// TradeEventStore persists trade events for later analysis.
type TradeEventStore interface {
	Insert(ctx context.Context, ev TradeEvent) error
	ListRecent(ctx context.Context, limit int) ([]TradeEvent, error)
}

// QuoteCache is a short-TTL cache of venue quotes keyed by venue and symbol.
type QuoteCache interface {
	SetQuote(ctx context.Context, venue string, q Quote, ttl time.Duration) error
	// GetQuote returns ErrNotFound on a miss or expired entry.
	GetQuote(ctx context.Context, venue, symbol string) (Quote, error)
}
