// Package sim provides the test-mode order gateway: orders fill instantly at
// the reference venue's current price against a paper balance. No request
// ever leaves the process.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mkravets/crossarb/internal/domain"
)

// holding is one simulated open position.
type holding struct {
	side   domain.Side
	size   float64
	entry  float64
	margin float64
}

// Gateway simulates the order gateway. Fills are taken from the reference
// quote source at call time; margin is held on open and released with the
// leverage-adjusted PnL on close.
type Gateway struct {
	source   domain.QuoteSource
	leverage int
	logger   *slog.Logger

	mu       sync.Mutex
	free     float64
	holdings map[string]holding
	seq      int
}

var _ domain.OrderGateway = (*Gateway)(nil)

// NewGateway creates a paper gateway with the given starting balance.
func NewGateway(source domain.QuoteSource, initialBalance float64, leverage int, logger *slog.Logger) *Gateway {
	if leverage < 1 {
		leverage = 1
	}
	return &Gateway{
		source:   source,
		leverage: leverage,
		logger:   logger.With(slog.String("component", "sim_gateway")),
		free:     initialBalance,
		holdings: make(map[string]holding),
	}
}

// Open fills a market order at the current reference price and holds the
// position's margin.
func (g *Gateway) Open(ctx context.Context, symbol string, side domain.Side, size float64) (domain.Fill, error) {
	q, err := g.source.GetQuote(ctx, symbol)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("sim: open %s: %w", symbol, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.holdings[symbol]; exists {
		return domain.Fill{}, fmt.Errorf("sim: open %s: %w", symbol, domain.ErrPositionExists)
	}
	margin := size * q.Price / float64(g.leverage)
	if margin > g.free {
		return domain.Fill{}, fmt.Errorf("sim: open %s: need %.2f margin, have %.2f free: %w",
			symbol, margin, g.free, domain.ErrInsufficientBalance)
	}

	g.free -= margin
	g.holdings[symbol] = holding{side: side, size: size, entry: q.Price, margin: margin}
	g.seq++

	g.logger.DebugContext(ctx, "simulated fill",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Float64("size", size),
		slog.Float64("price", q.Price),
		slog.Float64("margin_held", margin),
	)
	return domain.Fill{OrderID: fmt.Sprintf("sim-%d", g.seq), Price: q.Price}, nil
}

// Close fills at the current reference price and settles margin plus PnL back
// into the free balance. When no price is available the position settles at
// its entry price; a simulated close never fails on market data.
func (g *Gateway) Close(ctx context.Context, symbol string) (domain.Fill, error) {
	exit := 0.0
	if q, err := g.source.GetQuote(ctx, symbol); err == nil {
		exit = q.Price
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	h, ok := g.holdings[symbol]
	if !ok {
		return domain.Fill{}, fmt.Errorf("sim: close %s: %w", symbol, domain.ErrNotFound)
	}
	if exit <= 0 {
		exit = h.entry
	}

	var pnl float64
	switch h.side {
	case domain.SideLong:
		pnl = (exit - h.entry) * h.size * float64(g.leverage)
	case domain.SideShort:
		pnl = (h.entry - exit) * h.size * float64(g.leverage)
	}

	g.free += h.margin + pnl
	delete(g.holdings, symbol)
	g.seq++

	g.logger.DebugContext(ctx, "simulated close",
		slog.String("symbol", symbol),
		slog.Float64("exit_price", exit),
		slog.Float64("pnl", pnl),
		slog.Float64("margin_released", h.margin),
	)
	return domain.Fill{OrderID: fmt.Sprintf("sim-%d", g.seq), Price: exit}, nil
}

// Balance reports the paper balance. Total includes margin held by open
// positions at entry valuation.
func (g *Gateway) Balance(_ context.Context) (domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := g.free
	for _, h := range g.holdings {
		total += h.margin
	}
	return domain.Balance{Free: g.free, Total: total}, nil
}
