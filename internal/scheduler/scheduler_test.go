package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mkravets/crossarb/internal/domain"
	"github.com/mkravets/crossarb/internal/position"
	"github.com/mkravets/crossarb/internal/scanner"
	"github.com/mkravets/crossarb/internal/stats"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	mu     sync.Mutex
	name   string
	prices map[string]float64
	err    error
	calls  int
}

func (s *fakeSource) GetQuotes(_ context.Context, symbols []string) (map[string]domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]domain.Quote)
	now := time.Now()
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out[sym] = domain.Quote{Symbol: sym, Price: p, Timestamp: now, SourceCount: 1}
		}
	}
	return out, nil
}

func (s *fakeSource) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	quotes, err := s.GetQuotes(ctx, []string{symbol})
	if err != nil {
		return domain.Quote{}, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return q, nil
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type orderedGateway struct {
	opened []string
	closed []string
}

func (g *orderedGateway) Open(_ context.Context, symbol string, _ domain.Side, _ float64) (domain.Fill, error) {
	g.opened = append(g.opened, symbol)
	return domain.Fill{Price: 0}, nil
}

func (g *orderedGateway) Close(_ context.Context, symbol string) (domain.Fill, error) {
	g.closed = append(g.closed, symbol)
	return domain.Fill{Price: 0}, nil
}

func (g *orderedGateway) Balance(_ context.Context) (domain.Balance, error) {
	return domain.Balance{Free: 100000, Total: 100000}, nil
}

func newTestScheduler(cfg Config, ref, cmp domain.QuoteSource, gw domain.OrderGateway) (*Scheduler, *position.Manager, *stats.Aggregator) {
	logger := testLogger()
	agg := stats.New(nil, logger, time.Now())
	mgr := position.NewManager(gw, position.FixedNotionalSizer{NotionalUSD: 100}, position.Limits{
		MaxPositions:        10,
		Leverage:            1,
		StopLossPercent:     2,
		TakeProfitPercent:   4,
		TargetSpreadPercent: 1.5,
		MaxHoldDuration:     time.Hour,
		MaxQuoteAge:         time.Minute,
		FeeRate:             0.0004,
	}, agg, nil, logger)
	sc := scanner.New(scanner.Config{MinSpreadPercent: 3}, logger)
	return New(cfg, ref, cmp, sc, mgr, agg, logger), mgr, agg
}

func TestRun_FirstTickImmediate(t *testing.T) {
	ref := &fakeSource{name: "mexc", prices: map[string]float64{"BTC/USDT": 100}}
	cmp := &fakeSource{name: "dex", prices: map[string]float64{"BTC/USDT": 100}}
	cfg := Config{Interval: time.Hour, Symbols: []string{"BTC/USDT"}}
	s, _, _ := newTestScheduler(cfg, ref, cmp, &orderedGateway{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The first tick fires before the first ticker interval elapses.
	deadline := time.After(2 * time.Second)
	for ref.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no quote fetch within 2s of Run; first tick should be immediate")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if cmp.callCount() == 0 {
		t.Error("comparison venue never fetched")
	}
}

func TestTick_EntriesFollowSymbolOrder(t *testing.T) {
	prices := map[string]float64{"BBB/USDT": 100, "AAA/USDT": 100}
	ref := &fakeSource{name: "mexc", prices: prices}
	cmp := &fakeSource{name: "dex", prices: map[string]float64{"BBB/USDT": 110, "AAA/USDT": 110}}
	gw := &orderedGateway{}

	// Configured order is not lexicographic; entries must follow it anyway.
	cfg := Config{Interval: time.Hour, Symbols: []string{"BBB/USDT", "AAA/USDT"}}
	s, mgr, _ := newTestScheduler(cfg, ref, cmp, gw)

	s.tick()

	if mgr.OpenCount() != 2 {
		t.Fatalf("OpenCount() = %d, want 2", mgr.OpenCount())
	}
	if len(gw.opened) != 2 || gw.opened[0] != "BBB/USDT" || gw.opened[1] != "AAA/USDT" {
		t.Errorf("open order = %v, want [BBB/USDT AAA/USDT]", gw.opened)
	}
}

func TestTick_VenueFailureDegrades(t *testing.T) {
	ref := &fakeSource{name: "mexc", prices: map[string]float64{"BTC/USDT": 100}}
	cmp := &fakeSource{name: "dex", err: errors.New("aggregator down")}
	gw := &orderedGateway{}
	cfg := Config{Interval: time.Hour, Symbols: []string{"BTC/USDT"}}
	s, mgr, _ := newTestScheduler(cfg, ref, cmp, gw)

	// With the comparison venue dark no spread is computable: no entries.
	s.tick()
	if mgr.OpenCount() != 0 {
		t.Fatalf("OpenCount() = %d, want 0 with comparison venue down", mgr.OpenCount())
	}
	if len(gw.opened) != 0 {
		t.Errorf("gateway opens = %v, want none", gw.opened)
	}

	// Venue recovers, a position opens; the next outage force-closes it.
	cmp.mu.Lock()
	cmp.err = nil
	cmp.prices = map[string]float64{"BTC/USDT": 110}
	cmp.mu.Unlock()
	s.tick()
	if mgr.OpenCount() != 1 {
		t.Fatalf("OpenCount() = %d, want 1 after venue recovery", mgr.OpenCount())
	}

	cmp.mu.Lock()
	cmp.err = errors.New("aggregator down")
	cmp.mu.Unlock()
	s.tick()
	if mgr.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0 (missing quote forces exit)", mgr.OpenCount())
	}
	if len(gw.closed) != 1 {
		t.Errorf("gateway closes = %v, want one", gw.closed)
	}
}

func TestRun_ShutdownClosesAllPositions(t *testing.T) {
	ref := &fakeSource{name: "mexc", prices: map[string]float64{"BTC/USDT": 100, "ETH/USDT": 200}}
	cmp := &fakeSource{name: "dex", prices: map[string]float64{"BTC/USDT": 110, "ETH/USDT": 220}}
	gw := &orderedGateway{}
	cfg := Config{Interval: time.Hour, Symbols: []string{"BTC/USDT", "ETH/USDT"}}
	s, mgr, agg := newTestScheduler(cfg, ref, cmp, gw)

	// First tick opens both positions synchronously.
	s.tick()
	if mgr.OpenCount() != 2 {
		t.Fatalf("OpenCount() = %d, want 2 before shutdown", mgr.OpenCount())
	}

	s.shutdown()

	if mgr.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0 after shutdown", mgr.OpenCount())
	}
	if len(gw.closed) != 2 {
		t.Errorf("gateway closes = %v, want two", gw.closed)
	}
	if snap := agg.Snapshot(); snap.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2", snap.TotalTrades)
	}
}

func TestTick_StatsRollover(t *testing.T) {
	ref := &fakeSource{name: "mexc", prices: map[string]float64{}}
	cmp := &fakeSource{name: "dex", prices: map[string]float64{}}
	cfg := Config{Interval: time.Hour, Symbols: []string{"BTC/USDT"}}
	s, _, agg := newTestScheduler(cfg, ref, cmp, &orderedGateway{})

	agg.RecordOpen()
	agg.RecordClose(40)
	before := agg.Snapshot()

	// Force the scheduler clock past midnight so the tick rolls the window.
	s.SetClock(func() time.Time { return before.LastResetDate.AddDate(0, 0, 1).Add(5 * time.Minute) })
	s.tick()

	after := agg.Snapshot()
	if after.DailyPnL != 0 || after.DailyTrades != 0 {
		t.Errorf("daily counters = %v/%v, want reset to zero", after.DailyPnL, after.DailyTrades)
	}
	if after.TotalPnL != before.TotalPnL || after.TotalTrades != before.TotalTrades {
		t.Errorf("cumulative counters changed across rollover: %+v -> %+v", before, after)
	}
}
