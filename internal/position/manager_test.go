package position

import (
	"context"
	"errors"
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

type fakeGateway struct {
	balance    domain.Balance
	balanceErr error

	openFill  domain.Fill
	openErr   error
	openCalls int

	closeFill  domain.Fill
	closeErr   error
	closeCalls int
}

func (g *fakeGateway) Open(_ context.Context, _ string, _ domain.Side, _ float64) (domain.Fill, error) {
	g.openCalls++
	if g.openErr != nil {
		return domain.Fill{}, g.openErr
	}
	return g.openFill, nil
}

func (g *fakeGateway) Close(_ context.Context, _ string) (domain.Fill, error) {
	g.closeCalls++
	if g.closeErr != nil {
		return domain.Fill{}, g.closeErr
	}
	return g.closeFill, nil
}

func (g *fakeGateway) Balance(_ context.Context) (domain.Balance, error) {
	if g.balanceErr != nil {
		return domain.Balance{}, g.balanceErr
	}
	return g.balance, nil
}

type fakeStats struct {
	opens    int
	closePnL []float64
	dailyPnL float64
}

func (s *fakeStats) RecordOpen()             { s.opens++ }
func (s *fakeStats) RecordClose(pnl float64) { s.closePnL = append(s.closePnL, pnl) }
func (s *fakeStats) DailyPnL() float64       { return s.dailyPnL }

type captureRecorder struct {
	events []domain.TradeEvent
}

func (r *captureRecorder) Record(_ context.Context, ev domain.TradeEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func defaultLimits() Limits {
	return Limits{
		MaxPositions:        3,
		Leverage:            1,
		StopLossPercent:     2.0,
		TakeProfitPercent:   4.0,
		TargetSpreadPercent: 1.5,
		MaxHoldDuration:     time.Hour,
		MaxQuoteAge:         30 * time.Second,
		FeeRate:             0.0004,
	}
}

func newTestManager(gw *fakeGateway, st *fakeStats, rec *captureRecorder, limits Limits) *Manager {
	// A typed nil *captureRecorder would make the interface non-nil; pass a
	// true nil so NewManager's "recorder may be nil" contract applies.
	var recorder domain.TradeRecorder
	if rec != nil {
		recorder = rec
	}
	return NewManager(gw, FixedNotionalSizer{NotionalUSD: 100}, limits, st, recorder, testLogger())
}

func opp(symbol string, refPrice, cmpPrice float64) domain.Opportunity {
	direction := domain.SideShort
	if refPrice < cmpPrice {
		direction = domain.SideLong
	}
	return domain.Opportunity{
		Symbol:          symbol,
		ReferencePrice:  refPrice,
		ComparisonPrice: cmpPrice,
		SpreadPercent:   domain.SpreadPercent(refPrice, cmpPrice),
		Direction:       direction,
		DetectedAt:      time.Now(),
	}
}

func quoteMap(now time.Time, prices map[string]float64) map[string]domain.Quote {
	m := make(map[string]domain.Quote, len(prices))
	for sym, p := range prices {
		m[sym] = domain.Quote{Symbol: sym, Price: p, Timestamp: now, SourceCount: 1}
	}
	return m
}

func TestConsiderEntry_OpensPosition(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 1000, Total: 1000}, openFill: domain.Fill{OrderID: "o1", Price: 100}}
	st := &fakeStats{}
	rec := &captureRecorder{}
	m := newTestManager(gw, st, rec, defaultLimits())

	if err := m.ConsiderEntry(context.Background(), opp("BTC/USDT", 100, 110)); err != nil {
		t.Fatalf("ConsiderEntry() error = %v", err)
	}

	pos, ok := m.Get("BTC/USDT")
	if !ok {
		t.Fatal("no position tracked after successful entry")
	}
	if pos.Side != domain.SideLong {
		t.Errorf("Side = %v, want long", pos.Side)
	}
	if pos.Size != 1 {
		t.Errorf("Size = %v, want 1 (100 USD notional at price 100)", pos.Size)
	}
	if pos.Status != domain.PositionStatusOpen {
		t.Errorf("Status = %v, want open", pos.Status)
	}
	// long: stop < entry < take
	if !(pos.StopLossPrice < pos.EntryPrice && pos.EntryPrice < pos.TakeProfitPrice) {
		t.Errorf("long levels inconsistent: stop %v, entry %v, take %v",
			pos.StopLossPrice, pos.EntryPrice, pos.TakeProfitPrice)
	}
	if pos.StopLossPrice != 98 || pos.TakeProfitPrice != 104 {
		t.Errorf("stop/take = %v/%v, want 98/104", pos.StopLossPrice, pos.TakeProfitPrice)
	}
	if st.opens != 1 {
		t.Errorf("RecordOpen calls = %d, want 1", st.opens)
	}
	if len(rec.events) != 1 || rec.events[0].Type != domain.TradeEventOpen {
		t.Errorf("events = %v, want one open event", rec.events)
	}
}

func TestConsiderEntry_ShortLevels(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}, openFill: domain.Fill{Price: 200}}
	m := newTestManager(gw, &fakeStats{}, nil, defaultLimits())

	if err := m.ConsiderEntry(context.Background(), opp("ETH/USDT", 200, 180)); err != nil {
		t.Fatalf("ConsiderEntry() error = %v", err)
	}
	pos, _ := m.Get("ETH/USDT")
	if pos.Side != domain.SideShort {
		t.Fatalf("Side = %v, want short", pos.Side)
	}
	// short: take < entry < stop
	if !(pos.TakeProfitPrice < pos.EntryPrice && pos.EntryPrice < pos.StopLossPrice) {
		t.Errorf("short levels inconsistent: take %v, entry %v, stop %v",
			pos.TakeProfitPrice, pos.EntryPrice, pos.StopLossPrice)
	}
	if pos.StopLossPrice != 204 || pos.TakeProfitPrice != 192 {
		t.Errorf("stop/take = %v/%v, want 204/192", pos.StopLossPrice, pos.TakeProfitPrice)
	}
}

func TestConsiderEntry_DuplicateSymbolSkipped(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}, openFill: domain.Fill{Price: 100}}
	st := &fakeStats{}
	m := newTestManager(gw, st, nil, defaultLimits())

	ctx := context.Background()
	if err := m.ConsiderEntry(ctx, opp("BTC/USDT", 100, 110)); err != nil {
		t.Fatalf("first entry error = %v", err)
	}
	if err := m.ConsiderEntry(ctx, opp("BTC/USDT", 100, 112)); err != nil {
		t.Fatalf("second entry error = %v", err)
	}

	if m.OpenCount() != 1 {
		t.Errorf("OpenCount() = %d, want 1", m.OpenCount())
	}
	if gw.openCalls != 1 {
		t.Errorf("gateway open calls = %d, want 1 (duplicate must not reach gateway)", gw.openCalls)
	}
	if st.opens != 1 {
		t.Errorf("RecordOpen calls = %d, want 1", st.opens)
	}
}

func TestConsiderEntry_MaxPositions(t *testing.T) {
	limits := defaultLimits()
	limits.MaxPositions = 1
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}, openFill: domain.Fill{Price: 100}}
	st := &fakeStats{}
	m := newTestManager(gw, st, nil, limits)

	ctx := context.Background()
	// Two qualifying opportunities for distinct symbols in one tick: only the
	// first is opened, the second never reaches the gateway.
	if err := m.ConsiderEntry(ctx, opp("AAA/USDT", 100, 110)); err != nil {
		t.Fatalf("first entry error = %v", err)
	}
	if err := m.ConsiderEntry(ctx, opp("BBB/USDT", 100, 110)); err != nil {
		t.Fatalf("second entry error = %v", err)
	}

	if m.OpenCount() != 1 {
		t.Fatalf("OpenCount() = %d, want 1", m.OpenCount())
	}
	if _, ok := m.Get("AAA/USDT"); !ok {
		t.Error("first symbol in scan order should hold the position")
	}
	if gw.openCalls != 1 {
		t.Errorf("gateway open calls = %d, want 1", gw.openCalls)
	}
}

func TestConsiderEntry_GatewayRejected(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}, openErr: errors.New("order rejected")}
	st := &fakeStats{}
	m := newTestManager(gw, st, nil, defaultLimits())

	err := m.ConsiderEntry(context.Background(), opp("BTC/USDT", 100, 110))
	if err == nil {
		t.Fatal("ConsiderEntry() = nil, want error on gateway rejection")
	}
	if m.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0 (no position on failed open)", m.OpenCount())
	}
	if st.opens != 0 {
		t.Errorf("RecordOpen calls = %d, want 0 (counters untouched on failed open)", st.opens)
	}
}

func TestConsiderEntry_InsufficientBalance(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 5}} // fixed 100 USD notional can't be margined
	st := &fakeStats{}
	m := newTestManager(gw, st, nil, defaultLimits())

	if err := m.ConsiderEntry(context.Background(), opp("BTC/USDT", 100, 110)); err != nil {
		t.Fatalf("ConsiderEntry() error = %v, want nil (log-only skip)", err)
	}
	if gw.openCalls != 0 {
		t.Errorf("gateway open calls = %d, want 0", gw.openCalls)
	}
	if m.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0", m.OpenCount())
	}
}

func TestConsiderEntry_DailyLossLimit(t *testing.T) {
	limits := defaultLimits()
	limits.MaxDailyLoss = 50
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}, openFill: domain.Fill{Price: 100}}
	st := &fakeStats{dailyPnL: -55}
	m := newTestManager(gw, st, nil, limits)

	if err := m.ConsiderEntry(context.Background(), opp("BTC/USDT", 100, 110)); err != nil {
		t.Fatalf("ConsiderEntry() error = %v, want nil", err)
	}
	if gw.openCalls != 0 {
		t.Errorf("gateway open calls = %d, want 0 when daily loss limit reached", gw.openCalls)
	}
}

// openTestPosition opens a long position at entry price 100, size 1.
func openTestPosition(t *testing.T, m *Manager, gw *fakeGateway, symbol string) *domain.Position {
	t.Helper()
	gw.openFill = domain.Fill{Price: 100}
	if err := m.ConsiderEntry(context.Background(), opp(symbol, 100, 110)); err != nil {
		t.Fatalf("ConsiderEntry() error = %v", err)
	}
	pos, ok := m.Get(symbol)
	if !ok {
		t.Fatalf("position for %s not tracked", symbol)
	}
	return pos
}

func TestEvaluate_PnLWithLeverageAndFees(t *testing.T) {
	limits := defaultLimits()
	limits.Leverage = 2
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}}
	st := &fakeStats{}
	rec := &captureRecorder{}
	m := newTestManager(gw, st, rec, limits)

	pos := openTestPosition(t, m, gw, "BTC/USDT")
	gw.closeFill = domain.Fill{Price: 110}

	now := time.Now()
	// Ref at 110 trips take-profit (104); wide spread keeps rule 2 quiet.
	ref := quoteMap(now, map[string]float64{"BTC/USDT": 110})
	cmp := quoteMap(now, map[string]float64{"BTC/USDT": 130})

	closed, err := m.Evaluate(context.Background(), pos, ref, cmp)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !closed {
		t.Fatal("Evaluate() closed = false, want true (take-profit)")
	}

	if len(st.closePnL) != 1 {
		t.Fatalf("RecordClose calls = %d, want 1", len(st.closePnL))
	}
	// (110-100)*1*2 - 100*1*0.0004*2 = 20 - 0.08 = 19.92
	if math.Abs(st.closePnL[0]-19.92) > 1e-9 {
		t.Errorf("realized pnl = %v, want 19.92", st.closePnL[0])
	}
	if m.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0 after close", m.OpenCount())
	}

	var closeEv *domain.TradeEvent
	for i := range rec.events {
		if rec.events[i].Type == domain.TradeEventClose {
			closeEv = &rec.events[i]
		}
	}
	if closeEv == nil {
		t.Fatal("no close event emitted")
	}
	if closeEv.Reason != domain.CloseReasonTakeProfit {
		t.Errorf("close reason = %v, want take_profit", closeEv.Reason)
	}
	if math.Abs(closeEv.Fee-0.08) > 1e-9 {
		t.Errorf("fee = %v, want 0.08", closeEv.Fee)
	}
}

func TestEvaluate_SpreadConvergence(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}}
	rec := &captureRecorder{}
	m := newTestManager(gw, &fakeStats{}, rec, defaultLimits())

	pos := openTestPosition(t, m, gw, "BTC/USDT")
	gw.closeFill = domain.Fill{Price: 100}

	now := time.Now()
	// Spread |100-98.8|/100*100 = 1.2% <= target 1.5% -> convergence close.
	ref := quoteMap(now, map[string]float64{"BTC/USDT": 100})
	cmp := quoteMap(now, map[string]float64{"BTC/USDT": 98.8})

	closed, err := m.Evaluate(context.Background(), pos, ref, cmp)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !closed {
		t.Fatal("Evaluate() closed = false, want true at 1.2%% spread vs 1.5%% target")
	}
	last := rec.events[len(rec.events)-1]
	if last.Reason != domain.CloseReasonSpreadConverged {
		t.Errorf("close reason = %v, want spread_converged", last.Reason)
	}
}

func TestEvaluate_QuoteUnavailableForcesExit(t *testing.T) {
	tests := []struct {
		name string
		ref  map[string]domain.Quote
		cmp  map[string]domain.Quote
	}{
		{
			name: "reference quote missing",
			ref:  map[string]domain.Quote{},
			cmp:  quoteMap(time.Now(), map[string]float64{"BTC/USDT": 100}),
		},
		{
			name: "comparison quote missing",
			ref:  quoteMap(time.Now(), map[string]float64{"BTC/USDT": 100}),
			cmp:  map[string]domain.Quote{},
		},
		{
			name: "stale reference quote",
			ref:  quoteMap(time.Now().Add(-5*time.Minute), map[string]float64{"BTC/USDT": 100}),
			cmp:  quoteMap(time.Now(), map[string]float64{"BTC/USDT": 100}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{balance: domain.Balance{Free: 1000}}
			rec := &captureRecorder{}
			m := newTestManager(gw, &fakeStats{}, rec, defaultLimits())

			pos := openTestPosition(t, m, gw, "BTC/USDT")

			closed, err := m.Evaluate(context.Background(), pos, tt.ref, tt.cmp)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !closed {
				t.Fatal("Evaluate() closed = false, want fail-safe close")
			}
			last := rec.events[len(rec.events)-1]
			if last.Reason != domain.CloseReasonQuoteUnavailable {
				t.Errorf("close reason = %v, want quote_unavailable", last.Reason)
			}
		})
	}
}

func TestEvaluate_StopLoss(t *testing.T) {
	tests := []struct {
		name     string
		refEntry float64
		cmpEntry float64
		refNow   float64
		cmpNow   float64
		side     domain.Side
	}{
		// long stop at 98: ref 97 breaches
		{"long breach", 100, 110, 97, 110, domain.SideLong},
		// short stop at 102: ref 103 breaches
		{"short breach", 100, 90, 103, 90, domain.SideShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{balance: domain.Balance{Free: 1000}, openFill: domain.Fill{Price: tt.refEntry}}
			rec := &captureRecorder{}
			m := newTestManager(gw, &fakeStats{}, rec, defaultLimits())

			if err := m.ConsiderEntry(context.Background(), opp("BTC/USDT", tt.refEntry, tt.cmpEntry)); err != nil {
				t.Fatalf("ConsiderEntry() error = %v", err)
			}
			pos, _ := m.Get("BTC/USDT")
			if pos.Side != tt.side {
				t.Fatalf("Side = %v, want %v", pos.Side, tt.side)
			}

			now := time.Now()
			ref := quoteMap(now, map[string]float64{"BTC/USDT": tt.refNow})
			cmp := quoteMap(now, map[string]float64{"BTC/USDT": tt.cmpNow})

			closed, err := m.Evaluate(context.Background(), pos, ref, cmp)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !closed {
				t.Fatal("Evaluate() closed = false, want stop-loss close")
			}
			last := rec.events[len(rec.events)-1]
			if last.Reason != domain.CloseReasonStopLoss {
				t.Errorf("close reason = %v, want stop_loss", last.Reason)
			}
		})
	}
}

func TestEvaluate_MaxHoldDuration(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}}
	rec := &captureRecorder{}
	m := newTestManager(gw, &fakeStats{}, rec, defaultLimits())

	pos := openTestPosition(t, m, gw, "BTC/USDT")

	// Advance the clock past the hold limit; prices stay neutral so no other
	// rule fires (spread 10%, no SL/TP breach).
	base := time.Now()
	m.SetClock(func() time.Time { return base.Add(2 * time.Hour) })

	now := base.Add(2 * time.Hour)
	ref := quoteMap(now, map[string]float64{"BTC/USDT": 100})
	cmp := quoteMap(now, map[string]float64{"BTC/USDT": 110})

	closed, err := m.Evaluate(context.Background(), pos, ref, cmp)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !closed {
		t.Fatal("Evaluate() closed = false, want max-hold close")
	}
	last := rec.events[len(rec.events)-1]
	if last.Reason != domain.CloseReasonMaxHold {
		t.Errorf("close reason = %v, want max_hold", last.Reason)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}}
	st := &fakeStats{}
	m := newTestManager(gw, st, nil, defaultLimits())

	pos := openTestPosition(t, m, gw, "BTC/USDT")

	// Neutral market: spread 10%, no SL/TP breach, fresh quotes, young hold.
	now := time.Now()
	ref := quoteMap(now, map[string]float64{"BTC/USDT": 100})
	cmp := quoteMap(now, map[string]float64{"BTC/USDT": 110})

	before := *pos
	for i := 0; i < 2; i++ {
		closed, err := m.Evaluate(context.Background(), pos, ref, cmp)
		if err != nil {
			t.Fatalf("Evaluate() #%d error = %v", i+1, err)
		}
		if closed {
			t.Fatalf("Evaluate() #%d closed the position with no qualifying condition", i+1)
		}
	}
	if gw.closeCalls != 0 {
		t.Errorf("gateway close calls = %d, want 0", gw.closeCalls)
	}
	if *pos != before {
		t.Errorf("position mutated by no-op evaluation: %+v -> %+v", before, *pos)
	}
	if len(st.closePnL) != 0 {
		t.Errorf("RecordClose calls = %d, want 0", len(st.closePnL))
	}
}

func TestClose_FailureRetainsPosition(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 1000}}
	st := &fakeStats{}
	m := newTestManager(gw, st, nil, defaultLimits())

	pos := openTestPosition(t, m, gw, "BTC/USDT")
	gw.closeErr = errors.New("venue unavailable")

	now := time.Now()
	ref := quoteMap(now, map[string]float64{"BTC/USDT": 100})
	cmp := quoteMap(now, map[string]float64{"BTC/USDT": 98.8}) // converged, wants close

	closed, err := m.Evaluate(context.Background(), pos, ref, cmp)
	if err == nil {
		t.Fatal("Evaluate() error = nil, want close failure")
	}
	if closed {
		t.Fatal("Evaluate() closed = true despite gateway failure")
	}
	if m.OpenCount() != 1 {
		t.Fatalf("OpenCount() = %d, want 1 (position retained on failed close)", m.OpenCount())
	}
	if pos.Status != domain.PositionStatusOpen {
		t.Errorf("Status = %v, want open (reverted from closing)", pos.Status)
	}
	if len(st.closePnL) != 0 {
		t.Errorf("RecordClose calls = %d, want 0 (no PnL on failed close)", len(st.closePnL))
	}

	// Next tick: the venue recovers and the retry succeeds. PnL is counted
	// exactly once.
	gw.closeErr = nil
	gw.closeFill = domain.Fill{Price: 100}
	closed, err = m.Evaluate(context.Background(), pos, ref, cmp)
	if err != nil {
		t.Fatalf("retry Evaluate() error = %v", err)
	}
	if !closed {
		t.Fatal("retry Evaluate() closed = false, want true")
	}
	if m.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0 after retried close", m.OpenCount())
	}
	if len(st.closePnL) != 1 {
		t.Errorf("RecordClose calls = %d, want exactly 1", len(st.closePnL))
	}
}

func TestCloseAll(t *testing.T) {
	gw := &fakeGateway{balance: domain.Balance{Free: 10000}, openFill: domain.Fill{Price: 100}, closeFill: domain.Fill{Price: 100}}
	rec := &captureRecorder{}
	m := newTestManager(gw, &fakeStats{}, rec, defaultLimits())

	ctx := context.Background()
	for _, sym := range []string{"AAA/USDT", "BBB/USDT", "CCC/USDT"} {
		if err := m.ConsiderEntry(ctx, opp(sym, 100, 110)); err != nil {
			t.Fatalf("ConsiderEntry(%s) error = %v", sym, err)
		}
	}
	if m.OpenCount() != 3 {
		t.Fatalf("OpenCount() = %d, want 3", m.OpenCount())
	}

	m.CloseAll(ctx, quoteMap(time.Now(), map[string]float64{
		"AAA/USDT": 100, "BBB/USDT": 100, "CCC/USDT": 100,
	}))

	if m.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0 after CloseAll", m.OpenCount())
	}
	shutdowns := 0
	for _, ev := range rec.events {
		if ev.Type == domain.TradeEventClose && ev.Reason == domain.CloseReasonShutdown {
			shutdowns++
		}
	}
	if shutdowns != 3 {
		t.Errorf("shutdown close events = %d, want 3", shutdowns)
	}
}
