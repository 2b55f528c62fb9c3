// Package position owns the open-position set: entry admission, risk-based
// exit evaluation, and realized PnL reconciliation. The manager is the only
// component allowed to call the order gateway.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/crossarb/internal/domain"
)

// Limits is the immutable per-run risk configuration.
type Limits struct {
	MaxPositions        int
	Leverage            int
	StopLossPercent     float64
	TakeProfitPercent   float64
	TargetSpreadPercent float64
	MaxHoldDuration     time.Duration
	MaxQuoteAge         time.Duration
	FeeRate             float64
	MaxDailyLoss        float64 // 0 disables the daily loss guard
}

// StatsRecorder receives position lifecycle counters. Implemented by the
// stats aggregator.
type StatsRecorder interface {
	RecordOpen()
	RecordClose(pnl float64)
	DailyPnL() float64
}

// Manager is the sole owner of the open-position map. It is driven by the
// scheduler from a single goroutine; per the engine's cooperative scheduling
// model no entry or exit for the same symbol can ever interleave within a
// tick, so the map needs no locking.
type Manager struct {
	gateway  domain.OrderGateway
	sizer    Sizer
	limits   Limits
	stats    StatsRecorder
	recorder domain.TradeRecorder
	logger   *slog.Logger

	open map[string]*domain.Position
	now  func() time.Time
}

// NewManager creates a Manager. recorder may be nil when no event sink is
// wired.
func NewManager(gateway domain.OrderGateway, sizer Sizer, limits Limits, stats StatsRecorder, recorder domain.TradeRecorder, logger *slog.Logger) *Manager {
	return &Manager{
		gateway:  gateway,
		sizer:    sizer,
		limits:   limits,
		stats:    stats,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "position_manager")),
		open:     make(map[string]*domain.Position),
		now:      time.Now,
	}
}

// SetClock overrides the manager's clock. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// OpenCount returns the number of currently open positions.
func (m *Manager) OpenCount() int { return len(m.open) }

// Get returns the open position for symbol, if any.
func (m *Manager) Get(symbol string) (*domain.Position, bool) {
	p, ok := m.open[symbol]
	return p, ok
}

// Symbols returns the open-position symbols in sorted order.
func (m *Manager) Symbols() []string {
	syms := make([]string, 0, len(m.open))
	for s := range m.open {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// ConsiderEntry runs the admission pipeline for one opportunity. All skip
// outcomes (duplicate symbol, position cap, daily loss limit, sizing,
// insufficient balance) are logged and return nil; only a gateway rejection
// surfaces as an error, and even then no position is created and no counter
// is touched.
func (m *Manager) ConsiderEntry(ctx context.Context, opp domain.Opportunity) error {
	log := m.logger.With(slog.String("symbol", opp.Symbol))

	if _, exists := m.open[opp.Symbol]; exists {
		log.DebugContext(ctx, "position already open, skipping entry")
		return nil
	}
	if len(m.open) >= m.limits.MaxPositions {
		log.DebugContext(ctx, "max positions reached, skipping entry",
			slog.Int("open", len(m.open)),
			slog.Int("max", m.limits.MaxPositions),
		)
		return nil
	}
	if m.limits.MaxDailyLoss > 0 && m.stats.DailyPnL() <= -m.limits.MaxDailyLoss {
		log.WarnContext(ctx, "daily loss limit reached, skipping entry",
			slog.Float64("daily_pnl", m.stats.DailyPnL()),
			slog.Float64("limit", m.limits.MaxDailyLoss),
		)
		return nil
	}

	bal, err := m.gateway.Balance(ctx)
	if err != nil {
		log.WarnContext(ctx, "balance unavailable, skipping entry",
			slog.String("error", err.Error()),
		)
		return nil
	}

	size := m.sizer.Size(opp.ReferencePrice, bal.Free)
	if size <= 0 {
		log.WarnContext(ctx, "sizing produced no exposure, skipping entry",
			slog.String("policy", m.sizer.Name()),
			slog.Float64("free_balance", bal.Free),
		)
		return nil
	}
	margin := size * opp.ReferencePrice / float64(m.limits.Leverage)
	if bal.Free < margin {
		log.WarnContext(ctx, "insufficient balance, skipping entry",
			slog.Float64("free_balance", bal.Free),
			slog.Float64("required_margin", margin),
		)
		return nil
	}

	fill, err := m.gateway.Open(ctx, opp.Symbol, opp.Direction, size)
	if err != nil {
		log.ErrorContext(ctx, "gateway rejected open",
			slog.String("side", string(opp.Direction)),
			slog.Float64("size", size),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("position: open %s: %w", opp.Symbol, err)
	}

	entry := fill.Price
	if entry <= 0 {
		entry = opp.ReferencePrice
	}

	var stop, take float64
	switch opp.Direction {
	case domain.SideLong:
		stop = entry * (1 - m.limits.StopLossPercent/100)
		take = entry * (1 + m.limits.TakeProfitPercent/100)
	case domain.SideShort:
		stop = entry * (1 + m.limits.StopLossPercent/100)
		take = entry * (1 - m.limits.TakeProfitPercent/100)
	}

	pos := &domain.Position{
		ID:              uuid.NewString(),
		Symbol:          opp.Symbol,
		Side:            opp.Direction,
		Size:            size,
		EntryPrice:      entry,
		EntrySpread:     opp.SpreadPercent,
		EntryTime:       m.now(),
		TargetSpread:    m.limits.TargetSpreadPercent,
		StopLossPrice:   stop,
		TakeProfitPrice: take,
		Status:          domain.PositionStatusOpen,
	}
	m.open[opp.Symbol] = pos
	m.stats.RecordOpen()

	m.emit(ctx, domain.TradeEvent{
		ID:            uuid.NewString(),
		Type:          domain.TradeEventOpen,
		PositionID:    pos.ID,
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		Size:          pos.Size,
		Price:         pos.EntryPrice,
		SpreadPercent: pos.EntrySpread,
		At:            pos.EntryTime,
	})

	log.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("side", string(pos.Side)),
		slog.Float64("size", pos.Size),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("entry_spread_pct", pos.EntrySpread),
		slog.Float64("stop_loss", pos.StopLossPrice),
		slog.Float64("take_profit", pos.TakeProfitPrice),
	)
	return nil
}

// Evaluate checks one open position against the exit rules and closes it when
// the first rule matches. It returns whether the position was closed. With no
// qualifying condition the call mutates nothing and makes no gateway call, so
// repeated evaluation within a tick is harmless.
func (m *Manager) Evaluate(ctx context.Context, pos *domain.Position, ref, cmp map[string]domain.Quote) (bool, error) {
	reason, ok := m.exitReason(pos, ref, cmp)
	if !ok {
		return false, nil
	}
	if err := m.closePosition(ctx, pos, reason, ref); err != nil {
		return false, err
	}
	return true, nil
}

// EvaluateExits runs exit evaluation once over every open position. A failed
// close retains the position for retry on the next tick and never blocks the
// evaluation of other symbols.
func (m *Manager) EvaluateExits(ctx context.Context, ref, cmp map[string]domain.Quote) {
	for _, symbol := range m.Symbols() {
		pos := m.open[symbol]
		if _, err := m.Evaluate(ctx, pos, ref, cmp); err != nil {
			m.logger.WarnContext(ctx, "close failed, retaining position for retry",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// CloseAll force-closes every open position. Used by the shutdown routine.
// Positions whose close fails remain tracked so exposure is never silently
// dropped.
func (m *Manager) CloseAll(ctx context.Context, ref map[string]domain.Quote) {
	for _, symbol := range m.Symbols() {
		pos := m.open[symbol]
		if err := m.closePosition(ctx, pos, domain.CloseReasonShutdown, ref); err != nil {
			m.logger.ErrorContext(ctx, "shutdown close failed, exposure remains",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// exitReason applies the exit rules in their fixed priority and returns the
// first that matches:
//
//  1. missing or stale quote on either venue (fail-safe exit)
//  2. spread converged to the target
//  3. stop-loss breached on the reference price
//  4. take-profit reached on the reference price
//  5. held longer than the maximum hold duration
func (m *Manager) exitReason(pos *domain.Position, ref, cmp map[string]domain.Quote) (domain.CloseReason, bool) {
	now := m.now()

	refQ, refOK := ref[pos.Symbol]
	cmpQ, cmpOK := cmp[pos.Symbol]
	if !refOK || !cmpOK || refQ.Stale(now, m.limits.MaxQuoteAge) || cmpQ.Stale(now, m.limits.MaxQuoteAge) {
		return domain.CloseReasonQuoteUnavailable, true
	}

	if domain.SpreadPercent(refQ.Price, cmpQ.Price) <= pos.TargetSpread {
		return domain.CloseReasonSpreadConverged, true
	}

	switch pos.Side {
	case domain.SideLong:
		if refQ.Price <= pos.StopLossPrice {
			return domain.CloseReasonStopLoss, true
		}
		if refQ.Price >= pos.TakeProfitPrice {
			return domain.CloseReasonTakeProfit, true
		}
	case domain.SideShort:
		if refQ.Price >= pos.StopLossPrice {
			return domain.CloseReasonStopLoss, true
		}
		if refQ.Price <= pos.TakeProfitPrice {
			return domain.CloseReasonTakeProfit, true
		}
	}

	if now.Sub(pos.EntryTime) > m.limits.MaxHoldDuration {
		return domain.CloseReasonMaxHold, true
	}

	return "", false
}

// closePosition asks the gateway to flatten the position and, on success,
// reconciles realized PnL, updates statistics, and removes the position. On
// gateway failure the position reverts to Open and stays tracked; PnL is
// counted exactly once, on the successful close.
func (m *Manager) closePosition(ctx context.Context, pos *domain.Position, reason domain.CloseReason, ref map[string]domain.Quote) error {
	log := m.logger.With(
		slog.String("symbol", pos.Symbol),
		slog.String("position_id", pos.ID),
		slog.String("reason", string(reason)),
	)

	pos.Status = domain.PositionStatusClosing
	fill, err := m.gateway.Close(ctx, pos.Symbol)
	if err != nil {
		pos.Status = domain.PositionStatusOpen
		return fmt.Errorf("position: close %s: %w", pos.Symbol, err)
	}

	exit := fill.Price
	if exit <= 0 {
		if q, ok := ref[pos.Symbol]; ok && q.Price > 0 {
			exit = q.Price
		} else {
			// No exit price anywhere: settle at entry so only fees hit PnL.
			exit = pos.EntryPrice
		}
	}

	leverage := float64(m.limits.Leverage)
	var pnl float64
	switch pos.Side {
	case domain.SideLong:
		pnl = (exit - pos.EntryPrice) * pos.Size * leverage
	case domain.SideShort:
		pnl = (pos.EntryPrice - exit) * pos.Size * leverage
	}
	fee := pos.EntryPrice * pos.Size * m.limits.FeeRate * 2
	pnl -= fee

	pos.Status = domain.PositionStatusClosed
	delete(m.open, pos.Symbol)
	m.stats.RecordClose(pnl)

	m.emit(ctx, domain.TradeEvent{
		ID:            uuid.NewString(),
		Type:          domain.TradeEventClose,
		PositionID:    pos.ID,
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		Size:          pos.Size,
		Price:         exit,
		SpreadPercent: pos.EntrySpread,
		PnL:           pnl,
		Fee:           fee,
		Reason:        reason,
		At:            m.now(),
	})

	log.InfoContext(ctx, "position closed",
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("exit_price", exit),
		slog.Float64("size", pos.Size),
		slog.Float64("pnl", pnl),
		slog.Float64("fee", fee),
	)
	return nil
}

func (m *Manager) emit(ctx context.Context, ev domain.TradeEvent) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(ctx, ev); err != nil {
		m.logger.WarnContext(ctx, "trade event record failed",
			slog.String("event_id", ev.ID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}
