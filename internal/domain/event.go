package domain

import "time"

// TradeEventType distinguishes position open and close events.
type TradeEventType string

const (
	TradeEventOpen  TradeEventType = "position_opened"
	TradeEventClose TradeEventType = "position_closed"
)

// CloseReason records which exit rule triggered a position close.
type CloseReason string

const (
	CloseReasonQuoteUnavailable CloseReason = "quote_unavailable"
	CloseReasonSpreadConverged  CloseReason = "spread_converged"
	CloseReasonStopLoss         CloseReason = "stop_loss"
	CloseReasonTakeProfit       CloseReason = "take_profit"
	CloseReasonMaxHold          CloseReason = "max_hold"
	CloseReasonShutdown         CloseReason = "shutdown"
)

// TradeEvent is the typed open/close record emitted by the position manager.
// Serialization and storage are the collaborators' responsibility; the core
// only emits these values.
type TradeEvent struct {
	ID            string
	Type          TradeEventType
	PositionID    string
	Symbol        string
	Side          Side
	Size          float64
	Price         float64 // entry price for opens, exit price for closes
	SpreadPercent float64 // spread at entry for opens, at exit for closes
	PnL           float64 // realized PnL net of fees, closes only
	Fee           float64 // round-trip fee estimate, closes only
	Reason        CloseReason
	At            time.Time
}
