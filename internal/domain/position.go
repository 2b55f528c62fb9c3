package domain

import "time"

// PositionStatus tracks the position lifecycle. Valid transitions are
// Open -> Closing -> Closed; a failed close reverts Closing -> Open.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosing PositionStatus = "closing"
	PositionStatusClosed  PositionStatus = "closed"
)

// Position is tracked open exposure on the reference venue awaiting a
// convergence or risk-based exit. Positions are created, mutated, and removed
// exclusively by the position manager.
type Position struct {
	ID              string
	Symbol          string
	Side            Side
	Size            float64
	EntryPrice      float64
	EntrySpread     float64 // spread percent at entry
	EntryTime       time.Time
	TargetSpread    float64 // convergence exit threshold, percent
	StopLossPrice   float64
	TakeProfitPrice float64
	Status          PositionStatus
}

// Notional returns the dollar exposure before leverage.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.Size
}
