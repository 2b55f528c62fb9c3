package position

import "fmt"

// Sizer converts a reference-venue price and the currently free balance into
// a position size. Both policies are pure so they can be swapped per run via
// configuration.
type Sizer interface {
	// Size returns the position size in base units. A non-positive return
	// means the entry should be skipped.
	Size(refPrice, freeBalance float64) float64
	Name() string
}

// FixedNotionalSizer always targets the same dollar exposure.
type FixedNotionalSizer struct {
	NotionalUSD float64
}

func (s FixedNotionalSizer) Size(refPrice, _ float64) float64 {
	if refPrice <= 0 {
		return 0
	}
	return s.NotionalUSD / refPrice
}

func (s FixedNotionalSizer) Name() string { return "fixed_notional" }

// RiskFractionSizer risks a fraction of the free balance, capped at a maximum
// notional.
type RiskFractionSizer struct {
	Fraction       float64
	MaxNotionalUSD float64
}

func (s RiskFractionSizer) Size(refPrice, freeBalance float64) float64 {
	if refPrice <= 0 {
		return 0
	}
	notional := freeBalance * s.Fraction
	if notional > s.MaxNotionalUSD {
		notional = s.MaxNotionalUSD
	}
	return notional / refPrice
}

func (s RiskFractionSizer) Name() string { return "risk_fraction" }

// NewSizer builds the Sizer named by policy.
func NewSizer(policy string, notionalUSD, fraction, maxNotionalUSD float64) (Sizer, error) {
	switch policy {
	case "fixed_notional":
		return FixedNotionalSizer{NotionalUSD: notionalUSD}, nil
	case "risk_fraction":
		return RiskFractionSizer{Fraction: fraction, MaxNotionalUSD: maxNotionalUSD}, nil
	default:
		return nil, fmt.Errorf("position: unknown sizing policy %q", policy)
	}
}
