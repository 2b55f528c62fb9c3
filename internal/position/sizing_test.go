package position

import (
	"math"
	"testing"
)

func TestFixedNotionalSizer(t *testing.T) {
	s := FixedNotionalSizer{NotionalUSD: 100}

	tests := []struct {
		name     string
		refPrice float64
		free     float64
		want     float64
	}{
		{"btc scale", 50000, 10000, 0.002},
		{"unit price", 100, 10000, 1},
		{"free balance ignored", 100, 1, 1},
		{"zero price", 0, 10000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Size(tt.refPrice, tt.free)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Size(%v, %v) = %v, want %v", tt.refPrice, tt.free, got, tt.want)
			}
		})
	}
}

func TestRiskFractionSizer(t *testing.T) {
	s := RiskFractionSizer{Fraction: 0.1, MaxNotionalUSD: 500}

	tests := []struct {
		name     string
		refPrice float64
		free     float64
		want     float64
	}{
		{"fraction binds", 100, 1000, 1},    // 10% of 1000 = 100 USD -> 1 unit
		{"cap binds", 100, 100000, 5},       // 10% of 100000 = 10000, capped at 500 -> 5 units
		{"zero balance", 100, 0, 0},
		{"zero price", 0, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Size(tt.refPrice, tt.free)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Size(%v, %v) = %v, want %v", tt.refPrice, tt.free, got, tt.want)
			}
		})
	}
}

func TestNewSizer(t *testing.T) {
	s, err := NewSizer("fixed_notional", 250, 0, 0)
	if err != nil {
		t.Fatalf("NewSizer(fixed_notional) error = %v", err)
	}
	if s.Name() != "fixed_notional" {
		t.Errorf("Name() = %q, want fixed_notional", s.Name())
	}

	s, err = NewSizer("risk_fraction", 0, 0.05, 1000)
	if err != nil {
		t.Fatalf("NewSizer(risk_fraction) error = %v", err)
	}
	if s.Name() != "risk_fraction" {
		t.Errorf("Name() = %q, want risk_fraction", s.Name())
	}

	if _, err := NewSizer("martingale", 0, 0, 0); err == nil {
		t.Error("NewSizer(martingale) error = nil, want unknown policy error")
	}
}
