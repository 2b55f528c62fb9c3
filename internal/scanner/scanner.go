// Package scanner detects tradable spreads between the reference and
// comparison venues. Scanning is a pure computation over one tick's quote
// maps: no side effects, no position awareness.
package scanner

import (
	"log/slog"
	"time"

	"github.com/mkravets/crossarb/internal/domain"
)

// Config holds the scanner thresholds.
type Config struct {
	MinSpreadPercent float64
}

// Scanner computes per-symbol spread and direction from a pair of quote maps.
type Scanner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Scanner.
func New(cfg Config, logger *slog.Logger) *Scanner {
	return &Scanner{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// Scan emits an Opportunity for every symbol quoted on BOTH venues whose
// spread meets the minimum threshold. Symbols are visited in the order given,
// so the result ordering is deterministic. A symbol missing from either map
// is silently skipped.
//
// The spread denominator is always the reference-venue price. direction is
// long when the reference venue is cheaper, short when it is dearer.
func (s *Scanner) Scan(ref, cmp map[string]domain.Quote, symbols []string, now time.Time) []domain.Opportunity {
	var opps []domain.Opportunity
	for _, symbol := range symbols {
		refQ, ok := ref[symbol]
		if !ok {
			continue
		}
		cmpQ, ok := cmp[symbol]
		if !ok {
			continue
		}
		if refQ.Price <= 0 || cmpQ.Price <= 0 {
			continue
		}

		spread := domain.SpreadPercent(refQ.Price, cmpQ.Price)
		if spread < s.cfg.MinSpreadPercent {
			continue
		}

		direction := domain.SideShort
		if refQ.Price < cmpQ.Price {
			direction = domain.SideLong
		}

		opps = append(opps, domain.Opportunity{
			Symbol:          symbol,
			ReferencePrice:  refQ.Price,
			ComparisonPrice: cmpQ.Price,
			SpreadPercent:   spread,
			Direction:       direction,
			DetectedAt:      now,
		})

		s.logger.Debug("opportunity detected",
			slog.String("symbol", symbol),
			slog.Float64("ref_price", refQ.Price),
			slog.Float64("cmp_price", cmpQ.Price),
			slog.Float64("spread_pct", spread),
			slog.String("direction", string(direction)),
		)
	}
	return opps
}
