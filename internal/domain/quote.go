// Package domain defines the core types and collaborator contracts shared by
// every component of the arbitrage engine.
package domain

import "time"

// Quote is a single price observation for one symbol on one venue. Quotes are
// ephemeral: they are produced fresh each tick or served from a short-TTL
// cache owned by the quote source.
type Quote struct {
	Symbol      string
	Price       float64
	Timestamp   time.Time
	SourceCount int // number of upstream sources aggregated into this price
}

// Stale reports whether the quote is older than maxAge at the given instant.
// A non-positive maxAge disables the staleness check.
func (q Quote) Stale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(q.Timestamp) > maxAge
}

// SpreadPercent returns the percentage spread between a reference-venue price
// and a comparison-venue price. The denominator is always the reference
// price; the formula is intentionally asymmetric and must not be replaced by
// a mid-price variant.
func SpreadPercent(refPrice, cmpPrice float64) float64 {
	diff := refPrice - cmpPrice
	if diff < 0 {
		diff = -diff
	}
	return diff / refPrice * 100
}
