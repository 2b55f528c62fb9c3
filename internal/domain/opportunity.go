package domain

import "time"

// Side is the exposure direction taken on the reference venue.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opportunity is a detected, not-yet-acted-upon tradable spread between the
// two venues. Opportunities never survive past the tick that produced them.
type Opportunity struct {
	Symbol          string
	ReferencePrice  float64
	ComparisonPrice float64
	SpreadPercent   float64
	Direction       Side
	DetectedAt      time.Time
}
