package award

import (
	"math"

	"github.com/roach88/earworm/internal/rules"
)

// floorTolerance absorbs binary representation error in base*fraction
// (e.g. 0.29*100 = 28.999999999999996) before flooring.
const floorTolerance = 1e-9

// Award is the penalty breakdown for one completion.
type Award struct {
	BasePoints   int     `json:"basePoints"`
	ForwardSeeks int     `json:"forwardSeeks"`
	PeakRate     float64 `json:"peakRate"`

	ForwardPenalty    float64 `json:"forwardPenalty"`
	RatePenalty       float64 `json:"ratePenalty"`
	DeductionFraction float64 `json:"deductionFraction"`

	PenaltyPoints   int `json:"penaltyPoints"`
	EffectivePoints int `json:"effectivePoints"`
}

// Compute applies the forward-seek and rate penalties to basePoints.
// Fractions add linearly and cap at 1, so PenaltyPoints never exceeds
// BasePoints and EffectivePoints is never negative.
func Compute(tbl rules.Table, basePoints, forwardSeeks int, peakRate float64) Award {
	if basePoints < 0 {
		basePoints = 0
	}
	if forwardSeeks < 0 {
		forwardSeeks = 0
	}

	a := Award{
		BasePoints:   basePoints,
		ForwardSeeks: forwardSeeks,
		PeakRate:     peakRate,
	}

	if tbl.DeductOnForwardSeek {
		a.ForwardPenalty = math.Min(1, float64(forwardSeeks)*tbl.ForwardSeekPenaltyPct)
	}
	a.RatePenalty = tbl.RatePenaltyFor(peakRate)
	a.DeductionFraction = math.Min(1, a.ForwardPenalty+a.RatePenalty)

	a.PenaltyPoints = int(math.Floor(float64(basePoints)*a.DeductionFraction + floorTolerance))
	if a.PenaltyPoints > basePoints {
		a.PenaltyPoints = basePoints
	}
	a.EffectivePoints = basePoints - a.PenaltyPoints
	if a.EffectivePoints < 0 {
		a.EffectivePoints = 0
	}
	return a
}

// ProjectedPoints is the live counter shown while a track plays: the share
// of base points matching the progress so far, before penalties.
func ProjectedPoints(basePoints int, pct float64) int {
	if basePoints <= 0 || math.IsNaN(pct) {
		return 0
	}
	pct = math.Max(0, math.Min(100, pct))
	return int(math.Floor(pct / 100 * float64(basePoints)))
}
