// Package consensus implements the pure Consensus Aggregator: mean of
// two for the unanimous case, mean of the two closest among three when
// the arbiter was invoked.
package consensus

import (
	"fmt"
	"sort"

	"github.com/examwright/examwright/internal/model"
)

// Aggregate computes the final grade from an ordered sequence of 2 or 3
// grader outputs, clamped into [0,10]. Any other length is an internal
// invariant violation.
func Aggregate(outputs []model.GraderOutput) (float64, error) {
	switch len(outputs) {
	case 2:
		final := (outputs[0].TotalScore + outputs[1].TotalScore) / 2
		return clamp(final), nil
	case 3:
		return aggregateThree(outputs), nil
	default:
		return 0, fmt.Errorf("consensus: expected 2 or 3 grader outputs, got %d", len(outputs))
	}
}

func aggregateThree(outputs []model.GraderOutput) float64 {
	totals := []float64{outputs[0].TotalScore, outputs[1].TotalScore, outputs[2].TotalScore}
	sort.Float64s(totals)
	s0, s1, s2 := totals[0], totals[1], totals[2]

	lowerGap := s1 - s0
	upperGap := s2 - s1

	var final float64
	if lowerGap < upperGap {
		final = (s0 + s1) / 2
	} else {
		// Ties (lowerGap == upperGap) break toward the upper pair.
		final = (s1 + s2) / 2
	}
	return clamp(final)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
