// Package divergence implements the pure Divergence Evaluator.
package divergence

import (
	"math"

	"github.com/examwright/examwright/internal/model"
)

// Evaluate compares two grader totals against threshold and returns the
// Divergence Report. If either total is missing (represented by NaN),
// gap is set to +Inf, forcing arbitration.
func Evaluate(a, b model.GraderOutput, threshold float64) model.DivergenceReport {
	gap := math.Abs(a.TotalScore - b.TotalScore)
	if math.IsNaN(a.TotalScore) || math.IsNaN(b.TotalScore) {
		gap = math.Inf(1)
	}
	return model.DivergenceReport{
		Gap:                 gap,
		Threshold:           threshold,
		ArbitrationRequired: gap > threshold,
	}
}
