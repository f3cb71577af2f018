package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examwright/examwright/internal/model"
)

func out(total float64) model.GraderOutput {
	return model.GraderOutput{TotalScore: total}
}

func TestAggregate_LengthTwo(t *testing.T) {
	final, err := Aggregate([]model.GraderOutput{out(8.0), out(8.0)})
	require.NoError(t, err)
	assert.Equal(t, 8.0, final)
}

func TestAggregate_LengthThree_ClosestPair(t *testing.T) {
	// S2: totals 3.0 / 7.0 / arbiter 4.5 -> sorted (3, 4.5, 7),
	// lowerGap 1.5 < upperGap 2.5 -> mean of lower pair = 3.75.
	final, err := Aggregate([]model.GraderOutput{out(3.0), out(7.0), out(4.5)})
	require.NoError(t, err)
	assert.InDelta(t, 3.75, final, 1e-9)
}

func TestAggregate_LengthThree_TieBreaksUpper(t *testing.T) {
	// S3: 4.0 / 8.0 / arbiter 6.0 -> sorted (4, 6, 8), gaps equal (2, 2)
	// -> upper pair -> (6+8)/2 = 7.0.
	final, err := Aggregate([]model.GraderOutput{out(4.0), out(8.0), out(6.0)})
	require.NoError(t, err)
	assert.Equal(t, 7.0, final)
}

func TestAggregate_PermutationInvariant(t *testing.T) {
	a, b, c := out(3.0), out(7.0), out(4.5)
	perms := [][]model.GraderOutput{
		{a, b, c}, {b, a, c}, {c, a, b}, {c, b, a},
	}
	var want float64
	for i, p := range perms {
		final, err := Aggregate(p)
		require.NoError(t, err)
		if i == 0 {
			want = final
		}
		assert.Equal(t, want, final)
	}
}

func TestAggregate_InvalidLength(t *testing.T) {
	_, err := Aggregate([]model.GraderOutput{out(1.0)})
	assert.Error(t, err)
}

func TestAggregate_ClampsIntoRange(t *testing.T) {
	final, err := Aggregate([]model.GraderOutput{out(9.9), out(9.9)})
	require.NoError(t, err)
	assert.LessOrEqual(t, final, 10.0)
}
