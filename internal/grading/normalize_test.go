package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examwright/examwright/internal/model"
)

func twoCriterionRubric() []model.RubricCriterion {
	return []model.RubricCriterion{
		{Name: "correctness", Weight: 6, MaxScore: 6},
		{Name: "clarity", Weight: 4, MaxScore: 4},
	}
}

func TestNormalize_SequenceCriterionScores(t *testing.T) {
	content := `{"reasoning":"solid answer","criterion_scores":[{"criterion_name":"correctness","score":5,"feedback":"ok"},{"criterion_name":"clarity","score":3,"feedback":"ok"}],"total_score":8,"feedback_text":"good"}`
	out, warnings, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, model.RoleGraderA, out.Role)
	assert.Equal(t, 8.0, out.TotalScore)
}

func TestNormalize_MappingCriterionScores(t *testing.T) {
	content := `{"reasoning":"solid answer","criterion_scores":{"correctness":5,"clarity":3},"total_score":8,"feedback_text":"good"}`
	out, _, err := Normalize(model.RoleGraderB, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	assert.Equal(t, 8.0, out.TotalScore)
	assert.Equal(t, model.RoleGraderB, out.Role)
}

func TestNormalize_ReasoningAsList(t *testing.T) {
	content := `{"reasoning":["step one","step two"],"criterion_scores":[{"criterion_name":"correctness","score":5},{"criterion_name":"clarity","score":3}],"total_score":8}`
	out, _, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	assert.Equal(t, "step one\nstep two", out.Reasoning)
}

func TestNormalize_ScaleDetection(t *testing.T) {
	// S4: model returns (0.5, 0.3) against max_scores (6, 4); expected
	// normalized (5.0, 3.0), total 8.0.
	content := `{"reasoning":"solid answer","criterion_scores":[{"criterion_name":"correctness","score":0.5},{"criterion_name":"clarity","score":0.3}],"total_score":0.8}`
	out, warnings, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
	assert.InDelta(t, 5.0, out.CriterionScores[0].Score, 1e-9)
	assert.InDelta(t, 3.0, out.CriterionScores[1].Score, 1e-9)
	assert.InDelta(t, 8.0, out.TotalScore, 1e-9)
}

func TestNormalize_ScaleDetectionIdempotent(t *testing.T) {
	// Already-scaled output (5, 3) must not be rescaled again.
	content := `{"reasoning":"solid answer","criterion_scores":[{"criterion_name":"correctness","score":5},{"criterion_name":"clarity","score":3}],"total_score":8}`
	out, _, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, out.TotalScore, 1e-9)
}

func TestNormalize_ScaleHeuristicDisabled(t *testing.T) {
	content := `{"reasoning":"solid answer","criterion_scores":[{"criterion_name":"correctness","score":0.5},{"criterion_name":"clarity","score":0.3}],"total_score":0.8}`
	out, warnings, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), true)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.InDelta(t, 0.5, out.CriterionScores[0].Score, 1e-9)
}

func TestNormalize_MissingCriterionDefaultsToZero(t *testing.T) {
	content := `{"reasoning":"solid answer","criterion_scores":[{"criterion_name":"correctness","score":5}],"total_score":5}`
	out, warnings, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	require.Len(t, out.CriterionScores, 2)
	assert.Equal(t, "clarity", out.CriterionScores[1].CriterionName)
	assert.Equal(t, 0.0, out.CriterionScores[1].Score)
	assert.NotEmpty(t, warnings)
}

func TestNormalize_UnknownCriterionDropped(t *testing.T) {
	content := `{"reasoning":"solid answer","criterion_scores":[{"criterion_name":"correctness","score":5},{"criterion_name":"clarity","score":3},{"criterion_name":"bogus","score":9}],"total_score":17}`
	out, warnings, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	assert.Len(t, out.CriterionScores, 2)
	assert.InDelta(t, 8.0, out.TotalScore, 1e-9)
	found := false
	for _, w := range warnings {
		if w == `unknown criterion "bogus" in model output, dropped` {
			found = true
		}
	}
	assert.True(t, found)
}

func TestNormalize_TotalClampedIntoRange(t *testing.T) {
	content := `{"reasoning":"solid answer","criterion_scores":[{"criterion_name":"correctness","score":6},{"criterion_name":"clarity","score":4}],"total_score":10}`
	out, _, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	assert.LessOrEqual(t, out.TotalScore, 10.0)
}

func TestNormalize_FreeTextFallbackRecoversScore(t *testing.T) {
	content := "I could not produce JSON, but I'd give this a 7.5 out of 10."
	out, warnings, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	assert.Equal(t, 7.5, out.TotalScore)
	assert.NotEmpty(t, warnings)
}

func TestNormalize_FreeTextWithNoNumberFails(t *testing.T) {
	content := "I refuse to grade this answer."
	_, _, err := Normalize(model.RoleGraderA, content, twoCriterionRubric(), false)
	assert.Error(t, err)
}

func TestNormalize_RoleStampOverridesModelOutput(t *testing.T) {
	content := `{"reasoning":"solid answer","criterion_scores":[{"criterion_name":"correctness","score":5},{"criterion_name":"clarity","score":3}],"total_score":8,"role":"GRADER_B"}`
	out, _, err := Normalize(model.RoleArbiter, content, twoCriterionRubric(), false)
	require.NoError(t, err)
	assert.Equal(t, model.RoleArbiter, out.Role)
}
