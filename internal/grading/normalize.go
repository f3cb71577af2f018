package grading

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/examwright/examwright/internal/model"
)

// rawOutput mirrors the Grader Output schema but with loosely-typed
// fields, since the model may return reasoning as a list of steps or
// criterion_scores as a mapping instead of a sequence.
type rawOutput struct {
	Reasoning       json.RawMessage `json:"reasoning"`
	CriterionScores json.RawMessage `json:"criterion_scores"`
	TotalScore      *float64        `json:"total_score"`
	FeedbackText    string          `json:"feedback_text"`
	Confidence      *float64        `json:"confidence"`
}

type rawCriterionScore struct {
	CriterionName string  `json:"criterion_name"`
	Score         float64 `json:"score"`
	Feedback      string  `json:"feedback"`
}

var numericFallback = regexp.MustCompile(`-?\d+(\.\d+)?`)

// Normalize runs the 7-step normalization pipeline over the raw model
// response content, producing a model.GraderOutput stamped with role.
// It does not call Validate on the result; Evaluate does that. rubric is
// used to reconcile criterion names (step 7).
func Normalize(role model.Role, content string, rubric []model.RubricCriterion, disableScaleHeuristic bool) (model.GraderOutput, []string, error) {
	var warnings []string

	raw, parseErr := parseStructured(content)
	if parseErr != nil {
		// Step 1, last resort: recover a numeric score from free text.
		total, ok := recoverNumericScore(content)
		if !ok {
			return model.GraderOutput{}, warnings, fmt.Errorf("grading: output malformed, no structured or numeric content recoverable: %w", parseErr)
		}
		warnings = append(warnings, "free-text fallback: recovered numeric score from unstructured output")
		out := model.GraderOutput{
			Role:         role,
			Reasoning:    content,
			FeedbackText: "model did not return structured output; score recovered from free text",
			TotalScore:   clampTotal(total),
		}
		return out, warnings, nil
	}

	reasoning, err := normalizeReasoning(raw.Reasoning)
	if err != nil {
		return model.GraderOutput{}, warnings, fmt.Errorf("grading: reasoning field malformed: %w", err)
	}
	if strings.TrimSpace(reasoning) == "" {
		return model.GraderOutput{}, warnings, fmt.Errorf("grading: reasoning must not be empty")
	}

	scores, err := normalizeCriterionScores(raw.CriterionScores)
	if err != nil {
		return model.GraderOutput{}, warnings, fmt.Errorf("grading: criterion_scores malformed: %w", err)
	}

	if !disableScaleHeuristic {
		var scaleWarning string
		scores, scaleWarning = applyScaleHeuristic(scores)
		if scaleWarning != "" {
			warnings = append(warnings, scaleWarning)
		}
	}

	scores, reconcileWarnings := reconcileWithRubric(scores, rubric)
	warnings = append(warnings, reconcileWarnings...)

	var total float64
	for _, s := range scores {
		total += s.Score
	}
	total = clampTotal(total)

	out := model.GraderOutput{
		Role:            role, // step 6: role-stamp is authoritative, model-supplied role (if any) is never read
		Reasoning:       reasoning,
		CriterionScores: scores,
		TotalScore:      total,
		FeedbackText:    raw.FeedbackText,
		Confidence:      raw.Confidence,
	}
	return out, warnings, nil
}

func parseStructured(content string) (rawOutput, error) {
	var raw rawOutput
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return rawOutput{}, err
	}
	if raw.CriterionScores == nil {
		return rawOutput{}, fmt.Errorf("missing criterion_scores field")
	}
	return raw, nil
}

func recoverNumericScore(content string) (float64, bool) {
	match := numericFallback.FindString(content)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalizeReasoning handles step 2: reasoning may be a plain string or a
// JSON array of steps, concatenated with newlines.
func normalizeReasoning(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return strings.Join(asList, "\n"), nil
	}
	return "", fmt.Errorf("reasoning must be a string or an array of strings")
}

// normalizeCriterionScores handles step 3: criterion_scores may be a
// sequence of {criterion_name, score, feedback} objects, or a mapping of
// criterion name to score (numeric) or to an object with score/feedback.
func normalizeCriterionScores(raw json.RawMessage) ([]model.CriterionScore, error) {
	var asSeq []rawCriterionScore
	if err := json.Unmarshal(raw, &asSeq); err == nil {
		out := make([]model.CriterionScore, len(asSeq))
		for i, s := range asSeq {
			out[i] = model.CriterionScore{CriterionName: s.CriterionName, Score: s.Score, Feedback: s.Feedback}
		}
		return out, nil
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("criterion_scores must be an array or an object")
	}
	out := make([]model.CriterionScore, 0, len(asMap))
	for name, v := range asMap {
		var score float64
		if err := json.Unmarshal(v, &score); err == nil {
			out = append(out, model.CriterionScore{CriterionName: name, Score: score})
			continue
		}
		var obj struct {
			Score    float64 `json:"score"`
			Feedback string  `json:"feedback"`
		}
		if err := json.Unmarshal(v, &obj); err != nil {
			return nil, fmt.Errorf("criterion_scores[%q] must be a number or {score, feedback}", name)
		}
		out = append(out, model.CriterionScore{CriterionName: name, Score: obj.Score, Feedback: obj.Feedback})
	}
	return out, nil
}

// applyScaleHeuristic implements step 4: if every criterion score is
// <= 1.0, the model is assumed to have used a normalized [0,1] scale;
// multiply by 10 once. Skipped entirely when Normalize's
// disableScaleHeuristic is set.
func applyScaleHeuristic(scores []model.CriterionScore) ([]model.CriterionScore, string) {
	if len(scores) == 0 {
		return scores, ""
	}
	for _, s := range scores {
		if s.Score > 1.0 {
			return scores, ""
		}
	}
	for i := range scores {
		scores[i].Score *= 10.0
	}
	return scores, "scale detection: all criterion scores were <= 1.0, multiplied by 10"
}

// reconcileWithRubric implements step 7: missing criteria receive a
// score of 0 with a synthetic note; unknown criteria are dropped and
// logged as warnings. The returned sequence follows rubric order.
func reconcileWithRubric(scores []model.CriterionScore, rubric []model.RubricCriterion) ([]model.CriterionScore, []string) {
	var warnings []string
	byName := make(map[string]model.CriterionScore, len(scores))
	for _, s := range scores {
		byName[s.CriterionName] = s
	}

	reconciled := make([]model.CriterionScore, 0, len(rubric))
	for _, c := range rubric {
		if s, ok := byName[c.Name]; ok {
			reconciled = append(reconciled, s)
			delete(byName, c.Name)
			continue
		}
		warnings = append(warnings, fmt.Sprintf("criterion %q missing from model output, scored 0", c.Name))
		reconciled = append(reconciled, model.CriterionScore{
			CriterionName: c.Name,
			Score:         0,
			Feedback:      "no score returned for this criterion; defaulted to 0",
		})
	}
	for name := range byName {
		warnings = append(warnings, fmt.Sprintf("unknown criterion %q in model output, dropped", name))
	}
	return reconciled, warnings
}

func clampTotal(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
