// Package model defines the value types shared by every component of the
// grading core: rubrics, questions, student answers, retrieved snippets,
// and the grader/pipeline outputs built from them.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is an optional classification on Question metadata.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyNone   Difficulty = ""
)

func (d Difficulty) valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyNone:
		return true
	default:
		return false
	}
}

// RubricCriterion is one weighted, scored dimension of a rubric.
type RubricCriterion struct {
	Name        string
	Description string
	Weight      float64
	MaxScore    float64
}

func (c RubricCriterion) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("criterion: name must not be empty")
	}
	if c.Weight <= 0 {
		return fmt.Errorf("criterion %q: weight must be positive, got %v", c.Name, c.Weight)
	}
	if c.MaxScore <= 0 || c.MaxScore > 100 {
		return fmt.Errorf("criterion %q: max_score must be in (0, 100], got %v", c.Name, c.MaxScore)
	}
	return nil
}

// QuestionMetadata scopes a Question to a discipline/topic for retrieval
// filtering.
type QuestionMetadata struct {
	Discipline string
	Topic      string
	Difficulty Difficulty
}

func (m QuestionMetadata) Validate() error {
	if strings.TrimSpace(m.Discipline) == "" {
		return fmt.Errorf("metadata: discipline must not be empty")
	}
	if strings.TrimSpace(m.Topic) == "" {
		return fmt.Errorf("metadata: topic must not be empty")
	}
	if !m.Difficulty.valid() {
		return fmt.Errorf("metadata: invalid difficulty %q", m.Difficulty)
	}
	return nil
}

// Question is the immutable unit of work a pipeline invocation grades
// against. Read-only once constructed; shared across invocations.
type Question struct {
	ID        string
	Statement string
	Rubric    []RubricCriterion
	Metadata  QuestionMetadata
}

func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("question: id must not be empty")
	}
	if len(strings.TrimSpace(q.Statement)) < 10 {
		return fmt.Errorf("question %s: statement must be at least 10 characters", q.ID)
	}
	if len(q.Rubric) == 0 {
		return fmt.Errorf("question %s: rubric must contain at least one criterion", q.ID)
	}
	seen := make(map[string]bool, len(q.Rubric))
	var weightSum float64
	for _, c := range q.Rubric {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("question %s: duplicate criterion name %q", q.ID, c.Name)
		}
		seen[c.Name] = true
		weightSum += c.Weight
	}
	if weightSum <= 0 {
		return fmt.Errorf("question %s: sum of criterion weights must be positive", q.ID)
	}
	if err := q.Metadata.Validate(); err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}
	return nil
}

// CriterionByName returns the rubric criterion with the given name, if any.
func (q Question) CriterionByName(name string) (RubricCriterion, bool) {
	for _, c := range q.Rubric {
		if c.Name == name {
			return c, true
		}
	}
	return RubricCriterion{}, false
}

// StudentAnswer is the free-text submission to be graded against a Question.
type StudentAnswer struct {
	StudentID  string
	QuestionID string
	Text       string
}

func (a StudentAnswer) Validate() error {
	if strings.TrimSpace(a.StudentID) == "" {
		return fmt.Errorf("student answer: student_id must not be empty")
	}
	if strings.TrimSpace(a.QuestionID) == "" {
		return fmt.Errorf("student answer: question_id must not be empty")
	}
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("student answer %s/%s: text must not be empty", a.StudentID, a.QuestionID)
	}
	return nil
}

// Trimmed returns the answer with Text trimmed of surrounding whitespace.
func (a StudentAnswer) Trimmed() StudentAnswer {
	a.Text = strings.TrimSpace(a.Text)
	return a
}

// Snippet is one piece of retrieved context, scored and scoped to a
// discipline/topic.
type Snippet struct {
	Content    string
	Source     string
	Page       int // -1 when absent
	Relevance  float64
	Discipline string
	Topic      string
}

func (s Snippet) Validate() error {
	if strings.TrimSpace(s.Content) == "" {
		return fmt.Errorf("snippet: content must not be empty")
	}
	if s.Relevance < 0 || s.Relevance > 1 {
		return fmt.Errorf("snippet %q: relevance must be in [0,1], got %v", s.Source, s.Relevance)
	}
	if s.Page < -1 {
		return fmt.Errorf("snippet %q: page must be non-negative or -1 (absent)", s.Source)
	}
	return nil
}

// SortSnippetsByRelevance orders snippets by descending relevance in place
// and returns the slice for convenience.
func SortSnippetsByRelevance(snippets []Snippet) []Snippet {
	for i := 1; i < len(snippets); i++ {
		j := i
		for j > 0 && snippets[j-1].Relevance < snippets[j].Relevance {
			snippets[j-1], snippets[j] = snippets[j], snippets[j-1]
			j--
		}
	}
	return snippets
}

// Role identifies which grading invocation produced a GraderOutput.
type Role string

const (
	RoleGraderA Role = "GRADER_A"
	RoleGraderB Role = "GRADER_B"
	RoleArbiter Role = "ARBITER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleGraderA, RoleGraderB, RoleArbiter:
		return true
	default:
		return false
	}
}

// CriterionScore is the grader's judgement for a single rubric criterion.
type CriterionScore struct {
	CriterionName string
	Score         float64
	Feedback      string
}

func (c CriterionScore) Validate() error {
	if strings.TrimSpace(c.CriterionName) == "" {
		return fmt.Errorf("criterion score: criterion_name must not be empty")
	}
	if c.Score < 0 {
		return fmt.Errorf("criterion score %q: score must be non-negative, got %v", c.CriterionName, c.Score)
	}
	return nil
}

// GraderOutput is the normalized, validated result of one grader invocation.
type GraderOutput struct {
	Role            Role
	Reasoning       string
	CriterionScores []CriterionScore
	TotalScore      float64
	FeedbackText    string
	Confidence      *float64 // nil when not reported
}

func (g GraderOutput) Validate() error {
	if !g.Role.Valid() {
		return fmt.Errorf("grader output: invalid role %q", g.Role)
	}
	if strings.TrimSpace(g.Reasoning) == "" {
		return fmt.Errorf("grader output %s: reasoning must not be empty", g.Role)
	}
	if g.TotalScore < 0 || g.TotalScore > 10 {
		return fmt.Errorf("grader output %s: total_score must be in [0,10], got %v", g.Role, g.TotalScore)
	}
	for _, cs := range g.CriterionScores {
		if err := cs.Validate(); err != nil {
			return fmt.Errorf("grader output %s: %w", g.Role, err)
		}
	}
	if g.Confidence != nil && (*g.Confidence < 0 || *g.Confidence > 1) {
		return fmt.Errorf("grader output %s: confidence must be in [0,1], got %v", g.Role, *g.Confidence)
	}
	return nil
}

// SumCriterionScores adds every CriterionScore.Score.
func (g GraderOutput) SumCriterionScores() float64 {
	var sum float64
	for _, cs := range g.CriterionScores {
		sum += cs.Score
	}
	return sum
}

// DivergenceReport is the pure result of comparing two grader totals.
type DivergenceReport struct {
	Gap                 float64
	Threshold           float64
	ArbitrationRequired bool
}

// Timings records a per-phase duration within one pipeline invocation.
type Timings struct {
	Retrieve   time.Duration
	GradeA     time.Duration
	GradeB     time.Duration
	Arbitrate  time.Duration // zero when arbitration did not fire
	Consensus  time.Duration
	TotalWall  time.Duration
}

// GradingRecord is the pipeline's result for one (question, student answer)
// pair.
type GradingRecord struct {
	CorrelationID      string
	QuestionID         string
	StudentID          string
	FinalGrade         float64
	GraderOutputs       []GraderOutput // length 2 or 3, order [A, B, (Arbiter)]
	DivergenceDetected bool
	Gap                float64
	RetrievedSnippets  []Snippet
	Timings            Timings
	Warnings           []string
}

func (r GradingRecord) Validate() error {
	if len(r.GraderOutputs) != 2 && len(r.GraderOutputs) != 3 {
		return fmt.Errorf("grading record %s/%s: grader_outputs must have length 2 or 3, got %d",
			r.QuestionID, r.StudentID, len(r.GraderOutputs))
	}
	if r.GraderOutputs[0].Role != RoleGraderA || r.GraderOutputs[1].Role != RoleGraderB {
		return fmt.Errorf("grading record %s/%s: grader_outputs must be ordered [GRADER_A, GRADER_B, ...]",
			r.QuestionID, r.StudentID)
	}
	if len(r.GraderOutputs) == 3 && r.GraderOutputs[2].Role != RoleArbiter {
		return fmt.Errorf("grading record %s/%s: third grader_output must be ARBITER",
			r.QuestionID, r.StudentID)
	}
	if r.FinalGrade < 0 || r.FinalGrade > 10 {
		return fmt.Errorf("grading record %s/%s: final_grade must be in [0,10], got %v",
			r.QuestionID, r.StudentID, r.FinalGrade)
	}
	return nil
}
