package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examwright/examwright/internal/events"
	"github.com/examwright/examwright/internal/llmchat"
	"github.com/examwright/examwright/internal/model"
	"github.com/examwright/examwright/internal/security"
	"github.com/examwright/examwright/internal/grading"
)

type fakeRetriever struct {
	snippets []model.Snippet
	err      error
}

func (f *fakeRetriever) Search(ctx context.Context, query, discipline, topic string, k int) ([]model.Snippet, error) {
	return f.snippets, f.err
}

type fixedChat struct {
	content string
}

func (f fixedChat) Complete(ctx context.Context, req llmchat.Request) (*llmchat.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llmchat.Response{Content: f.content}, nil
}

func (f fixedChat) Name() string { return "fixed" }

func evaluatorWith(content string) *grading.Evaluator {
	ev := grading.NewEvaluator(fixedChat{content: content}, "mock", grading.Config{}, security.NewDetector(), events.NopSink{})
	return ev
}

func twoCriterionQuestion() model.Question {
	return model.Question{
		ID:        "q1",
		Statement: "Explain the first law of thermodynamics.",
		Rubric: []model.RubricCriterion{
			{Name: "correctness", Weight: 6, MaxScore: 6},
			{Name: "clarity", Weight: 4, MaxScore: 4},
		},
		Metadata: model.QuestionMetadata{Discipline: "physics", Topic: "thermo"},
	}
}

func TestOrchestrator_Run_NoDivergenceSkipsArbiter(t *testing.T) {
	// S1: both graders total 8.0, tau 1.5 -> no arbitration, final 8.0.
	graderOut := `{"reasoning":"sound","criterion_scores":[{"criterion_name":"correctness","score":5},{"criterion_name":"clarity","score":3}],"total_score":8}`
	orch := New(&fakeRetriever{}, evaluatorWith(graderOut), evaluatorWith(graderOut), evaluatorWith(graderOut),
		Config{DivergenceThreshold: 1.5, RetrievalK: 4}, events.NewSliceSink())

	record, err := orch.Run(context.Background(), twoCriterionQuestion(),
		model.StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "Energy cannot be created or destroyed."})
	require.NoError(t, err)
	assert.Equal(t, 8.0, record.FinalGrade)
	assert.False(t, record.DivergenceDetected)
	assert.Len(t, record.GraderOutputs, 2)
	assert.Equal(t, model.RoleGraderA, record.GraderOutputs[0].Role)
	assert.Equal(t, model.RoleGraderB, record.GraderOutputs[1].Role)
}

func TestOrchestrator_Run_DivergenceInvokesArbiter(t *testing.T) {
	// S2: GRADER_A total 3.0, GRADER_B total 7.0, ARBITER total 4.5, tau 1.5.
	outA := `{"reasoning":"low","criterion_scores":[{"criterion_name":"correctness","score":2},{"criterion_name":"clarity","score":1}],"total_score":3}`
	outB := `{"reasoning":"high","criterion_scores":[{"criterion_name":"correctness","score":4},{"criterion_name":"clarity","score":3}],"total_score":7}`
	outArb := `{"reasoning":"split the difference independently","criterion_scores":[{"criterion_name":"correctness","score":3},{"criterion_name":"clarity","score":1.5}],"total_score":4.5}`

	orch := New(&fakeRetriever{}, evaluatorWith(outA), evaluatorWith(outB), evaluatorWith(outArb),
		Config{DivergenceThreshold: 1.5, RetrievalK: 4}, events.NewSliceSink())

	record, err := orch.Run(context.Background(), twoCriterionQuestion(),
		model.StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "Not sure about this one."})
	require.NoError(t, err)
	assert.True(t, record.DivergenceDetected)
	assert.Len(t, record.GraderOutputs, 3)
	assert.Equal(t, model.RoleArbiter, record.GraderOutputs[2].Role)
	assert.InDelta(t, 3.75, record.FinalGrade, 1e-9)
}

func TestOrchestrator_Run_EmptyRetrievalContinuesWithWarning(t *testing.T) {
	graderOut := `{"reasoning":"sound","criterion_scores":[{"criterion_name":"correctness","score":5},{"criterion_name":"clarity","score":3}],"total_score":8}`
	orch := New(&fakeRetriever{snippets: nil}, evaluatorWith(graderOut), evaluatorWith(graderOut), evaluatorWith(graderOut),
		Config{DivergenceThreshold: 1.5, RetrievalK: 4, FailClosedOnEmptyRetrieval: false}, events.NewSliceSink())

	record, err := orch.Run(context.Background(), twoCriterionQuestion(),
		model.StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "Energy cannot be created or destroyed."})
	require.NoError(t, err)
	assert.NotEmpty(t, record.Warnings)
	assert.Equal(t, 8.0, record.FinalGrade)
}

func TestOrchestrator_Run_FailClosedOnEmptyRetrieval(t *testing.T) {
	graderOut := `{"reasoning":"sound","criterion_scores":[{"criterion_name":"correctness","score":5},{"criterion_name":"clarity","score":3}],"total_score":8}`
	orch := New(&fakeRetriever{snippets: nil}, evaluatorWith(graderOut), evaluatorWith(graderOut), evaluatorWith(graderOut),
		Config{DivergenceThreshold: 1.5, RetrievalK: 4, FailClosedOnEmptyRetrieval: true}, events.NewSliceSink())

	_, err := orch.Run(context.Background(), twoCriterionQuestion(),
		model.StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "Energy cannot be created or destroyed."})
	assert.Error(t, err)
}

func TestOrchestrator_Run_DeadlineExceeded(t *testing.T) {
	orch := New(&fakeRetriever{}, evaluatorWith("{}"), evaluatorWith("{}"), evaluatorWith("{}"),
		Config{DivergenceThreshold: 1.5, RetrievalK: 4, Deadline: 1 * time.Nanosecond}, events.NewSliceSink())

	_, err := orch.Run(context.Background(), twoCriterionQuestion(),
		model.StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "Energy cannot be created or destroyed."})
	assert.Error(t, err)
}
