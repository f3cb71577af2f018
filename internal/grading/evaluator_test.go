package grading

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
)

type scriptedChat struct {
	responses []llmchat.Response
	errs      []error
	calls     int
	reqs      []llmchat.Request
}

func (c *scriptedChat) Complete(ctx context.Context, req llmchat.Request) (*llmchat.Response, error) {
	i := c.calls
	c.calls++
	c.reqs = append(c.reqs, req)
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	return &c.responses[i], nil
}

func (c *scriptedChat) Name() string { return "scripted" }

func sampleQuestion() model.Question {
	return model.Question{
		ID:        "q1",
		Statement: "Explain the first law of thermodynamics.",
		Rubric:    twoCriterionRubric(),
		Metadata:  model.QuestionMetadata{Discipline: "physics", Topic: "thermo"},
	}
}

func TestEvaluator_Evaluate_Success(t *testing.T) {
	chat := &scriptedChat{
		responses: []llmchat.Response{
			{Content: `{"reasoning":"sound","criterion_scores":[{"criterion_name":"correctness","score":5},{"criterion_name":"clarity","score":3}],"total_score":8}`},
		},
	}
	ev := NewEvaluator(chat, "mock-model", Config{}, security.NewDetector(), events.NewSliceSink())
	ev.sleep = func(time.Duration) {}

	out, _, err := ev.Evaluate(context.Background(), model.RoleGraderA, sampleQuestion(),
		model.StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "Energy is conserved."}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 8.0, out.TotalScore)
	assert.Equal(t, 1, chat.calls)
}

func TestEvaluator_Evaluate_RetriesTransientThenSucceeds(t *testing.T) {
	// S6: GRADER_A fails twice with TransientRemote, succeeds on the
	// third attempt with total 7.0 -> exactly 3 calls.
	transientErr := llmchat.NewError("mock", llmchat.CodeRateLimit, "rate limited", nil)
	chat := &scriptedChat{
		errs: []error{transientErr, transientErr, nil},
		responses: []llmchat.Response{
			{}, {},
			{Content: `{"reasoning":"sound","criterion_scores":[{"criterion_name":"correctness","score":4},{"criterion_name":"clarity","score":3}],"total_score":7}`},
		},
	}
	sink := events.NewSliceSink()
	ev := NewEvaluator(chat, "mock-model", Config{}, security.NewDetector(), sink)
	var slept []time.Duration
	ev.sleep = func(d time.Duration) { slept = append(slept, d) }

	out, _, err := ev.Evaluate(context.Background(), model.RoleGraderA, sampleQuestion(),
		model.StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "Energy is conserved."}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 7.0, out.TotalScore)
	assert.Equal(t, 3, chat.calls)
	assert.Len(t, slept, 2)
	assert.GreaterOrEqual(t, slept[0]+slept[1], 4*time.Second+8*time.Second-1*time.Second)
}

func TestEvaluator_Evaluate_MalformedOutputFailsAfterRetries(t *testing.T) {
	chat := &scriptedChat{
		responses: []llmchat.Response{
			{Content: "not json at all and no number either"},
			{Content: "still not json"},
			{Content: "nope"},
		},
	}
	ev := NewEvaluator(chat, "mock-model", Config{}, security.NewDetector(), events.NewSliceSink())
	ev.sleep = func(time.Duration) {}

	_, _, err := ev.Evaluate(context.Background(), model.RoleGraderA, sampleQuestion(),
		model.StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "Energy is conserved."}, nil, nil)
	assert.Error(t, err)
	assert.Equal(t, 3, chat.calls)
}

func TestEvaluator_Evaluate_ArbiterPromptIncludesPeers(t *testing.T) {
	chat := &scriptedChat{
		responses: []llmchat.Response{
			{Content: `{"reasoning":"independent decision","criterion_scores":[{"criterion_name":"correctness","score":4},{"criterion_name":"clarity","score":2.5}],"total_score":6.5}`},
		},
	}
	ev := NewEvaluator(chat, "mock-model", Config{}, security.NewDetector(), events.NewSliceSink())
	ev.sleep = func(time.Duration) {}

	peers := &PeerOutputs{
		A:   model.GraderOutput{Role: model.RoleGraderA, Reasoning: "A's reasoning", TotalScore: 3.0},
		B:   model.GraderOutput{Role: model.RoleGraderB, Reasoning: "B's reasoning", TotalScore: 7.0},
		Gap: 4.0,
	}
	out, _, err := ev.Evaluate(context.Background(), model.RoleArbiter, sampleQuestion(),
		model.StudentAnswer{StudentID: "s1", QuestionID: "q1", Text: "Energy is conserved."}, nil, peers)
	require.NoError(t, err)
	assert.Equal(t, model.RoleArbiter, out.Role)
	require.Len(t, chat.reqs, 1)
	prompt := chat.reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "A's reasoning")
	assert.Contains(t, prompt, "B's reasoning")
}
