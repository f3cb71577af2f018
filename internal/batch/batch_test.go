package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examwright/examwright/internal/events"
	"github.com/examwright/examwright/internal/model"
)

type countingRunner struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	failAt      int // index into the overall task order; -1 disables
	calls       int32
}

func (r *countingRunner) Run(ctx context.Context, q model.Question, answer model.StudentAnswer) (model.GradingRecord, error) {
	idx := int(atomic.AddInt32(&r.calls, 1)) - 1

	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()

	if idx == r.failAt {
		return model.GradingRecord{}, fmt.Errorf("deliberate failure")
	}
	return model.GradingRecord{QuestionID: q.ID, StudentID: answer.StudentID, FinalGrade: 5,
		GraderOutputs: []model.GraderOutput{
			{Role: model.RoleGraderA, Reasoning: "x", TotalScore: 5},
			{Role: model.RoleGraderB, Reasoning: "x", TotalScore: 5},
		}}, nil
}

func makeTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{
			Question: model.Question{ID: fmt.Sprintf("q%d", i), Statement: "placeholder statement", Rubric: []model.RubricCriterion{{Name: "c", Weight: 1, MaxScore: 10}}, Metadata: model.QuestionMetadata{Discipline: "d", Topic: "t"}},
			Answer:   model.StudentAnswer{StudentID: fmt.Sprintf("s%d", i), QuestionID: fmt.Sprintf("q%d", i), Text: "answer text"},
		}
	}
	return tasks
}

func TestScheduler_Run_ChunkingAndBoundedConcurrency(t *testing.T) {
	// S7: 15 tasks, chunk_size 4, cooldown 0.5s -> chunks of (4,4,4,3);
	// no more than 4 pipelines in flight at once; one failing task is
	// isolated; results preserve input order.
	runner := &countingRunner{failAt: 7}
	sched := New(runner, Config{ChunkSize: 4, Cooldown: 500 * time.Millisecond}, events.NewSliceSink())

	tasks := makeTasks(15)
	start := time.Now()
	results, summary, err := sched.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, results, 15)
	assert.LessOrEqual(t, runner.maxInFlight, 4)
	assert.Equal(t, 15, summary.Total)
	assert.Equal(t, 14, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Error(t, results[7].Err)
	for i, r := range results {
		if i != 7 {
			assert.NoError(t, r.Err, "index %d", i)
			assert.Equal(t, fmt.Sprintf("q%d", i), r.Record.QuestionID)
		}
	}
	assert.GreaterOrEqual(t, elapsed, 3*500*time.Millisecond)
}

func TestScheduler_Run_SingleChunkNoCooldown(t *testing.T) {
	runner := &countingRunner{failAt: -1}
	sched := New(runner, Config{ChunkSize: 10}, events.NopSink{})

	results, summary, err := sched.Run(context.Background(), makeTasks(3))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Len(t, results, 3)
}

func TestScheduler_Run_CancelledContextStopsBeforeNextChunk(t *testing.T) {
	runner := &countingRunner{failAt: -1}
	sched := New(runner, Config{ChunkSize: 2, Cooldown: 50 * time.Millisecond}, events.NopSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := sched.Run(ctx, makeTasks(4))
	assert.Error(t, err)
}
