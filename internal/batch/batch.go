// Package batch implements the Batch Scheduler: contiguous chunking of
// tasks with bounded per-chunk concurrency and a cooldown between
// chunks, isolating per-task failures from the rest of the batch.
package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/examwright/examwright/internal/events"
	"github.com/examwright/examwright/internal/model"
	"github.com/examwright/examwright/internal/obsmetrics"
)

// Task is one (question, answer) pair to grade.
type Task struct {
	Question model.Question
	Answer   model.StudentAnswer
}

// Result is one task's outcome, preserving its position in the original
// input so callers can correlate Results[i] with Tasks[i] even when a
// task failed.
type Result struct {
	Record model.GradingRecord
	Err    error
}

// Runner executes one task end to end. internal/pipeline.Orchestrator.Run
// satisfies this signature.
type Runner interface {
	Run(ctx context.Context, q model.Question, answer model.StudentAnswer) (model.GradingRecord, error)
}

// Config controls chunking and pacing.
type Config struct {
	ChunkSize int
	Cooldown  time.Duration
}

// Scheduler drives a Runner over many tasks under bounded concurrency.
type Scheduler struct {
	Runner Runner
	Config Config
	Sink   events.Sink
}

// New builds a Scheduler, defaulting ChunkSize to 4 when unset.
func New(runner Runner, cfg Config, sink events.Sink) *Scheduler {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Scheduler{Runner: runner, Config: cfg, Sink: sink}
}

// Summary totals a completed batch run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Run executes every task, chunked by Config.ChunkSize with Config.Cooldown
// between chunks. Results are returned in input order regardless of
// completion order within a chunk. A cancelled ctx stops the batch after
// the in-flight chunk observes cancellation; the scheduler does not start
// a new chunk once ctx is done.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) ([]Result, Summary, error) {
	results := make([]Result, len(tasks))
	var limiter *rate.Limiter
	if s.Config.Cooldown > 0 {
		limiter = rate.NewLimiter(rate.Every(s.Config.Cooldown), 1)
		// Consume the initial burst token so the first inter-chunk wait
		// still applies from chunk 2 onward, not before chunk 1.
		_ = limiter.Allow()
	}

	chunks := chunk(tasks, s.Config.ChunkSize)
	for chunkIdx, c := range chunks {
		if ctx.Err() != nil {
			return results, summarize(results), ctx.Err()
		}

		if chunkIdx > 0 && limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return results, summarize(results), err
			}
		}

		obsmetrics.RecordBatchChunk()
		if err := s.runChunk(ctx, tasks, c, results); err != nil {
			return results, summarize(results), err
		}
	}

	return results, summarize(results), nil
}

// chunkRange is an offset/length pair into the original tasks slice.
type chunkRange struct {
	start, length int
}

func chunk(tasks []Task, size int) []chunkRange {
	var out []chunkRange
	for i := 0; i < len(tasks); i += size {
		end := i + size
		if end > len(tasks) {
			end = len(tasks)
		}
		out = append(out, chunkRange{start: i, length: end - i})
	}
	return out
}

// runChunk runs every task in one chunk concurrently, bounded by a
// semaphore sized to the chunk itself — the chunk size is already the
// admission-control mechanism; the semaphore makes that bound explicit
// rather than relying on the goroutine count alone.
func (s *Scheduler) runChunk(ctx context.Context, tasks []Task, c chunkRange, results []Result) error {
	sem := semaphore.NewWeighted(int64(c.length))
	g, gctx := errgroup.WithContext(ctx)

	var inFlight int64
	for i := c.start; i < c.start+c.length; i++ {
		i := i
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			n := atomic.AddInt64(&inFlight, 1)
			obsmetrics.SetBatchInFlight(int(n))
			defer func() { obsmetrics.SetBatchInFlight(int(atomic.AddInt64(&inFlight, -1))) }()
			results[i] = s.runOne(gctx, tasks[i])
			return nil
		})
	}

	return g.Wait()
}

// runOne isolates a single task's failure: a pipeline error becomes that
// task's Result.Err rather than aborting the batch.
func (s *Scheduler) runOne(ctx context.Context, t Task) Result {
	start := time.Now()
	record, err := s.Runner.Run(ctx, t.Question, t.Answer)
	status := events.StatusOK
	if err != nil {
		status = events.StatusError
	}
	s.Sink.Emit(events.Event{
		Phase:    "batch_task",
		Status:   status,
		Duration: time.Since(start),
		Attributes: map[string]any{
			"question_id": t.Question.ID,
			"student_id":  t.Answer.StudentID,
		},
		Err: err,
	})
	if err != nil {
		return Result{Err: fmt.Errorf("task %s/%s: %w", t.Question.ID, t.Answer.StudentID, err)}
	}
	return Result{Record: record}
}

func summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	return s
}
