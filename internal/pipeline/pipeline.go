// Package pipeline implements the Pipeline Orchestrator: an explicit
// enum-state machine owning one (question, student answer) invocation
// from retrieval through consensus. GRADER_A and GRADER_B run
// concurrently and join before the orchestrator decides whether to
// arbitrate; ARBITER runs sequentially after join.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/examwright/examwright/internal/consensus"
	"github.com/examwright/examwright/internal/divergence"
	"github.com/examwright/examwright/internal/events"
	"github.com/examwright/examwright/internal/gradeerr"
	"github.com/examwright/examwright/internal/grading"
	"github.com/examwright/examwright/internal/model"
	"github.com/examwright/examwright/internal/obsmetrics"
	"github.com/examwright/examwright/internal/obstrace"
)

// Retriever is the subset of internal/retrieval.Client the orchestrator
// depends on, narrowed to an interface so tests can substitute a fake.
type Retriever interface {
	Search(ctx context.Context, query, discipline, topic string, k int) ([]model.Snippet, error)
}

type state int

const (
	stateInit state = iota
	stateRetrieve
	stateGradeFanout
	stateJoin
	stateFinalize2
	stateArbitrate
	stateFinalize3
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateRetrieve:
		return "RETRIEVE"
	case stateGradeFanout:
		return "GRADE_FANOUT"
	case stateJoin:
		return "JOIN"
	case stateFinalize2:
		return "FINALIZE_2"
	case stateArbitrate:
		return "ARBITRATE"
	case stateFinalize3:
		return "FINALIZE_3"
	case stateDone:
		return "DONE"
	case stateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Config carries the tunables the orchestrator needs beyond what the
// Retrieval Client and Evaluator already own.
type Config struct {
	DivergenceThreshold        float64
	RetrievalK                 int
	FailClosedOnEmptyRetrieval bool
	Deadline                   time.Duration
}

// Orchestrator drives one grading invocation through the state machine.
// GraderA and GraderB are independent evaluators (potentially backed by
// different models); Arbiter is invoked only when divergence demands it.
type Orchestrator struct {
	Retriever Retriever
	GraderA   *grading.Evaluator
	GraderB   *grading.Evaluator
	Arbiter   *grading.Evaluator
	Config    Config
	Sink      events.Sink
}

// New builds an Orchestrator. sink may be nil, in which case events are
// discarded.
func New(retriever Retriever, graderA, graderB, arbiter *grading.Evaluator, cfg Config, sink events.Sink) *Orchestrator {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Orchestrator{Retriever: retriever, GraderA: graderA, GraderB: graderB, Arbiter: arbiter, Config: cfg, Sink: sink}
}

// Run executes the full state machine for one (question, answer) pair
// and returns the resulting Grading Record.
func (o *Orchestrator) Run(ctx context.Context, q model.Question, answer model.StudentAnswer) (model.GradingRecord, error) {
	correlationID := uuid.NewString()
	wallStart := time.Now()

	ctx, span := obstrace.StartSpan(ctx, "pipeline.run")
	defer span.End()

	if o.Config.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Config.Deadline)
		defer cancel()
	}

	record := model.GradingRecord{
		CorrelationID: correlationID,
		QuestionID:    q.ID,
		StudentID:     answer.StudentID,
	}

	st := stateInit
	var timings model.Timings
	var warnings []string

	st = stateRetrieve
	retrieveStart := time.Now()
	snippets, err := o.Retriever.Search(ctx, answer.Text, q.Metadata.Discipline, q.Metadata.Topic, o.Config.RetrievalK)
	timings.Retrieve = time.Since(retrieveStart)
	o.emit(correlationID, "retrieve", st, timings.Retrieve, err)
	if err != nil {
		if o.Config.FailClosedOnEmptyRetrieval {
			st = stateFailed
			obsmetrics.RecordPipelineInvocation("failed")
			return record, fmt.Errorf("pipeline %s: retrieval failed: %w", correlationID, err)
		}
		warnings = append(warnings, fmt.Sprintf("retrieval failed, continuing with no snippets: %v", err))
		snippets = nil
	} else if len(snippets) == 0 {
		if o.Config.FailClosedOnEmptyRetrieval {
			st = stateFailed
			obsmetrics.RecordPipelineInvocation("failed")
			return record, fmt.Errorf("pipeline %s: no context retrieved and fail_closed_on_empty_retrieval is set", correlationID)
		}
		warnings = append(warnings, "retrieval returned no snippets")
	}
	record.RetrievedSnippets = snippets

	st = stateGradeFanout
	outA, outB, warnGrade, err := o.fanoutGraders(ctx, q, answer, snippets, &timings)
	warnings = append(warnings, warnGrade...)
	if err != nil {
		st = stateFailed
		obsmetrics.RecordPipelineInvocation("failed")
		return record, fmt.Errorf("pipeline %s: %w", correlationID, err)
	}

	st = stateJoin
	report := divergence.Evaluate(outA, outB, o.Config.DivergenceThreshold)
	record.DivergenceDetected = report.ArbitrationRequired
	record.Gap = report.Gap
	obsmetrics.RecordDivergenceGap(report.Gap)

	outputs := []model.GraderOutput{outA, outB}

	if !report.ArbitrationRequired || o.Arbiter == nil {
		st = stateFinalize2
	} else {
		st = stateArbitrate
		obsmetrics.RecordArbitration()
		arbStart := time.Now()
		peers := &grading.PeerOutputs{A: outA, B: outB, Gap: report.Gap}
		outArbiter, warnArb, err := o.Arbiter.Evaluate(ctx, model.RoleArbiter, q, answer, snippets, peers)
		timings.Arbitrate = time.Since(arbStart)
		o.emit(correlationID, "arbitrate", st, timings.Arbitrate, err)
		warnings = append(warnings, warnArb...)
		if err != nil {
			st = stateFailed
			obsmetrics.RecordPipelineInvocation("failed")
			return record, fmt.Errorf("pipeline %s: arbitration failed: %w", correlationID, err)
		}
		outputs = append(outputs, outArbiter)
		st = stateFinalize3
	}

	consensusStart := time.Now()
	finalGrade, err := consensus.Aggregate(outputs)
	timings.Consensus = time.Since(consensusStart)
	if err != nil {
		st = stateFailed
		return record, gradeerr.New(gradeerr.KindInternal, "pipeline.consensus", err)
	}

	timings.TotalWall = time.Since(wallStart)
	record.FinalGrade = finalGrade
	record.GraderOutputs = outputs
	record.Timings = timings
	record.Warnings = warnings

	st = stateDone
	o.emit(correlationID, "done", st, timings.TotalWall, nil)
	obsmetrics.RecordPhaseDuration("total_wall", timings.TotalWall)

	if err := record.Validate(); err != nil {
		obsmetrics.RecordPipelineInvocation("invalid")
		return record, gradeerr.New(gradeerr.KindInternal, "pipeline.validate", err)
	}
	obsmetrics.RecordPipelineInvocation("success")
	return record, nil
}

// fanoutGraders runs GRADER_A and GRADER_B concurrently and joins them,
// always returning A first and B second regardless of completion order.
func (o *Orchestrator) fanoutGraders(ctx context.Context, q model.Question, answer model.StudentAnswer, snippets []model.Snippet, timings *model.Timings) (model.GraderOutput, model.GraderOutput, []string, error) {
	var outA, outB model.GraderOutput
	var warnA, warnB []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		out, warnings, err := o.GraderA.Evaluate(gctx, model.RoleGraderA, q, answer, snippets, nil)
		timings.GradeA = time.Since(start)
		obsmetrics.RecordPhaseDuration("grade_a", timings.GradeA)
		if err != nil {
			obsmetrics.RecordGraderCall(string(model.RoleGraderA), "error")
			return fmt.Errorf("grader A: %w", err)
		}
		obsmetrics.RecordGraderCall(string(model.RoleGraderA), "ok")
		outA, warnA = out, warnings
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		out, warnings, err := o.GraderB.Evaluate(gctx, model.RoleGraderB, q, answer, snippets, nil)
		timings.GradeB = time.Since(start)
		obsmetrics.RecordPhaseDuration("grade_b", timings.GradeB)
		if err != nil {
			obsmetrics.RecordGraderCall(string(model.RoleGraderB), "error")
			return fmt.Errorf("grader B: %w", err)
		}
		obsmetrics.RecordGraderCall(string(model.RoleGraderB), "ok")
		outB, warnB = out, warnings
		return nil
	})

	if err := g.Wait(); err != nil {
		return model.GraderOutput{}, model.GraderOutput{}, nil, err
	}
	return outA, outB, append(warnA, warnB...), nil
}

func (o *Orchestrator) emit(correlationID, phase string, st state, d time.Duration, err error) {
	status := events.StatusOK
	if err != nil {
		status = events.StatusError
	}
	o.Sink.Emit(events.Event{
		CorrelationID: correlationID,
		Phase:         phase,
		Status:        status,
		Duration:      d,
		Attributes:    map[string]any{"state": st.String()},
		Err:           err,
	})
}
