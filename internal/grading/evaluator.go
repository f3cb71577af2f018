package grading

import (
	"context"
	"fmt"
	"time"

	"github.com/examwright/examwright/internal/events"
	"github.com/examwright/examwright/internal/gradeerr"
	"github.com/examwright/examwright/internal/llmchat"
	"github.com/examwright/examwright/internal/model"
	"github.com/examwright/examwright/internal/security"
)

// Config holds the subset of internal/config.Config the evaluator needs,
// kept narrow so tests can construct it directly without the full
// application config.
type Config struct {
	MaxRetries            int
	RetryBaseDelaySeconds  float64
	RetryMaxDelaySeconds   float64
	Temperature            float64
	DisableScaleHeuristic  bool
}

// Evaluator invokes a chat model in one of the three grading roles and
// normalizes its output into a validated model.GraderOutput.
type Evaluator struct {
	Chat      llmchat.Chat
	Model     string
	Config    Config
	Sanitizer *security.Detector
	Sink      events.Sink

	// sleep is overridable in tests to avoid real backoff delays.
	sleep func(time.Duration)
}

// NewEvaluator builds an Evaluator with sane defaults for fields left
// zero in cfg.
func NewEvaluator(chat llmchat.Chat, modelName string, cfg Config, sanitizer *security.Detector, sink events.Sink) *Evaluator {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	if cfg.RetryBaseDelaySeconds == 0 {
		cfg.RetryBaseDelaySeconds = 4
	}
	if cfg.RetryMaxDelaySeconds == 0 {
		cfg.RetryMaxDelaySeconds = 60
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Evaluator{
		Chat:      chat,
		Model:     modelName,
		Config:    cfg,
		Sanitizer: sanitizer,
		Sink:      sink,
		sleep:     time.Sleep,
	}
}

const maxMalformedRetries = 2

// Evaluate invokes the chat model in role and returns a validated
// GraderOutput. peers must be non-nil if and only if role is ARBITER.
func (e *Evaluator) Evaluate(ctx context.Context, role model.Role, q model.Question, answer model.StudentAnswer, snippets []model.Snippet, peers *PeerOutputs) (model.GraderOutput, []string, error) {
	sanitizedAnswer := answer.Text
	if e.Sanitizer != nil {
		sanitizedAnswer, _ = e.Sanitizer.Sanitize(answer.Text)
	}

	prompt := BuildPrompt(role, q, sanitizedAnswer, snippets, peers)
	req := llmchat.Request{
		Messages: []llmchat.Message{
			{Role: "user", Content: prompt},
		},
		Model:       e.Model,
		Temperature: e.Config.Temperature,
		Schema:      Schema,
	}

	var transientAttempts int
	var malformedAttempts int
	op := fmt.Sprintf("grading.Evaluate[%s]", role)

	for {
		start := time.Now()
		resp, err := e.Chat.Complete(ctx, req)
		if err != nil {
			retriesExhausted := transientAttempts >= e.Config.MaxRetries
			gerr := gradeerr.FromProvider(op, err, retriesExhausted)
			e.emit(events.StatusError, role, start, map[string]any{"attempt": transientAttempts, "kind": gerr.Kind.String()}, gerr)

			if gerr.Kind == gradeerr.KindTransientRemote {
				transientAttempts++
				delay := backoffDelay(transientAttempts, e.Config.RetryBaseDelaySeconds, e.Config.RetryMaxDelaySeconds)
				e.sleepFn()(delay)
				continue
			}
			return model.GraderOutput{}, nil, gerr
		}

		out, warnings, normErr := Normalize(role, resp.Content, q.Rubric, e.Config.DisableScaleHeuristic)
		if normErr != nil {
			malformedAttempts++
			e.emit(events.StatusWarning, role, start, map[string]any{"attempt": malformedAttempts, "reason": "normalize_failed"}, normErr)
			if malformedAttempts > maxMalformedRetries {
				return model.GraderOutput{}, warnings, gradeerr.New(gradeerr.KindOutputMalformed, op, normErr)
			}
			req.Messages = append(req.Messages, llmchat.Message{Role: "assistant", Content: resp.Content})
			req.Messages = append(req.Messages, llmchat.Message{
				Role:    "user",
				Content: "Your previous response did not match the required schema. Respond again with strict, valid JSON only, matching every required field.",
			})
			continue
		}

		if err := out.Validate(); err != nil {
			malformedAttempts++
			e.emit(events.StatusWarning, role, start, map[string]any{"attempt": malformedAttempts, "reason": "validate_failed"}, err)
			if malformedAttempts > maxMalformedRetries {
				return model.GraderOutput{}, warnings, gradeerr.New(gradeerr.KindOutputMalformed, op, err)
			}
			continue
		}

		e.emit(events.StatusOK, role, start, map[string]any{"total_score": out.TotalScore}, nil)
		return out, warnings, nil
	}
}

func (e *Evaluator) sleepFn() func(time.Duration) {
	if e.sleep != nil {
		return e.sleep
	}
	return time.Sleep
}

func (e *Evaluator) emit(status events.Status, role model.Role, start time.Time, attrs map[string]any, err error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["role"] = string(role)
	e.Sink.Emit(events.Event{
		Phase:      "grade",
		Status:     status,
		Duration:   time.Since(start),
		Attributes: attrs,
		Err:        err,
	})
}

// backoffDelay implements the retry policy's exponential backoff: base
// seconds, doubling per attempt, clamped at max seconds. multiplier 1
// means attempt N waits base * 2^(N-1) seconds, not a further multiplier
// applied on top.
func backoffDelay(attempt int, baseSeconds, maxSeconds float64) time.Duration {
	delay := baseSeconds
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if delay > maxSeconds {
		delay = maxSeconds
	}
	return time.Duration(delay * float64(time.Second))
}
