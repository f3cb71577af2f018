// Package gradeerr defines the error taxonomy of the grading core (spec
// section on error handling) and a classifier from chat-provider errors
// into that taxonomy, so orchestrator and scheduler code can switch on
// Kind rather than matching strings.
package gradeerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind names one of the recognized failure categories.
type Kind int

const (
	// KindRetrievalFailed: vector store unreachable or errored after
	// internal retries. Recovered at the orchestrator; never fatal to
	// the pipeline by itself.
	KindRetrievalFailed Kind = iota
	// KindTransientRemote: rate limit, connection reset, 5xx from the
	// chat model. Retried by the caller per the configured policy.
	KindTransientRemote
	// KindOutputMalformed: model output could not be normalized into a
	// GraderOutput. Fatal to the invocation after retries.
	KindOutputMalformed
	// KindCriterionMismatch: criterion names could not be reconciled
	// with the rubric beyond policy.
	KindCriterionMismatch
	// KindTimeout: deadline exceeded with no retries remaining.
	KindTimeout
	// KindCancelled: explicit cancellation observed.
	KindCancelled
	// KindInternal: invariant violation. Should not occur under a
	// correct implementation.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindRetrievalFailed:
		return "RetrievalFailed"
	case KindTransientRemote:
		return "TransientRemote"
	case KindOutputMalformed:
		return "OutputMalformed"
	case KindCriterionMismatch:
		return "CriterionMismatch"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with the operation it occurred in and, optionally,
// the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the pipeline should retry the call that
// produced this error, per the retry policy in the grading package.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransientRemote
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// is not a *Error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// RemoteError is the minimal shape a chat/embedding provider error must
// expose for classification. internal/llmchat's error type implements
// this, mirroring internal/llm/provider.ProviderError's Code/IsRetryable
// fields without importing that package directly.
type RemoteError interface {
	error
	RetryableRemote() bool
	TimedOut() bool
}

// FromProvider classifies a remote provider error into a *Error. Context
// cancellation maps to KindCancelled and an expired context deadline to
// KindTimeout. A remote error that is retryable or timed out maps to
// KindTransientRemote while retries remain and to KindTimeout once the
// caller marks retriesExhausted. Anything else maps to KindOutputMalformed.
func FromProvider(op string, err error, retriesExhausted bool) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return New(KindCancelled, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindTimeout, op, err)
	}
	var re RemoteError
	if errors.As(err, &re) {
		if re.RetryableRemote() || re.TimedOut() {
			if retriesExhausted {
				return New(KindTimeout, op, fmt.Errorf("retries exhausted: %w", err))
			}
			return New(KindTransientRemote, op, err)
		}
	}
	return New(KindOutputMalformed, op, err)
}
