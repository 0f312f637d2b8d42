// Package oracle implements the request execution and orchestration layer:
// it turns a validated prompt into one or more backend calls, manages
// streaming vs. background execution, retries transport failures during
// background polling, fans a prompt out to multiple models concurrently,
// and records run state so callers can inspect in-flight or completed work.
package oracle

import (
	"time"

	"github.com/unstableneutron/oracle/pkg/backend"
)

// RunState is the lifecycle state of a run, tracked per model and mirrored
// at the session level.
type RunState string

const (
	// RunStatePending means the run has been created but not dispatched.
	RunStatePending RunState = "pending"

	// RunStateRunning means a backend call is in flight.
	RunStateRunning RunState = "running"

	// RunStateCompleted means the run finished successfully.
	RunStateCompleted RunState = "completed"

	// RunStateError means the run failed.
	RunStateError RunState = "error"

	// RunStateCancelled means the run was cancelled before completion.
	RunStateCancelled RunState = "cancelled"
)

// Terminal reports whether the state is final.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateError, RunStateCancelled:
		return true
	}
	return false
}

// DeriveSessionState computes the session-level state from its per-model
// children: running while any child runs, error if at least one child
// errored and none remain running, completed only when all completed.
func DeriveSessionState(children []RunState) RunState {
	if len(children) == 0 {
		return RunStatePending
	}

	var errored, cancelled, completed int
	for _, c := range children {
		switch c {
		case RunStateRunning:
			return RunStateRunning
		case RunStateError:
			errored++
		case RunStateCancelled:
			cancelled++
		case RunStateCompleted:
			completed++
		}
	}

	switch {
	case errored > 0:
		return RunStateError
	case completed == len(children):
		return RunStateCompleted
	case cancelled > 0:
		return RunStateCancelled
	default:
		return RunStatePending
	}
}

// ModelRequest is the immutable description of one backend call for one
// model. It is built once per dispatch and discarded after a single
// executor invocation.
type ModelRequest struct {
	// Model is the target model identifier.
	Model string

	// Prompt is the fully rendered prompt text.
	Prompt string

	// MaxOutputTokens caps the response length. Zero means backend default.
	MaxOutputTokens int

	// WebSearch enables the backend's search tool for this request.
	WebSearch bool

	// Timeout bounds the whole call, streaming or background. Zero falls
	// back to the executor's default.
	Timeout time.Duration

	// Background selects asynchronous execution: submit, then poll. The
	// caller decides this from per-model configuration, optionally
	// overridden per invocation.
	Background bool

	// Pricing, when known, enables cost computation on the usage summary.
	Pricing *Pricing

	// SuppressBanner tells the executor to skip its own per-model banner
	// and tip log lines; the orchestrator owns the shared banner for a
	// multi-model run.
	SuppressBanner bool
}

// ResultMode distinguishes how a result was produced.
type ResultMode string

const (
	// ModeStreamed means the synchronous streaming path completed.
	ModeStreamed ResultMode = "streamed"

	// ModeBackgrounded means the asynchronous path completed after polling.
	ModeBackgrounded ResultMode = "backgrounded"
)

// UsageSummary is the aggregate token accounting for one completed call.
// All four token counts are always present (possibly zero); Cost is set
// only when pricing is known for the model.
type UsageSummary struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
	TotalTokens     int
	Cost            *float64
}

// ModelRunResult is the normalized outcome of one successful executor
// invocation.
type ModelRunResult struct {
	// Mode records whether the streaming or the background path produced
	// this result.
	Mode ResultMode

	// Usage is the backend-reported token accounting.
	Usage UsageSummary

	// Elapsed is the wall-clock time from dispatch to completion.
	Elapsed time.Duration

	// Response is the raw normalized backend response.
	Response *backend.Response
}

// ModelExecutionOutcome is the per-model result of a multi-model run:
// fulfilled (Err == nil) or rejected, carrying the raw failure unwrapped.
type ModelExecutionOutcome struct {
	// Model is the model this outcome belongs to.
	Model string

	// Usage is set for fulfilled outcomes.
	Usage UsageSummary

	// AnswerText is the model's final text output, for fulfilled outcomes.
	AnswerText string

	// LogLocator points at the persisted per-model output log, when a
	// session store was configured.
	LogLocator string

	// Err is the raw failure for rejected outcomes; nil means fulfilled.
	Err error
}

// Fulfilled reports whether the model call succeeded.
func (o ModelExecutionOutcome) Fulfilled() bool {
	return o.Err == nil
}

// MultiModelRunSummary aggregates a multi-model run. The invariant
// len(Fulfilled)+len(Rejected) == number of requested models always holds
// for the run that produced it.
type MultiModelRunSummary struct {
	Fulfilled []ModelExecutionOutcome
	Rejected  []ModelExecutionOutcome

	// Elapsed is wall-clock time from first dispatch to last settlement.
	Elapsed time.Duration
}

// Sink receives incremental text output. The return value is advisory
// backpressure (true means "continue"); the executor only uses it to stop
// progress logging, never to abort the call.
type Sink func(chunk string) bool
