package oracle

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	oerrors "github.com/unstableneutron/oracle/pkg/errors"
)

// MultiRunInput describes one multi-model run: a shared prompt already
// rendered into one request per model, plus the per-settlement callback.
type MultiRunInput struct {
	// RunID identifies the session. Empty generates a fresh ID.
	RunID string

	// Requests holds one request per target model, in caller order.
	// Duplicate models are dropped on entry, keeping the first occurrence.
	Requests []ModelRequest

	// SinkFor, when set, supplies the incremental-output sink for a model.
	SinkFor func(model string) Sink

	// OnModelDone, when set, is invoked once per model in settlement
	// order: the order calls actually finish, not the order they were
	// listed.
	OnModelDone func(outcome ModelExecutionOutcome)
}

// Orchestrator fans one prompt out to N models concurrently and aggregates
// the results. A single model's failure never cancels the others; failures
// become data (Rejected outcomes) rather than errors.
type Orchestrator struct {
	exec   *Executor
	store  StatusStore
	clock  Clock
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator on top of an executor. The store
// may be nil, in which case no run state is persisted.
func NewOrchestrator(exec *Executor, store StatusStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		exec:   exec,
		store:  store,
		clock:  exec.clock,
		logger: logger,
	}
}

// Run dispatches all requests concurrently and waits for every one of them
// to settle; it never short-circuits on the first failure. It returns an
// error only for problems detected before dispatch; per-model failures are
// reported in the summary's Rejected partition.
func (o *Orchestrator) Run(ctx context.Context, in MultiRunInput) (*MultiModelRunSummary, error) {
	requests := dedupeRequests(in.Requests)
	if len(requests) == 0 {
		return nil, &oerrors.ValidationError{
			Field:   "models",
			Message: "at least one model is required",
		}
	}

	runID := in.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	logger := o.logger.With("run_id", runID)

	start := o.clock.Now()
	logger.Info("dispatching multi-model run", "models", len(requests))

	if o.store != nil {
		if err := o.store.UpdateSessionStatus(ctx, runID, StatusPatch{State: RunStateRunning}); err != nil {
			return nil, err
		}
	}

	// Each model's `running` state is written synchronously before its
	// goroutine starts, so a crash mid-run still leaves visible partial
	// state.
	logs := make(map[string]LogWriter, len(requests))
	for _, req := range requests {
		lw := LogWriter(NopLogWriter())
		if o.store != nil {
			var err error
			lw, err = o.store.CreateLogWriter(runID, req.Model)
			if err != nil {
				logger.Warn("log writer unavailable", "model", req.Model, "error", err)
				lw = NopLogWriter()
			}
			patch := StatusPatch{State: RunStateRunning, LogLocator: lw.Locator()}
			if err := o.store.UpdateModelRunStatus(ctx, runID, req.Model, patch); err != nil {
				return nil, err
			}
		}
		logs[req.Model] = lw
	}

	settled := make(chan ModelExecutionOutcome, len(requests))
	for _, req := range requests {
		req := req
		req.SuppressBanner = true

		var sink Sink
		if in.SinkFor != nil {
			sink = in.SinkFor(req.Model)
		}
		lw := logs[req.Model]

		go func() {
			opts := RunOptions{
				RunID: runID,
				Sink:  sink,
				Log:   lw,
				// The orchestrator owns all status writes for this run.
				RecordStatus: false,
			}
			result, err := o.exec.Run(ctx, req, opts)
			_ = lw.Close()

			outcome := ModelExecutionOutcome{Model: req.Model, LogLocator: lw.Locator()}
			if err != nil {
				outcome.Err = err
			} else {
				outcome.Usage = result.Usage
				outcome.AnswerText = result.Response.OutputText
			}
			settled <- outcome
		}()
	}

	summary := &MultiModelRunSummary{}
	states := make([]RunState, 0, len(requests))

	// Settlement order, not request order: callbacks and status writes
	// happen as each model finishes, so a caller streaming per-model
	// output never waits on a slower model listed earlier.
	for range requests {
		outcome := <-settled

		var patch StatusPatch
		if outcome.Fulfilled() {
			patch = StatusPatch{State: RunStateCompleted, Usage: &outcome.Usage, LogLocator: outcome.LogLocator}
			summary.Fulfilled = append(summary.Fulfilled, outcome)
			states = append(states, RunStateCompleted)
			logger.Info("model settled", "model", outcome.Model, "state", "completed")
		} else {
			patch = StatusPatch{State: RunStateError, Message: outcome.Err.Error()}
			summary.Rejected = append(summary.Rejected, outcome)
			states = append(states, RunStateError)
			logger.Warn("model settled", "model", outcome.Model, "state", "error", "error", outcome.Err)
		}
		if o.store != nil {
			if err := o.store.UpdateModelRunStatus(ctx, runID, outcome.Model, patch); err != nil {
				logger.Warn("status write failed", "model", outcome.Model, "error", err)
			}
		}
		if in.OnModelDone != nil {
			in.OnModelDone(outcome)
		}
	}

	summary.Elapsed = o.clock.Now().Sub(start)

	sessionState := DeriveSessionState(states)
	if o.store != nil {
		patch := StatusPatch{State: sessionState}
		if sessionState == RunStateError {
			patch.Message = rejectionSummary(summary.Rejected)
		}
		if err := o.store.UpdateSessionStatus(ctx, runID, patch); err != nil {
			logger.Warn("session status write failed", "error", err)
		}
	}

	logger.Info("multi-model run settled",
		"fulfilled", len(summary.Fulfilled),
		"rejected", len(summary.Rejected),
		"duration_ms", summary.Elapsed.Milliseconds(),
	)
	return summary, nil
}

// dedupeRequests drops duplicate models, keeping the first occurrence and
// preserving order.
func dedupeRequests(requests []ModelRequest) []ModelRequest {
	seen := make(map[string]bool, len(requests))
	out := make([]ModelRequest, 0, len(requests))
	for _, req := range requests {
		if seen[req.Model] {
			continue
		}
		seen[req.Model] = true
		out = append(out, req)
	}
	return out
}

// rejectionSummary flattens rejected outcomes into one status message.
func rejectionSummary(rejected []ModelExecutionOutcome) string {
	if len(rejected) == 0 {
		return ""
	}
	msg := ""
	for i, outcome := range rejected {
		if i > 0 {
			msg += "; "
		}
		msg += outcome.Model + ": " + outcome.Err.Error()
	}
	return msg
}
