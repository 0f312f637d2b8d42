package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unstableneutron/oracle/pkg/backend"
	oerrors "github.com/unstableneutron/oracle/pkg/errors"
)

// ClientResolver maps a model identifier to the backend client that serves
// it. Resolution failures surface as validation errors before any dispatch.
type ClientResolver func(model string) (backend.Client, error)

// StaticClient returns a resolver that serves every model from one client.
func StaticClient(c backend.Client) ClientResolver {
	return func(string) (backend.Client, error) {
		return c, nil
	}
}

// ExecutorConfig holds the timing knobs for model call execution.
type ExecutorConfig struct {
	// DefaultTimeout bounds a call when the request does not carry its own.
	DefaultTimeout time.Duration

	// HeartbeatInterval is how often a waiting call logs a progress line.
	// Observability only; negative disables heartbeats.
	HeartbeatInterval time.Duration

	// GracePollInterval is the cadence of the short bounded poll applied
	// when a stream closes while the backend still reports "in progress".
	GracePollInterval time.Duration

	// GracePollMaxWait caps the grace poll, distinct from the long
	// background poll.
	GracePollMaxWait time.Duration

	// PollInterval is the fixed cadence of the background poll loop,
	// independent of backoff state.
	PollInterval time.Duration

	// BackoffBase is the first retry delay after a retryable transport
	// failure during background polling.
	BackoffBase time.Duration

	// BackoffMax caps the exponential backoff delay.
	BackoffMax time.Duration
}

// DefaultExecutorConfig returns the production timing defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultTimeout:    30 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		GracePollInterval: 2 * time.Second,
		GracePollMaxWait:  15 * time.Second,
		PollInterval:      10 * time.Second,
		BackoffBase:       2 * time.Second,
		BackoffMax:        60 * time.Second,
	}
}

// Executor issues exactly one request to exactly one backend model, in
// either streaming-synchronous or background-asynchronous mode, and returns
// a normalized result or a classified error.
type Executor struct {
	resolve ClientResolver
	cfg     ExecutorConfig
	clock   Clock
	logger  *slog.Logger
	store   StatusStore
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithClock injects an alternative timing source.
func WithClock(c Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// WithLogger injects the structured logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithStore injects the session state store.
func WithStore(s StatusStore) ExecutorOption {
	return func(e *Executor) { e.store = s }
}

// NewExecutor creates an executor. Zero-valued config fields fall back to
// the defaults.
func NewExecutor(resolve ClientResolver, cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	def := DefaultExecutorConfig()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.GracePollInterval <= 0 {
		cfg.GracePollInterval = def.GracePollInterval
	}
	if cfg.GracePollMaxWait <= 0 {
		cfg.GracePollMaxWait = def.GracePollMaxWait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}

	e := &Executor{
		resolve: resolve,
		cfg:     cfg,
		clock:   SystemClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions carries the per-invocation collaborators for one model call.
type RunOptions struct {
	// RunID identifies the session this call belongs to.
	RunID string

	// Sink receives incremental text output.
	Sink Sink

	// Log persists the model's output; nil discards it.
	Log LogWriter

	// RecordStatus makes the executor write run-state transitions itself.
	// The orchestrator sets this false and owns the writes instead, so a
	// multi-model run records `running` before dispatch rather than inside
	// each goroutine.
	RecordStatus bool
}

// Run performs one backend call for one model. On failure it returns a
// validation, transport, or response error; it never returns a partial
// result.
func (e *Executor) Run(ctx context.Context, req ModelRequest, opts RunOptions) (*ModelRunResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	client, err := e.resolve(req.Model)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	start := e.clock.Now()
	deadline := start.Add(timeout)

	logger := e.logger.With("model", req.Model)
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}
	if opts.Log == nil {
		opts.Log = NopLogWriter()
	}

	if !req.SuppressBanner {
		mode := "streaming"
		if req.Background {
			mode = "background"
		}
		logger.Info("dispatching model call",
			"mode", mode,
			"timeout", timeout.String(),
		)
	}

	if opts.RecordStatus && e.store != nil {
		patch := StatusPatch{State: RunStateRunning, LogLocator: opts.Log.Locator()}
		if err := e.store.UpdateModelRunStatus(ctx, opts.RunID, req.Model, patch); err != nil {
			return nil, err
		}
		if err := e.store.UpdateSessionStatus(ctx, opts.RunID, StatusPatch{State: RunStateRunning}); err != nil {
			return nil, err
		}
	}

	var result *ModelRunResult
	if req.Background {
		result, err = e.runBackground(ctx, client, req, opts, logger, deadline)
	} else {
		result, err = e.runStreaming(ctx, client, req, opts, logger, start, deadline)
	}

	elapsed := e.clock.Now().Sub(start)
	if err != nil {
		err = asRunError(err)
		logger.Error("model call failed", "error", err, "duration_ms", elapsed.Milliseconds())
		if opts.RecordStatus && e.store != nil {
			patch := StatusPatch{State: RunStateError, Message: err.Error()}
			_ = e.store.UpdateModelRunStatus(ctx, opts.RunID, req.Model, patch)
			_ = e.store.UpdateSessionStatus(ctx, opts.RunID, patch)
		}
		return nil, err
	}

	result.Elapsed = elapsed
	logger.Info("model call completed",
		"mode", string(result.Mode),
		"duration_ms", elapsed.Milliseconds(),
		"total_tokens", result.Usage.TotalTokens,
	)
	if opts.RecordStatus && e.store != nil {
		patch := StatusPatch{State: RunStateCompleted, Usage: &result.Usage, LogLocator: opts.Log.Locator()}
		_ = e.store.UpdateModelRunStatus(ctx, opts.RunID, req.Model, patch)
		_ = e.store.UpdateSessionStatus(ctx, opts.RunID, StatusPatch{State: RunStateCompleted})
	}
	return result, nil
}

// validateRequest rejects malformed requests before any dispatch.
func validateRequest(req ModelRequest) error {
	if req.Model == "" {
		return &oerrors.ValidationError{
			Field:   "model",
			Message: "model identifier must not be empty",
		}
	}
	if req.Prompt == "" {
		return &oerrors.ValidationError{
			Field:      "prompt",
			Message:    "prompt must not be empty",
			Suggestion: "Provide a prompt as an argument or on stdin",
		}
	}
	return nil
}

func backendRequest(req ModelRequest) backend.Request {
	return backend.Request{
		Model:           req.Model,
		Input:           req.Prompt,
		MaxOutputTokens: req.MaxOutputTokens,
		WebSearch:       req.WebSearch,
		Background:      req.Background,
	}
}

// runStreaming opens a streaming connection and accumulates text deltas
// until the backend's terminal event, enforcing the absolute deadline after
// every stream event.
func (e *Executor) runStreaming(ctx context.Context, client backend.Client, req ModelRequest, opts RunOptions, logger *slog.Logger, start, deadline time.Time) (*ModelRunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := client.Stream(ctx, backendRequest(req))
	if err != nil {
		return nil, err
	}

	var (
		final     *backend.Response
		lastBeat  = e.clock.Now()
		quiet     bool
		sawOutput bool
	)

recv:
	for {
		now := e.clock.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			cancel()
			go drain(events)
			return nil, deadlineError(req.Model, now.Sub(start))
		}

		select {
		case ev, ok := <-events:
			if !ok {
				break recv
			}
			if ev.Err != nil {
				return nil, ev.Err
			}
			if ev.Delta != "" {
				sawOutput = true
				if err := opts.Log.WriteChunk(ev.Delta); err != nil {
					logger.Warn("log write failed", "error", err)
				}
				if opts.Sink != nil && !opts.Sink(ev.Delta) {
					// Advisory backpressure: stop progress logging but keep
					// consuming the stream.
					quiet = true
				}
			}
			if ev.Response != nil {
				final = ev.Response
			}
			if !quiet && e.cfg.HeartbeatInterval > 0 {
				if now := e.clock.Now(); now.Sub(lastBeat) >= e.cfg.HeartbeatInterval {
					logger.Info("stream in progress", "elapsed", now.Sub(start).Round(time.Second).String())
					lastBeat = now
				}
			}
		case <-e.clock.After(remaining):
			cancel()
			go drain(events)
			return nil, deadlineError(req.Model, e.clock.Now().Sub(start))
		}
	}

	if final == nil {
		return nil, &oerrors.TransportError{
			Reason:  oerrors.ReasonConnectionLost,
			Message: fmt.Sprintf("stream for %s ended without a final response", req.Model),
		}
	}

	// Some backends close the stream while the response is still being
	// finalized; absorb that with a short bounded poll before failing.
	if !final.Status.Terminal() {
		final, err = e.gracePoll(ctx, client, req.Model, final, logger, deadline)
		if err != nil {
			return nil, err
		}
	}

	if final.Status != backend.StatusCompleted {
		return nil, responseFailure(req.Model, final)
	}

	if sawOutput || final.OutputText != "" {
		// Trailing separator so piped output ends on a line boundary.
		if opts.Sink != nil {
			opts.Sink("\n")
		}
		if err := opts.Log.WriteLine(""); err != nil {
			logger.Warn("log write failed", "error", err)
		}
	}

	return &ModelRunResult{
		Mode:     ModeStreamed,
		Usage:    buildUsage(final.Usage, req.Pricing),
		Response: final,
	}, nil
}

// gracePoll retries retrieval on a fixed short cadence when a stream closed
// while the backend still reported a non-terminal status. This is a bounded
// wait distinct from the background poll loop; transport errors here
// propagate without backoff.
func (e *Executor) gracePoll(ctx context.Context, client backend.Client, model string, last *backend.Response, logger *slog.Logger, deadline time.Time) (*backend.Response, error) {
	if last.ID == "" {
		return nil, responseFailure(model, last)
	}

	graceDeadline := e.clock.Now().Add(e.cfg.GracePollMaxWait)
	if deadline.Before(graceDeadline) {
		graceDeadline = deadline
	}
	logger.Debug("stream closed while still processing; grace polling",
		"response_id", last.ID,
		"status", string(last.Status),
	)

	for {
		if !e.clock.Now().Before(graceDeadline) {
			return nil, &oerrors.ResponseError{
				Model:      model,
				Status:     string(last.Status),
				Diagnostic: "response still processing after stream closed",
			}
		}
		if err := e.clock.Sleep(ctx, e.cfg.GracePollInterval); err != nil {
			return nil, err
		}

		resp, err := client.Retrieve(ctx, last.ID)
		if err != nil {
			return nil, err
		}
		last = resp
		if resp.Status.Terminal() {
			return resp, nil
		}
	}
}

// runBackground submits the request once and delegates completion-waiting
// to the poll loop.
func (e *Executor) runBackground(ctx context.Context, client backend.Client, req ModelRequest, opts RunOptions, logger *slog.Logger, deadline time.Time) (*ModelRunResult, error) {
	job, err := client.Create(ctx, backendRequest(req))
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		// The backend did not accept the job; nothing to poll, nothing to
		// retry.
		return nil, &oerrors.ResponseError{
			Model:      req.Model,
			Status:     string(job.Status),
			Diagnostic: "backend did not return a job identifier",
		}
	}
	logger.Info("background job accepted", "job_id", job.ID, "status", string(job.Status))

	p := &poller{
		client:    client,
		clock:     e.clock,
		logger:    logger.With("job_id", job.ID),
		interval:  e.cfg.PollInterval,
		base:      e.cfg.BackoffBase,
		max:       e.cfg.BackoffMax,
		heartbeat: e.cfg.HeartbeatInterval,
	}
	resp, err := p.wait(ctx, req.Model, job.ID, deadline)
	if err != nil {
		return nil, err
	}

	if resp.Status != backend.StatusCompleted {
		return nil, responseFailure(req.Model, resp)
	}

	if resp.OutputText != "" {
		if opts.Sink != nil {
			opts.Sink(resp.OutputText)
			opts.Sink("\n")
		}
		if err := opts.Log.WriteLine(resp.OutputText); err != nil {
			logger.Warn("log write failed", "error", err)
		}
	}

	return &ModelRunResult{
		Mode:     ModeBackgrounded,
		Usage:    buildUsage(resp.Usage, req.Pricing),
		Response: resp,
	}, nil
}

// responseFailure builds the response-level error for a terminal
// non-success status, carrying whatever diagnostic the backend attached.
func responseFailure(model string, resp *backend.Response) *oerrors.ResponseError {
	diag := ""
	switch {
	case resp.Error != nil:
		diag = resp.Error.Message
		if resp.Error.Code != "" && diag == "" {
			diag = resp.Error.Code
		}
	case resp.Incomplete != nil:
		diag = "incomplete: " + resp.Incomplete.Code
		if resp.Incomplete.Message != "" {
			diag = "incomplete: " + resp.Incomplete.Message
		}
	}
	return &oerrors.ResponseError{
		Model:      model,
		Status:     string(resp.Status),
		Diagnostic: diag,
	}
}

// deadlineError is the timeout surfaced when the absolute deadline elapses.
// A job that is merely slow is not distinguished from one that is stuck.
func deadlineError(model string, waited time.Duration) *oerrors.TransportError {
	return &oerrors.TransportError{
		Reason:  oerrors.ReasonClientTimeout,
		Message: fmt.Sprintf("deadline exceeded after %s waiting for %s", waited.Round(time.Millisecond), model),
	}
}

// drain consumes leftover stream events so the producer goroutine can exit.
func drain(events <-chan backend.StreamEvent) {
	for range events {
	}
}
