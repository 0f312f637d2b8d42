package oracle

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unstableneutron/oracle/pkg/backend"
	oerrors "github.com/unstableneutron/oracle/pkg/errors"
)

// routingBackend dispatches stream behavior per model.
type routingBackend struct {
	mu      sync.Mutex
	streams map[string]func(ctx context.Context) (<-chan backend.StreamEvent, error)
	calls   map[string]int
}

func (r *routingBackend) Name() string { return "routing" }

func (r *routingBackend) Stream(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[req.Model]++
	fn := r.streams[req.Model]
	r.mu.Unlock()
	return fn(ctx)
}

func (r *routingBackend) Create(ctx context.Context, req backend.Request) (*backend.Job, error) {
	panic("not used")
}

func (r *routingBackend) Retrieve(ctx context.Context, id string) (*backend.Response, error) {
	panic("not used")
}

func (r *routingBackend) streamCalls(model string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[model]
}

func completedStream(text string, tokens int) func(ctx context.Context) (<-chan backend.StreamEvent, error) {
	return func(ctx context.Context) (<-chan backend.StreamEvent, error) {
		ch := make(chan backend.StreamEvent, 2)
		ch <- backend.StreamEvent{Delta: text}
		ch <- backend.StreamEvent{Response: &backend.Response{
			Status:     backend.StatusCompleted,
			OutputText: text,
			Usage:      backend.Usage{OutputTokens: tokens, TotalTokens: tokens},
		}}
		close(ch)
		return ch, nil
	}
}

func failingStream(err error) func(ctx context.Context) (<-chan backend.StreamEvent, error) {
	return func(ctx context.Context) (<-chan backend.StreamEvent, error) {
		return nil, err
	}
}

func testOrchestrator(client backend.Client, store StatusStore) *Orchestrator {
	exec := NewExecutor(StaticClient(client), ExecutorConfig{},
		WithClock(newFakeClock()),
		WithLogger(discardLogger()),
	)
	return NewOrchestrator(exec, store, discardLogger())
}

func TestMultiRunRejectsEmptyRequestList(t *testing.T) {
	o := testOrchestrator(&routingBackend{}, nil)

	_, err := o.Run(context.Background(), MultiRunInput{})

	var ve *oerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "models", ve.Field)
}

func TestMultiRunPartitionsOutcomes(t *testing.T) {
	client := &routingBackend{streams: map[string]func(ctx context.Context) (<-chan backend.StreamEvent, error){
		"gpt-5.2":     completedStream("fast answer", 3),
		"gpt-5.2-pro": completedStream("thorough answer", 9),
		"broken":      failingStream(&oerrors.BackendError{Backend: "openai", StatusCode: 500, Message: "server error"}),
	}}
	store := newFakeStore()
	o := testOrchestrator(client, store)

	summary, err := o.Run(context.Background(), MultiRunInput{
		RunID: "run-1",
		Requests: []ModelRequest{
			{Model: "gpt-5.2", Prompt: "q"},
			{Model: "gpt-5.2-pro", Prompt: "q"},
			{Model: "broken", Prompt: "q"},
		},
	})

	require.NoError(t, err)
	assert.Len(t, summary.Fulfilled, 2)
	assert.Len(t, summary.Rejected, 1)
	assert.Equal(t, "broken", summary.Rejected[0].Model)
	require.Error(t, summary.Rejected[0].Err)

	// Every model reaches running before dispatch and a terminal state
	// after settlement.
	assert.Equal(t, []RunState{RunStateRunning, RunStateCompleted}, store.modelStates("gpt-5.2"))
	assert.Equal(t, []RunState{RunStateRunning, RunStateCompleted}, store.modelStates("gpt-5.2-pro"))
	assert.Equal(t, []RunState{RunStateRunning, RunStateError}, store.modelStates("broken"))

	// One failure makes the whole session an error.
	sessionStates := store.sessionStates()
	require.NotEmpty(t, sessionStates)
	assert.Equal(t, RunStateRunning, sessionStates[0])
	assert.Equal(t, RunStateError, sessionStates[len(sessionStates)-1])
}

func TestMultiRunAllFulfilled(t *testing.T) {
	client := &routingBackend{streams: map[string]func(ctx context.Context) (<-chan backend.StreamEvent, error){
		"a": completedStream("one", 1),
		"b": completedStream("two", 2),
	}}
	store := newFakeStore()
	o := testOrchestrator(client, store)

	summary, err := o.Run(context.Background(), MultiRunInput{
		RunID: "run-2",
		Requests: []ModelRequest{
			{Model: "a", Prompt: "q"},
			{Model: "b", Prompt: "q"},
		},
	})

	require.NoError(t, err)
	assert.Len(t, summary.Fulfilled, 2)
	assert.Empty(t, summary.Rejected)

	sessionStates := store.sessionStates()
	assert.Equal(t, RunStateCompleted, sessionStates[len(sessionStates)-1])
}

func TestMultiRunAllRejected(t *testing.T) {
	client := &routingBackend{streams: map[string]func(ctx context.Context) (<-chan backend.StreamEvent, error){
		"a": failingStream(assert.AnError),
		"b": failingStream(assert.AnError),
	}}
	store := newFakeStore()
	o := testOrchestrator(client, store)

	summary, err := o.Run(context.Background(), MultiRunInput{
		RunID: "run-3",
		Requests: []ModelRequest{
			{Model: "a", Prompt: "q"},
			{Model: "b", Prompt: "q"},
		},
	})

	require.NoError(t, err, "per-model failures are data, not a run error")
	assert.Empty(t, summary.Fulfilled)
	assert.Len(t, summary.Rejected, 2)

	sessionStates := store.sessionStates()
	assert.Equal(t, RunStateError, sessionStates[len(sessionStates)-1])
}

func TestMultiRunCallbacksFollowSettlementOrder(t *testing.T) {
	// The slow model's stream does not produce its terminal event until the
	// fast model's callback has fired, so settlement order is forced.
	fastDone := make(chan struct{})
	client := &routingBackend{streams: map[string]func(ctx context.Context) (<-chan backend.StreamEvent, error){
		"slow": func(ctx context.Context) (<-chan backend.StreamEvent, error) {
			ch := make(chan backend.StreamEvent, 1)
			go func() {
				<-fastDone
				ch <- backend.StreamEvent{Response: &backend.Response{
					Status:     backend.StatusCompleted,
					OutputText: "slow answer",
				}}
				close(ch)
			}()
			return ch, nil
		},
		"fast": completedStream("fast answer", 2),
	}}
	o := testOrchestrator(client, nil)

	var order []string
	_, err := o.Run(context.Background(), MultiRunInput{
		Requests: []ModelRequest{
			{Model: "slow", Prompt: "q"},
			{Model: "fast", Prompt: "q"},
		},
		OnModelDone: func(outcome ModelExecutionOutcome) {
			order = append(order, outcome.Model)
			if outcome.Model == "fast" {
				close(fastDone)
			}
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"fast", "slow"}, order)
}

func TestMultiRunDedupesModels(t *testing.T) {
	client := &routingBackend{streams: map[string]func(ctx context.Context) (<-chan backend.StreamEvent, error){
		"a": completedStream("one", 1),
	}}
	o := testOrchestrator(client, nil)

	summary, err := o.Run(context.Background(), MultiRunInput{
		Requests: []ModelRequest{
			{Model: "a", Prompt: "q"},
			{Model: "a", Prompt: "q"},
		},
	})

	require.NoError(t, err)
	assert.Len(t, summary.Fulfilled, 1)
	assert.Equal(t, 1, client.streamCalls("a"))
}

func TestMultiRunDeliversPerModelOutput(t *testing.T) {
	client := &routingBackend{streams: map[string]func(ctx context.Context) (<-chan backend.StreamEvent, error){
		"a": completedStream("alpha", 1),
		"b": completedStream("beta", 1),
	}}
	o := testOrchestrator(client, nil)

	var mu sync.Mutex
	got := make(map[string]string)
	_, err := o.Run(context.Background(), MultiRunInput{
		Requests: []ModelRequest{
			{Model: "a", Prompt: "q"},
			{Model: "b", Prompt: "q"},
		},
		SinkFor: func(model string) Sink {
			return func(chunk string) bool {
				mu.Lock()
				got[model] += chunk
				mu.Unlock()
				return true
			}
		},
		OnModelDone: func(outcome ModelExecutionOutcome) {
			assert.NotEmpty(t, outcome.AnswerText)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "alpha\n", got["a"])
	assert.Equal(t, "beta\n", got["b"])
}
