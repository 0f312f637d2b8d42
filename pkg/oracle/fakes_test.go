package oracle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/unstableneutron/oracle/pkg/backend"
)

// fakeClock advances instantly on Sleep and records every requested
// duration, so backoff and deadline behavior is observable without real
// waits.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// after, when set, is returned from After so a test can force the
	// deadline branch of a select loop.
	after chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	if c.after != nil {
		return c.after
	}
	return make(chan time.Time)
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) recordedSleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// fakeBackend scripts the three client operations per test.
type fakeBackend struct {
	name       string
	streamFn   func(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error)
	createFn   func(ctx context.Context, req backend.Request) (*backend.Job, error)
	retrieveFn func(ctx context.Context, id string) (*backend.Response, error)

	mu            sync.Mutex
	streamCalls   int
	createCalls   int
	retrieveCalls int
}

func (f *fakeBackend) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeBackend) Stream(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error) {
	f.mu.Lock()
	f.streamCalls++
	f.mu.Unlock()
	return f.streamFn(ctx, req)
}

func (f *fakeBackend) Create(ctx context.Context, req backend.Request) (*backend.Job, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	return f.createFn(ctx, req)
}

func (f *fakeBackend) Retrieve(ctx context.Context, id string) (*backend.Response, error) {
	f.mu.Lock()
	f.retrieveCalls++
	f.mu.Unlock()
	return f.retrieveFn(ctx, id)
}

func (f *fakeBackend) retrieves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrieveCalls
}

// scriptedEvents builds a stream channel that delivers the given events and
// closes.
func scriptedEvents(events ...backend.StreamEvent) func(context.Context, backend.Request) (<-chan backend.StreamEvent, error) {
	return func(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error) {
		ch := make(chan backend.StreamEvent, len(events))
		for _, ev := range events {
			ch <- ev
		}
		close(ch)
		return ch, nil
	}
}

// fakeStore records every status write in order.
type fakeStore struct {
	mu      sync.Mutex
	session []StatusPatch
	models  map[string][]StatusPatch
}

func newFakeStore() *fakeStore {
	return &fakeStore{models: make(map[string][]StatusPatch)}
}

func (s *fakeStore) UpdateSessionStatus(ctx context.Context, runID string, patch StatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = append(s.session, patch)
	return nil
}

func (s *fakeStore) UpdateModelRunStatus(ctx context.Context, runID, model string, patch StatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[model] = append(s.models[model], patch)
	return nil
}

func (s *fakeStore) CreateLogWriter(runID, model string) (LogWriter, error) {
	return &memLogWriter{locator: "mem://" + runID + "/" + model}, nil
}

func (s *fakeStore) modelStates(model string) []RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RunState
	for _, p := range s.models[model] {
		out = append(out, p.State)
	}
	return out
}

func (s *fakeStore) sessionStates() []RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RunState
	for _, p := range s.session {
		out = append(out, p.State)
	}
	return out
}

// memLogWriter captures log output in memory.
type memLogWriter struct {
	mu      sync.Mutex
	buf     strings.Builder
	locator string
	closed  bool
}

func (w *memLogWriter) WriteChunk(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.WriteString(s)
	return nil
}

func (w *memLogWriter) WriteLine(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.WriteString(s)
	w.buf.WriteString("\n")
	return nil
}

func (w *memLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memLogWriter) Locator() string { return w.locator }

func (w *memLogWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// collectSink returns a sink that appends chunks to a slice.
func collectSink(chunks *[]string) Sink {
	var mu sync.Mutex
	return func(chunk string) bool {
		mu.Lock()
		*chunks = append(*chunks, chunk)
		mu.Unlock()
		return true
	}
}
