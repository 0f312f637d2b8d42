package oracle

import "context"

// StatusPatch is a partial update to a run's persisted state. Zero-valued
// fields other than State are left untouched by the store.
type StatusPatch struct {
	// State is the new run state.
	State RunState

	// Message carries the failure description for error states.
	Message string

	// Usage is recorded on completion when available.
	Usage *UsageSummary

	// LogLocator points at the run's persisted output log.
	LogLocator string
}

// LogWriter persists a run's incremental output. Implementations decide the
// on-disk format; the execution layer only honors the write contract.
type LogWriter interface {
	// WriteChunk appends an incremental piece of output without a newline.
	WriteChunk(s string) error

	// WriteLine appends a full line.
	WriteLine(s string) error

	// Close flushes and releases the writer.
	Close() error

	// Locator identifies the written log (e.g. a file path) for callers
	// that want to reattach to it later.
	Locator() string
}

// StatusStore is the session state boundary. The execution layer calls it
// synchronously at state transition points; it does not own the storage
// format and assumes the store serializes concurrent writes per key.
type StatusStore interface {
	// UpdateSessionStatus applies a patch to the session-level state.
	UpdateSessionStatus(ctx context.Context, runID string, patch StatusPatch) error

	// UpdateModelRunStatus applies a patch to one model's state within the
	// session.
	UpdateModelRunStatus(ctx context.Context, runID, model string, patch StatusPatch) error

	// CreateLogWriter opens the output log for one model's run.
	CreateLogWriter(runID, model string) (LogWriter, error)
}

// nopLogWriter discards all writes. Used when no store is configured.
type nopLogWriter struct{}

func (nopLogWriter) WriteChunk(string) error { return nil }
func (nopLogWriter) WriteLine(string) error  { return nil }
func (nopLogWriter) Close() error            { return nil }
func (nopLogWriter) Locator() string         { return "" }

// NopLogWriter returns a LogWriter that discards everything.
func NopLogWriter() LogWriter {
	return nopLogWriter{}
}
