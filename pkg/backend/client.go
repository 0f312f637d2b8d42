// Package backend defines the abstraction the execution layer uses to talk
// to a model backend. Adding a backend means supplying one Client
// implementation; nothing in the execution layer changes.
package backend

import "context"

// Status is a backend-reported job/response status.
type Status string

const (
	// StatusCompleted indicates the response finished successfully.
	StatusCompleted Status = "completed"

	// StatusInProgress indicates the backend is still computing.
	StatusInProgress Status = "in_progress"

	// StatusQueued indicates the job is accepted but not yet running.
	StatusQueued Status = "queued"

	// StatusFailed indicates a terminal backend-reported failure.
	StatusFailed Status = "failed"

	// StatusIncomplete indicates generation stopped early (e.g. token cap).
	StatusIncomplete Status = "incomplete"

	// StatusCancelled indicates the job was cancelled on the backend side.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a final state; a job in a terminal
// state will never change status again.
func (s Status) Terminal() bool {
	switch s {
	case StatusInProgress, StatusQueued:
		return false
	}
	return true
}

// Request contains the parameters for one backend call. It is built once per
// dispatch and not mutated afterwards.
type Request struct {
	// Model is the backend model identifier.
	Model string

	// Input is the fully rendered prompt text.
	Input string

	// MaxOutputTokens caps the response length. Zero means backend default.
	MaxOutputTokens int

	// WebSearch enables the backend's search tool for this request.
	WebSearch bool

	// Background requests out-of-band execution: the backend acknowledges
	// the submission and computes the result asynchronously.
	Background bool
}

// Usage contains token consumption as reported by the backend.
type Usage struct {
	// InputTokens is the number of tokens in the prompt.
	InputTokens int

	// OutputTokens is the number of tokens in the completion.
	OutputTokens int

	// ReasoningTokens is the subset of output tokens spent on reasoning.
	ReasoningTokens int

	// TotalTokens is the backend-reported total.
	TotalTokens int
}

// Diagnostic carries whatever explanation a backend attached to a failure.
type Diagnostic struct {
	// Code is the backend-specific error or incompleteness code.
	Code string

	// Message is the backend-supplied detail text.
	Message string
}

// Response is the normalized result of a backend call, for both the
// streaming and the background path.
type Response struct {
	// ID is the backend-assigned response/job identifier.
	ID string

	// Model is the model that actually handled the request.
	Model string

	// Status is the backend-reported status.
	Status Status

	// OutputText is the concatenated text output.
	OutputText string

	// Usage contains token consumption information.
	Usage Usage

	// Error carries the backend's diagnostic for failed responses.
	Error *Diagnostic

	// Incomplete carries the reason for an incomplete response.
	Incomplete *Diagnostic
}

// Job is the acknowledgement returned by a background submission.
type Job struct {
	// ID is the backend-assigned job identifier. Empty means the backend
	// did not accept the job.
	ID string

	// Status is the job's status at submission time.
	Status Status
}

// StreamEvent is a single element of a streaming response. Exactly one of
// the fields is meaningful per event; the final event before the channel
// closes carries either the normalized Response or an error.
type StreamEvent struct {
	// Delta is an incremental piece of output text.
	Delta string

	// Response is the final normalized response, set on the last event of a
	// stream that reached the backend's terminal message.
	Response *Response

	// Err is a failure that ended the stream.
	Err error
}

// Client is the single integration point with a specific backend.
type Client interface {
	// Name returns the backend identifier (e.g. "openai").
	Name() string

	// Stream opens a streaming connection for the request. The caller must
	// consume all events from the channel until it closes. Errors during
	// streaming are delivered as StreamEvent with Err set.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)

	// Create submits the request for background execution and returns the
	// backend's acknowledgement without waiting for completion.
	Create(ctx context.Context, req Request) (*Job, error)

	// Retrieve fetches the current state of a previously submitted job.
	Retrieve(ctx context.Context, id string) (*Response, error)
}
