package oracle

import (
	"context"
	"time"
)

// Clock abstracts the timing source so deadline and backoff logic stay
// unit-testable without real sleeps. Every component in this package takes
// its clock by injection; nothing reads the wall clock directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for the given duration or until the context is done,
	// in which case it returns the context's error.
	Sleep(ctx context.Context, d time.Duration) error

	// After returns a channel that delivers the current time after the
	// given duration, for use in select loops.
	After(d time.Duration) <-chan time.Time
}

// systemClock is the production Clock backed by the time package.
type systemClock struct{}

// SystemClock returns the real-time clock.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
