package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/unstableneutron/oracle/pkg/backend"
	oerrors "github.com/unstableneutron/oracle/pkg/errors"
)

// poller waits for an already-accepted background job to reach a terminal
// state. The poll cadence is fixed; only genuine transport instability
// triggers exponential backoff, so ordinary polling stays responsive while
// a degraded endpoint is not hammered with retries.
type poller struct {
	client backend.Client
	clock  Clock
	logger *slog.Logger

	// interval is the fixed sleep between status retrievals.
	interval time.Duration

	// base and max bound the backoff delay applied after retryable
	// transport failures: min(base * 2^(attempt-1), max).
	base time.Duration
	max  time.Duration

	// heartbeat is how often a still-waiting poll logs progress.
	heartbeat time.Duration
}

// wait blocks until the job completes, fails terminally, or the absolute
// deadline elapses. The deadline is checked both before sleeping and after
// waking: a job that is merely slow is not distinguished from one that is
// stuck.
func (p *poller) wait(ctx context.Context, model, jobID string, deadline time.Time) (*backend.Response, error) {
	start := p.clock.Now()
	lastBeat := start
	attempt := 0

	for {
		if !p.clock.Now().Before(deadline) {
			return nil, deadlineError(model, p.clock.Now().Sub(start))
		}
		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return nil, err
		}
		if !p.clock.Now().Before(deadline) {
			return nil, deadlineError(model, p.clock.Now().Sub(start))
		}

		resp, err := p.client.Retrieve(ctx, jobID)
		if err != nil {
			err = asRunError(err)
			if !oerrors.IsRetryableTransport(err) {
				return nil, err
			}

			attempt++
			delay := backoffDelay(p.base, p.max, attempt)
			p.logger.Warn("transport failure during status poll; backing off",
				"error", err,
				"attempt", attempt,
				"delay", delay.String(),
			)
			if err := p.clock.Sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		// A successful retrieval resets the backoff counter, so the next
		// failure starts over at the base delay.
		attempt = 0

		switch resp.Status {
		case backend.StatusCompleted:
			return resp, nil
		case backend.StatusInProgress, backend.StatusQueued:
			if p.heartbeat > 0 {
				if now := p.clock.Now(); now.Sub(lastBeat) >= p.heartbeat {
					p.logger.Info("background job still running",
						"status", string(resp.Status),
						"elapsed", now.Sub(start).Round(time.Second).String(),
					)
					lastBeat = now
				}
			}
		default:
			return nil, responseFailure(model, resp)
		}
	}
}

// backoffDelay computes min(base * 2^(attempt-1), max) for attempt >= 1.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
