package oracle

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"strings"
	"syscall"

	oerrors "github.com/unstableneutron/oracle/pkg/errors"
)

// ClassifyTransport maps an arbitrary raised error into the closed
// transport-failure taxonomy. It is a pure function: no I/O, no side
// effects, and it never fails — anything it does not recognize becomes
// ReasonUnknown.
func ClassifyTransport(err error) *oerrors.TransportError {
	if err == nil {
		return nil
	}

	// Already classified; keep the original reason.
	var te *oerrors.TransportError
	if stderrors.As(err, &te) {
		return te
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return &oerrors.TransportError{
			Reason:  oerrors.ReasonClientAbort,
			Message: "request cancelled by caller",
			Cause:   err,
		}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &oerrors.TransportError{
			Reason:  oerrors.ReasonClientTimeout,
			Message: "request deadline exceeded",
			Cause:   err,
		}
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return &oerrors.TransportError{
			Reason:  oerrors.ReasonClientTimeout,
			Message: netErr.Error(),
			Cause:   err,
		}
	}

	if isConnectionLost(err) {
		return &oerrors.TransportError{
			Reason:  oerrors.ReasonConnectionLost,
			Message: err.Error(),
			Cause:   err,
		}
	}

	return &oerrors.TransportError{
		Reason:  oerrors.ReasonUnknown,
		Message: err.Error(),
		Cause:   err,
	}
}

// isConnectionLost recognizes the connection-reset error shapes the HTTP
// client surfaces when the peer drops mid-stream.
func isConnectionLost(err error) bool {
	switch {
	case stderrors.Is(err, syscall.ECONNRESET),
		stderrors.Is(err, syscall.ECONNREFUSED),
		stderrors.Is(err, syscall.EPIPE),
		stderrors.Is(err, io.ErrUnexpectedEOF),
		stderrors.Is(err, net.ErrClosed):
		return true
	}

	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return true
	}

	// http2 stream errors and proxy resets don't always expose a typed
	// cause; fall back to the messages Go's transport is known to produce.
	msg := err.Error()
	for _, pattern := range []string{
		"connection reset",
		"broken pipe",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// asRunError normalizes an error raised during a model call: typed domain
// errors (validation, response, backend, transport) propagate unchanged,
// everything else goes through the transport classifier.
func asRunError(err error) error {
	if err == nil {
		return nil
	}

	var (
		ve *oerrors.ValidationError
		re *oerrors.ResponseError
		be *oerrors.BackendError
		te *oerrors.TransportError
	)
	if stderrors.As(err, &ve) || stderrors.As(err, &re) || stderrors.As(err, &be) || stderrors.As(err, &te) {
		return err
	}
	return ClassifyTransport(err)
}
