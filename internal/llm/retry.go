package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// retryableError marks failures worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// transientMarkers are substrings providers put in rate limit and server
// error messages.
var transientMarkers = []string{
	"429", "rate limit", "rate_limit", "overloaded",
	"500", "502", "503", "504", "internal server error", "service unavailable",
}

// classify wraps transient provider errors as retryable. Cancellation of the
// caller's context is never retried.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &retryableError{err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &retryableError{err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return &retryableError{err: err}
		}
	}
	return err
}
