// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrRetriesExhausted marks a write that stayed retryable past the
// configured attempt ceiling. Handled like a fatal failure.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ScoringError means the event itself cannot be scored (missing or
// malformed fields). Retrying will not change the outcome, so it is
// terminal and routes to the dead-letter path.
type ScoringError struct {
	Field  string
	Reason string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("unscoreable event: field %q: %s", e.Field, e.Reason)
}

// SinkError classifies a sink write failure as retryable (transient
// infrastructure: timeout, throttling, connectivity) or fatal
// (permanent rejection: schema violation, authorization).
type SinkError struct {
	Sink      string
	Retryable bool
	Err       error
}

func (e *SinkError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s sink write failed (%s): %v", e.Sink, kind, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func RetryableSink(sink string, err error) *SinkError {
	return &SinkError{Sink: sink, Retryable: true, Err: err}
}

func FatalSink(sink string, err error) *SinkError {
	return &SinkError{Sink: sink, Retryable: false, Err: err}
}

// IsRetryable reports whether err should be handled by backoff-and-retry.
// A plain context deadline counts as a timed-out call, which is transient.
func IsRetryable(err error) bool {
	var se *SinkError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsScoringError reports whether err is terminal malformed-input.
func IsScoringError(err error) bool {
	var se *ScoringError
	return errors.As(err, &se)
}
