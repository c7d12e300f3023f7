// Package retry runs an operation again after transient failures.
//
// A single Policy is shared by the session manager and the command
// dispatcher. Which failures are transient is decided by the policy's
// Retryable classifier, so call sites never carry their own loops.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/clock"
	"github.com/kompox/patchbay/internal/logging"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 mean 1.
	MaxAttempts int
	// Backoff is the delay before the second attempt. It doubles for each
	// further attempt.
	Backoff time.Duration
	// MaxBackoff caps the delay. Zero means no cap.
	MaxBackoff time.Duration
	// Retryable classifies errors. Nil means model.IsRetryable.
	Retryable func(error) bool
	// Clock drives the backoff wait. Nil means the real clock.
	Clock clock.Clock
}

// Default retries once after 250ms, only failures that happened before the
// backend could observe the request.
func Default() Policy {
	return Policy{MaxAttempts: 2, Backoff: 250 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

// Once returns a copy of p that never retries.
func (p Policy) Once() Policy {
	p.MaxAttempts = 1
	return p
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable regardless of its classification.
// Do unwraps the marker before returning.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. attempt starts at 1.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = model.IsRetryable
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := logging.FromContext(ctx)

	delay := p.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= attempts || !retryable(err) {
			return err
		}
		logger.Warn(ctx, "retrying after transient failure", "op", op, "attempt", attempt, "backoff", delay.String(), "err", err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-clk.After(delay):
		}
		delay *= 2
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			delay = p.MaxBackoff
		}
	}
}
