// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/linkpulse/linkpulse/errors"
)

// SleepFunc waits for d or until ctx is done, whichever comes first
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how an operation is retried.
//
//	p := retry.Policy{Attempts: 3, Delay: 5 * time.Second}
//	err := p.Do(ctx, func(attempt int) error { return store.Write(ctx) })
type Policy struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 are treated as 1.
	Attempts int
	// Delay is the fixed wait between consecutive attempts
	Delay time.Duration
	// Sleep waits between attempts; nil uses a timer bound to ctx
	Sleep SleepFunc
	// OnRetry, when set, is called after a failed attempt that will be retried
	OnRetry func(attempt int, err error)
}

// ErrExhausted marks the error returned once every attempt has failed
var ErrExhausted = errors.New("retries exhausted")

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns it immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, ctx is done, or
// the attempts run out. Attempts are numbered from 1. The returned error
// wraps the last failure and, on exhaustion, ErrExhausted.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return errors.WithDetail(
				errors.Wrapf(lastErr, "retry wait interrupted after attempt %d", attempt),
				err.Error())
		}
	}

	return errors.WithDetail(
		errors.Mark(errors.Wrapf(lastErr, "failed after %d attempts", attempts), ErrExhausted),
		fmt.Sprintf("delay between attempts: %s", p.Delay))
}

// Sleep waits for d, returning ctx.Err() if ctx is done first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
