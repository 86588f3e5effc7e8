// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/ppiankov/factlens/internal/model"
)

// Policy describes how many times an operation is attempted and how long
// to wait between attempts. With the defaults the waits before attempts
// 1, 2 and 3 are 0s, 1s and 2s.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64

	// Retryable decides whether a failed attempt may be repeated.
	// Defaults to model.IsTransient.
	Retryable func(error) bool

	// OnRetry is called before each wait, with the attempt that just failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns three attempts with 1s base delay doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2,
	}
}

// sleep waits for d or until ctx is done. Tests replace it to avoid real waits.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay returns the wait before the given 1-indexed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 2
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(factor, float64(attempt-2)))
}

// Do calls op until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. It returns the value of the last
// attempt, the number of attempts made and the last error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = model.IsTransient
	}

	var (
		zero T
		err  error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := p.Delay(attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt-1, err, wait)
			}
			if serr := sleep(ctx, wait); serr != nil {
				return zero, attempt - 1, err
			}
		}

		var v T
		v, err = op(ctx)
		if err == nil {
			return v, attempt, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return zero, attempt, err
		}
	}
	return zero, maxAttempts, err
}
