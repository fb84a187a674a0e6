package resilience

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy decides whether and when a failed attempt is retried.
type Policy struct {
	MaxAttempts   int
	ConflictBase  time.Duration
	ConflictCap   time.Duration
	RateLimitBase time.Duration
	RateLimitCap  time.Duration
	DefaultBase   time.Duration
	DefaultCap    time.Duration
}

// DefaultPolicy allows three attempts in total.
var DefaultPolicy = Policy{
	MaxAttempts:   3,
	ConflictBase:  500 * time.Millisecond,
	ConflictCap:   2 * time.Second,
	RateLimitBase: 2 * time.Second,
	RateLimitCap:  10 * time.Second,
	DefaultBase:   time.Second,
	DefaultCap:    5 * time.Second,
}

// Next reports whether the attempt with zero-based index attempt, which failed
// with class, should be followed by another one, and after what delay.
// attempt counts attempts already made minus one, so with MaxAttempts 3
// Next(ClassConflict, 2) is false: the third write was the last.
func (p Policy) Next(class Class, attempt int) (bool, time.Duration) {
	if attempt+1 >= p.MaxAttempts || !retryable(class) {
		return false, 0
	}
	switch class {
	case ClassConflict:
		return true, min(p.ConflictBase*time.Duration(attempt+1), p.ConflictCap)
	case ClassRateLimit:
		return true, min(p.RateLimitBase<<attempt, p.RateLimitCap)
	default:
		return true, min(p.DefaultBase<<attempt, p.DefaultCap)
	}
}

func retryable(c Class) bool {
	return c == ClassConflict || c == ClassRateLimit || c == ClassNetwork
}

// ExhaustedMessage is shown when every attempt failed with a retryable error.
const ExhaustedMessage = "Your changes could not be saved after several attempts. Please retry."

// OnRetry runs before every attempt after the first, once the policy delay has
// elapsed. last is the failure of the previous attempt.
type OnRetry func(ctx context.Context, attempt int, last *Failure) error

// Retry runs op until it succeeds, fails with a non-retryable error, or the
// policy gives up. Every error it returns is a *Failure. attempt passed to op
// and onRetry is zero-based.
func Retry[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error), onRetry OnRetry) (T, error) {
	var (
		attempt int
		last    *Failure
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		ok, delay := p.Next(last.Class, attempt-1)
		return delay, !ok
	})

	v, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (T, error) {
		n := attempt
		attempt++

		if n > 0 && onRetry != nil {
			if err := onRetry(ctx, n, last); err != nil {
				return fail[T](err, &last)
			}
		}

		v, err := op(ctx, n)
		if err != nil {
			return fail[T](err, &last)
		}
		return v, nil
	})
	if err == nil {
		return v, nil
	}

	f := Classify(err)
	if f == last && f.Retryable {
		return v, &Failure{Class: f.Class, Message: ExhaustedMessage, Retryable: true, Err: f.Err}
	}
	return v, f
}

func fail[T any](err error, last **Failure) (T, error) {
	var zero T
	f := Classify(err)
	*last = f
	if f.Retryable {
		return zero, retry.RetryableError(f)
	}
	return zero, f
}
