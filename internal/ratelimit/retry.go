package ratelimit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is an exponential retry policy shared by every call site.
type Policy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxRetries   int
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		MaxRetries:   5,
	}
}

func (p Policy) normalized() Policy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// BackOff builds a fresh backoff sequence for one operation.
func (p Policy) BackOff() backoff.BackOff {
	p = p.normalized()
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.MaxRetries))
}

// Retry runs fn until it succeeds, fails with an error retryable rejects,
// or the retry budget is spent. It returns the number of attempts made.
func (p Policy) Retry(
	ctx context.Context,
	retryable func(error) bool,
	fn func(ctx context.Context, attempt int) error,
	notify func(err error, wait time.Duration),
) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		err := fn(ctx, attempts)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if retryable == nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.RetryNotify(op, backoff.WithContext(p.BackOff(), ctx), notify)
	return attempts, err
}
