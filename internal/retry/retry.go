package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type Class int

const (
	Retryable Class = iota
	Fatal
)

// Unbounded as MaxAttempts keeps retrying until fn succeeds, Classify says Fatal
// or ctx is done.
const Unbounded = -1

type Policy struct {
	MaxAttempts int           // e.g. 5, or Unbounded
	BaseDelay   time.Duration // e.g. 100ms
	MaxDelay    time.Duration // e.g. 5s; equal to BaseDelay gives a fixed backoff
	Jitter      time.Duration // e.g. 100ms (<= BaseDelay recommended)

	// Classify decides whether an error is retryable.
	// If nil, default: retry on any non-nil error.
	Classify func(error) Class

	// OnRetry is optional hook for logging/metrics.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Fixed returns an unbounded policy sleeping d between attempts.
func Fixed(d time.Duration) Policy {
	return Policy{MaxAttempts: Unbounded, BaseDelay: d, MaxDelay: d}
}

// WithOnRetry returns a copy of p with the hook set.
func (p Policy) WithOnRetry(fn func(attempt int, wait time.Duration, err error)) Policy {
	p.OnRetry = fn
	return p
}

func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 1
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = Unbounded
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}

	classify := p.Classify
	if classify == nil {
		classify = func(err error) Class {
			if err == nil {
				return Fatal // unused
			}
			return Retryable
		}
	}

	var lastErr error
	for attempt := 1; p.MaxAttempts == Unbounded || attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if classify(err) == Fatal {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := backoff(p, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = errors.New("retry: exhausted with no error (unexpected)")
	}
	return lastErr
}

// Value is Do for functions producing a result.
func Value[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// exponential backoff with cap + jitter
func backoff(p Policy, attempt int) time.Duration {
	wait := p.MaxDelay
	if shift := attempt - 1; shift < 32 {
		if w := p.BaseDelay << shift; w > 0 && w < p.MaxDelay {
			wait = w
		}
	}
	if p.Jitter > 0 {
		wait += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return wait
}
