// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
)

const (
	ErrExhausted     = errors.ErrorCode("retry_exhausted")
	ErrInvalidPolicy = errors.ErrorCode("retry_invalid_policy")
)

// Policy bounds a retry round.
type Policy struct {
	MaxAttempts  int           // total attempts, at least 1
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap for the growing delay
	Multiplier   float64       // growth factor, 2 when zero
	Jitter       bool          // randomise each delay within [delay/2, delay]
}

type permanent struct {
	err error
}

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err so Do stops retrying and returns it unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the policy is
// exhausted or ctx is done. The returned error wraps the last failure.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	errFactory := errors.New()

	if p.MaxAttempts < 1 || p.InitialDelay < 0 || p.MaxDelay < 0 || p.Multiplier < 0 {
		return errFactory.WithData(ErrInvalidPolicy, p)
	}
	if p.Multiplier == 0 {
		p.Multiplier = 2
	}

	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errFactory.Wrap(errors.ErrCancelled, err)
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		var perm *permanent
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.wait(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errFactory.Wrap(errors.ErrCancelled, ctx.Err())
		case <-timer.C:
		}

		next := time.Duration(float64(delay) * p.Multiplier)
		if next > p.MaxDelay || next < delay {
			next = p.MaxDelay
		}
		delay = next
	}

	return errFactory.Wrap(ErrExhausted, lastErr).WithData(p.MaxAttempts)
}

func (p Policy) wait(delay time.Duration) time.Duration {
	if !p.Jitter || delay <= 1 {
		return delay
	}
	half := delay / 2
	return half + rand.N(delay-half)
}
