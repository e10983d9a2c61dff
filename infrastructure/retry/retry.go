// Package retry runs single-call operations under a bounded retry policy with
// randomized exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"image-vector-index/domain"
)

// Defaults used when a Policy field is left zero.
const (
	DefaultMaxAttempts = 15
	DefaultMinWait     = 15 * time.Second
	DefaultMaxWait     = 60 * time.Second
	DefaultMultiplier  = 1.0
)

// Policy decides how often and how long to wait between attempts of one call.
type Policy struct {
	// MaxAttempts bounds the total number of calls, the first one included.
	MaxAttempts int
	// MinWait and MaxWait bound every backoff window.
	MinWait time.Duration
	MaxWait time.Duration
	// Multiplier scales the exponential window, in seconds (multiplier * 2^(n-1)).
	Multiplier float64

	// Retryable reports whether an error is worth another attempt.
	// Defaults to domain.IsTransient.
	Retryable func(error) bool
	// Sleep waits for d or until ctx is done. Defaults to a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter draws a duration uniformly from [lo, hi]. Defaults to math/rand/v2.
	Jitter func(lo, hi time.Duration) time.Duration
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Default returns the policy used for the vision API.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		MinWait:     DefaultMinWait,
		MaxWait:     DefaultMaxWait,
		Multiplier:  DefaultMultiplier,
	}
}

// ErrExhausted is wrapped into the error returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Window returns the backoff window [lo, hi] after the given failed attempt (1-based).
// hi grows as multiplier*2^(attempt-1) seconds and is clamped to [MinWait, MaxWait].
func (p Policy) Window(attempt int) (lo, hi time.Duration) {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	exp := p.Multiplier * math.Pow(2, float64(attempt-1))
	if math.IsInf(exp, 0) || exp > p.MaxWait.Seconds() {
		hi = p.MaxWait
	} else {
		hi = time.Duration(exp * float64(time.Second))
	}
	if hi < p.MinWait {
		hi = p.MinWait
	}
	if hi > p.MaxWait {
		hi = p.MaxWait
	}
	return p.MinWait, hi
}

// Do calls op until it succeeds, returns a non-retryable error, the context
// is done, or MaxAttempts calls have been made. On exhaustion the last error
// is returned wrapped together with ErrExhausted.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = op(ctx)
		if last == nil {
			return nil
		}
		if !p.Retryable(last) {
			return last
		}
		if attempt == p.MaxAttempts {
			break
		}

		lo, hi := p.Window(attempt)
		wait := p.Jitter(lo, hi)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, last)
		}
		if err := p.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, last)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.MinWait < 0 {
		p.MinWait = 0
	}
	if p.MaxWait <= 0 {
		p.MaxWait = DefaultMaxWait
	}
	if p.MaxWait < p.MinWait {
		p.MaxWait = p.MinWait
	}
	if p.Multiplier <= 0 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Retryable == nil {
		p.Retryable = domain.IsTransient
	}
	if p.Sleep == nil {
		p.Sleep = sleep
	}
	if p.Jitter == nil {
		p.Jitter = uniform
	}
	return p
}

func sleep(ctx context.Context, d time.Duration) error {
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

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
