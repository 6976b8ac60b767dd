// Package resilience retries store and export operations that fail for
// transient reasons such as lock contention, dropped connections or
// network timeouts.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first. Default: 3.
	Attempts int

	// Backoff is the delay before the first retry; it doubles on each
	// further retry up to MaxBackoff. Defaults: 250ms and 5s.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Retryable decides whether an error is worth another try. IsTransient
	// is used when nil.
	Retryable func(err error) bool
}

// DefaultPolicy suits a single transactional save or a metrics push.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Backoff:    250 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 250 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done. The last error is returned unchanged.
// op names the operation in logs.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for operations that return a value.
func DoVal[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || attempt >= p.Attempts || !p.Retryable(err) {
			return zero, err
		}

		d := p.delay(attempt)
		zap.L().Warn("retrying operation",
			zap.String("component", "resilience"),
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", d),
			zap.Error(err),
		)

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// delay is the backoff before retry n (1-based), with up to 20% jitter
// either way.
func (p Policy) delay(n int) time.Duration {
	d := p.Backoff
	for i := 1; i < n && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	jitter := (rand.Float64()*0.4 - 0.2) * float64(d)
	return d + time.Duration(jitter)
}
