package reddit

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newCallBackoff creates the exponential backoff used around individual
// platform calls: 2s → 60s, multiplier 2x, ±20% jitter.
var newCallBackoff = func() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 60 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// OverrideCallBackoff swaps the call backoff factory, returning a
// restore function. Test-only.
func OverrideCallBackoff(f func() *backoff.ExponentialBackOff) func() {
	prev := newCallBackoff
	newCallBackoff = f
	return func() { newCallBackoff = prev }
}

// Call runs fn with retry. Transient failures (5xx, rate limits) retry
// with exponential backoff up to maxTries; a structured rate limit
// overrides the next interval with the platform's retry-after. Authz and
// not-found failures return immediately.
func Call(ctx context.Context, maxTries uint, fn func() error) error {
	op := func() (struct{}, error) {
		err := fn()
		switch {
		case err == nil:
			return struct{}{}, nil
		case IsTransient(err):
			var rl *RateLimitError
			if errors.As(err, &rl) && rl.RetryAfter > 0 {
				return struct{}{}, &backoff.RetryAfterError{Duration: rl.RetryAfter + time.Second}
			}
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newCallBackoff()),
		backoff.WithMaxTries(maxTries))
	return err
}
