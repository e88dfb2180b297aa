package retry

import (
	"context"
	"time"
)

// Policy bounds the attempt loop. Delays double each attempt starting from
// BaseDelay and are capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Classifier reports whether an error is worth another attempt. Terminal
// errors (bad signatures, illegal transitions) stop the loop immediately.
type Classifier func(err error) bool

// Do runs fn up to MaxAttempts times with exponential backoff between
// attempts. The last error comes back unwrapped so callers can classify it
// themselves: if retryable(err) still holds, the attempts were exhausted.
func Do(ctx context.Context, policy Policy, retryable Classifier, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := policy.BaseDelay * time.Duration(1<<(attempt-2))
			if policy.MaxDelay > 0 && backoff > policy.MaxDelay {
				backoff = policy.MaxDelay
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
