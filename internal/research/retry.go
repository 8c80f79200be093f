package research

import (
	"context"
	"time"
)

// Policy is the retry discipline shared by every stage: at most Retries
// additional attempts, gated by ShouldRetry, with exponential backoff
// starting at Backoff. The pipeline uses one retry for transient failures;
// stages own their retries, the orchestrator performs none.
type Policy struct {
	// Retries is the number of additional attempts after the first
	Retries int

	// Backoff is the delay before the first retry; it doubles per attempt
	Backoff time.Duration

	// ShouldRetry gates retries by error; nil retries any error
	ShouldRetry func(error) bool
}

// retryOnce is the standard stage policy.
func retryOnce(backoff time.Duration) Policy {
	return Policy{
		Retries:     1,
		Backoff:     backoff,
		ShouldRetry: IsTransient,
	}
}

// Do runs op, retrying per the policy. It returns nil on the first success,
// the last error once attempts are exhausted, or the context error if the
// caller is cancelled while backing off.
func (p Policy) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			delay := p.Backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
