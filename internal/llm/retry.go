package llm

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds how often a failed LLM call is retried. Attempts is the
// total number of tries; Delay grows linearly with each retry.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy matches the pipeline defaults: three tries with a two
// second base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 2 * time.Second}
}

// Do runs fn until it succeeds, the attempts are exhausted, or the context is
// cancelled. It returns nil on the first success and the last error after
// exhaustion.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.Delay * time.Duration(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
