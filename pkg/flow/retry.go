package flow

import (
	"context"
	"time"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// RetryPolicy bounds the execute phase of a node. MaxRetries is the
// total number of attempts (1 means no retry); Wait is the fixed delay
// between attempts.
type RetryPolicy struct {
	MaxRetries int
	Wait       time.Duration
}

// normalize validates the policy and applies defaults: a zero
// MaxRetries means a single attempt.
func (p RetryPolicy) normalize() (RetryPolicy, error) {
	if p.MaxRetries < 0 {
		return p, schema.NewErrorf(schema.ErrCodeValidation, "max retries must be >= 1, got %d", p.MaxRetries)
	}
	if p.Wait < 0 {
		return p, schema.NewErrorf(schema.ErrCodeValidation, "retry wait must be non-negative, got %s", p.Wait)
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 1
	}
	return p, nil
}

// waitRetry sleeps for the retry delay or returns early if the context
// is cancelled during the wait.
func waitRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runExec drives a single execute phase under the retry policy.
// fn is attempted up to MaxRetries times; the attempt index rides on
// the context for fn to read via Attempt. Between failed attempts
// onRetry (if set) observes the attempt and error before the fixed
// delay. Once attempts are exhausted, fallback (if set) may substitute
// a result or propagate by returning an error; without a fallback the
// last error is wrapped as RETRY_EXHAUSTED.
func runExec(
	ctx context.Context,
	node string,
	policy RetryPolicy,
	onRetry func(attempt int, err error),
	fallback func(ctx context.Context, execErr error) (any, error),
	fn func(ctx context.Context) (any, error),
) (any, error) {
	var lastErr error
	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		out, err := fn(WithAttempt(ctx, attempt))
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !schema.IsRetryable(err) {
			break
		}
		if attempt < policy.MaxRetries-1 {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			if werr := waitRetry(ctx, policy.Wait); werr != nil {
				return nil, schema.NewError(schema.ErrCodeCancelled, "retry wait interrupted").
					WithNode(node).WithCause(werr)
			}
		}
	}

	if fallback != nil {
		out, err := fallback(ctx, lastErr)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"exec fallback failed after %d attempts", policy.MaxRetries).
				WithNode(node).WithCause(err)
		}
		return out, nil
	}

	return nil, schema.NewErrorf(schema.ErrCodeRetryExhausted,
		"exec failed after %d attempts", policy.MaxRetries).
		WithNode(node).WithCause(lastErr)
}
