package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryHint tunes the wait before the next attempt of a retryable failure.
// Wait, when set, replaces the exponential schedule. MaxDelay tightens the
// policy cap for this failure only.
type RetryHint struct {
	Wait     time.Duration
	MaxDelay time.Duration
}

type retryableError struct {
	err  error
	hint RetryHint
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// MarkRetryable tags err so RetryPolicy.Do attempts the call again.
func MarkRetryable(err error, hint RetryHint) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err, hint: hint}
}

// IsRetryable reports whether err (or anything it wraps) was marked retryable.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

func retryHintOf(err error) (RetryHint, bool) {
	var re *retryableError
	if !errors.As(err, &re) {
		return RetryHint{}, false
	}
	return re.hint, true
}

// RetryPolicy is the single retry helper applied to outbound provider calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration

	// Sleep and Rand are swapped in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
	// OnRetry observes each scheduled retry.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. The returned error wraps the last failure.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	if fn == nil {
		return fmt.Errorf("retry: nil func")
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		hint, ok := retryHintOf(lastErr)
		if !ok {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := p.wait(attempt, hint)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, lastErr)
		}
		if err := p.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, lastErr)
}

// Backoff is the un-hinted wait after the given failed attempt (1-based):
// min(BaseDelay*2^(attempt-1) + jitter, MaxDelay).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.wait(attempt, RetryHint{})
}

func (p RetryPolicy) wait(attempt int, hint RetryHint) time.Duration {
	if hint.Wait > 0 {
		return hint.Wait
	}
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := p.BaseDelay << shift
	if p.Jitter > 0 {
		delay += time.Duration(p.random() * float64(p.Jitter))
	}

	limit := p.MaxDelay
	if hint.MaxDelay > 0 && (limit <= 0 || hint.MaxDelay < limit) {
		limit = hint.MaxDelay
	}
	if limit > 0 && delay > limit {
		delay = limit
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func (p RetryPolicy) random() float64 {
	if p.Rand != nil {
		return p.Rand()
	}
	return rand.Float64()
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
