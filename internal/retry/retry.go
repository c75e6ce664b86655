// Package retry runs backend calls again when they fail with a retryable
// error kind, backing off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"diagram-go/internal/diagram"
	"diagram-go/internal/logging"
)

// ErrMaxRetriesExceeded is wrapped into the error returned once all attempts
// have failed.
var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

// Policy configures retry behavior with exponential backoff.
type Policy struct {
	MaxRetries  int           // Retry attempts after the first call (default: 2)
	BackoffBase time.Duration // Base delay for exponential backoff (default: 250ms)
	BackoffMax  time.Duration // Maximum delay cap (default: 5s)
	Jitter      float64       // Jitter factor 0-1 for randomization (default: 0.2)
}

// DefaultPolicy returns the policy used for outbound renderer calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  2,
		BackoffBase: 250 * time.Millisecond,
		BackoffMax:  5 * time.Second,
		Jitter:      0.2,
	}
}

// Result describes how a retried operation went.
type Result struct {
	Success  bool
	Attempts int
	LastErr  error
	Duration time.Duration
}

// retryable only lets transport and timeout failures through; validation,
// render and environment failures are final.
func retryable(err error) bool {
	return diagram.KindOf(err).Retryable()
}

// calculateBackoff returns the delay for a given attempt with jitter.
func (p Policy) calculateBackoff(attempt int) time.Duration {
	// Exponential: base * 2^attempt
	delay := float64(p.BackoffBase) * math.Pow(2, float64(attempt))

	if delay > float64(p.BackoffMax) {
		delay = float64(p.BackoffMax)
	}

	// delay * (1 ± jitter)
	jitterRange := delay * p.Jitter
	delay += (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(delay)
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done. The error returned for a final failure
// wraps fn's last error, so its kind is preserved.
func Do(ctx context.Context, op string, policy Policy, fn func(ctx context.Context) error) (*Result, error) {
	logger := logging.FromContext(ctx).With(
		"component", "retry",
		"op", op,
		"max_retries", policy.MaxRetries,
	)

	startTime := time.Now()
	result := &Result{}

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result.Attempts = attempt + 1
		logger := logger.With("attempt", attempt+1)

		if attempt > 0 {
			backoff := policy.calculateBackoff(attempt - 1)
			logger.Debug("backing off before retry", "delay", backoff)

			select {
			case <-ctx.Done():
				result.LastErr = ctx.Err()
				result.Duration = time.Since(startTime)
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return result, diagram.Timeout(op, ctx.Err())
				}
				// The caller gave up; that is not a backend timeout.
				return result, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(backoff):
			}
		}

		err := fn(ctx)
		if err == nil {
			result.Success = true
			result.Duration = time.Since(startTime)
			return result, nil
		}

		result.LastErr = err

		if !retryable(err) {
			result.Duration = time.Since(startTime)
			return result, err
		}

		logger.Warn("attempt failed", "err", err)
	}

	result.Duration = time.Since(startTime)
	logger.Error("max retries exceeded", "total_attempts", result.Attempts, "last_err", result.LastErr)
	return result, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, result.Attempts, result.LastErr)
}
