// Package retry provides exponential backoff strategies for broker operations.
// The consumer loop uses it between transient poll failures and the chat service
// uses it to repeat publishes the broker client refused to enqueue.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Strategy defines the backoff behavior for repeated broker operations.
// It implements exponential backoff with configurable parameters.
//
// The schedule follows: delay = min(BaseDelay * ExponentialBase^attempt, MaxDelay)
//
// Example with defaults (100ms base, 2.0 exponential, 5s max):
//
//	Attempt 0: 100ms
//	Attempt 1: 200ms
//	Attempt 2: 400ms
//	Attempt 3: 800ms
//	Attempt 4: 1.6s
type Strategy struct {
	MaxAttempts     int           // Maximum attempts before giving up (0 = unlimited)
	BaseDelay       time.Duration // Initial delay (first retry)
	MaxDelay        time.Duration // Maximum delay cap
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the default backoff used between failed polls.
// Configuration: unlimited attempts, 100ms→5s exponential backoff.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     0,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
	}
}

// PublishStrategy returns the default strategy for repeating refused publishes.
// Configuration: 3 attempts, 50ms→1s exponential backoff.
func PublishStrategy() Strategy {
	return Strategy{
		MaxAttempts:     3,
		BaseDelay:       50 * time.Millisecond,
		MaxDelay:        time.Second,
		ExponentialBase: 2.0,
	}
}

// CalculateRetryDelay calculates the delay for a given attempt using exponential backoff.
// Formula: delay = min(BaseDelay * ExponentialBase^attemptNumber, MaxDelay)
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.capped(float64(s.BaseDelay))
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))
	return s.capped(delay)
}

func (s Strategy) capped(delay float64) time.Duration {
	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// IsRetryable checks if another attempt is allowed.
// Returns true if the attempt count is below the maximum attempts limit,
// or always when MaxAttempts is zero.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return s.MaxAttempts <= 0 || attemptCount < s.MaxAttempts
}

// Wait blocks for the delay of the given attempt or until ctx is done.
// It returns ctx.Err() when the context ends first.
func (s Strategy) Wait(ctx context.Context, attemptNumber int) error {
	timer := time.NewTimer(s.CalculateRetryDelay(attemptNumber))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op until it succeeds, retryable reports false for its error,
// the attempts are exhausted, or ctx is done. The last error is returned.
func (s Strategy) Do(ctx context.Context, retryable func(error) bool, op func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !retryable(err) || !s.IsRetryable(attempt+1) {
			return err
		}
		if waitErr := s.Wait(ctx, attempt); waitErr != nil {
			return err
		}
	}
}

// GetRetrySchedule returns a human-readable description of the retry schedule.
// Useful for debugging and for logging the configured behavior at startup.
//
// Example output:
//
//	Retry Schedule:
//	  Attempt 1: after 50ms
//	  Attempt 2: after 100ms
//	  → Give up
func (s Strategy) GetRetrySchedule() string {
	if s.MaxAttempts <= 0 {
		return fmt.Sprintf("Retry Schedule: %v → %v (unlimited)\n", s.CalculateRetryDelay(0), s.MaxDelay)
	}
	schedule := "Retry Schedule:\n"
	for i := 1; i < s.MaxAttempts; i++ {
		schedule += fmt.Sprintf("  Attempt %d: after %v\n", i, s.CalculateRetryDelay(i-1))
	}
	schedule += "  → Give up\n"
	return schedule
}
