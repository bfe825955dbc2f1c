// Package netretry implements the exponential backoff with jitter used by
// both forge bindings (internal/reporter/githubforge, adoforge) and LLM
// provider clients (internal/llm) when a network call fails transiently.
package netretry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config controls backoff timing.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultConfig mirrors the teacher's defaults: five attempts, doubling
// from two seconds up to a thirty-two second ceiling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     32 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff returns the wait duration for the given zero-indexed attempt:
// min(initial * multiplier^attempt, max) ± 25% jitter.
func Backoff(attempt int, cfg Config) time.Duration {
	base := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if base > float64(cfg.MaxBackoff) {
		base = float64(cfg.MaxBackoff)
	}

	jitterRange := 0.25 * base
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
	result := base + jitter

	if result > float64(cfg.MaxBackoff) {
		result = float64(cfg.MaxBackoff)
	}
	if result < 0 {
		result = 0
	}
	return time.Duration(result)
}

// Retryable is implemented by errors that know whether retrying could
// succeed; apperrors.Error satisfies it.
type Retryable interface {
	error
	IsRetryable() bool
}

// Operation is a unit of work that may be retried.
type Operation func(ctx context.Context) error

// ShouldRetry reports whether err implements Retryable and says yes.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if rr, ok := err.(interface{ IsRetryable() bool }); ok {
		return rr.IsRetryable()
	}
	if rr, ok := err.(interface{ Retryable() bool }); ok {
		return rr.Retryable()
	}
	return false
}

// Do runs op, retrying on retryable failures up to cfg.MaxAttempts total
// attempts, sleeping Backoff between tries. Context cancellation aborts
// immediately without consuming a retry.
func Do(ctx context.Context, op Operation, cfg Config, shouldRetry func(error) bool) error {
	if shouldRetry == nil {
		shouldRetry = ShouldRetry
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			return err
		}

		select {
		case <-time.After(Backoff(attempt, cfg)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
