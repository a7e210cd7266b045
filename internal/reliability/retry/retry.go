package retry

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Config holds retry strategy configuration
type Config struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// ShouldRetry classifies a failure. Nil retries every error.
	ShouldRetry func(error) bool
	// Sleep waits between attempts. Nil uses a timer honouring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each backoff
	OnRetry func(op string, attempt int, err error)
}

// DefaultConfig returns 3 attempts starting at one second, doubling
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retryable is a function that can be retried
type Retryable[T any] func(ctx context.Context) (T, error)

// Do executes fn until it succeeds, fails with an error ShouldRetry rejects,
// or MaxAttempts is reached. The last error is returned as is.
func Do[T any](ctx context.Context, cfg *Config, log *slog.Logger, op string, fn Retryable[T]) (T, error) {
	var zero T
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		backoff := Backoff(attempt, cfg)
		log.Warn("operation failed, retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(op, attempt, err)
		}
		if err := sleep(ctx, cfg, backoff); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// Backoff returns the delay after the given 1-based attempt:
// InitialBackoff * Multiplier^(attempt-1), capped at MaxBackoff.
func Backoff(attempt int, cfg *Config) time.Duration {
	mult := cfg.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	backoff := time.Duration(float64(cfg.InitialBackoff) * math.Pow(mult, float64(attempt-1)))
	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}
	return backoff
}

func sleep(ctx context.Context, cfg *Config, d time.Duration) error {
	if cfg.Sleep != nil {
		return cfg.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
