// Package retry provides exponential backoff with jitter for external
// calls, chiefly judge invocations and message-log fetches.
package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures retry behavior with exponential backoff.
type Config struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
	Multiplier float64       `json:"multiplier"`
	Jitter     bool          `json:"jitter"`
}

// DefaultConfig returns sensible defaults for judge and transport calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do runs operation, retrying retryable errors with exponential backoff.
// Non-retryable errors and context cancellation return immediately. The
// last error is returned when all attempts fail.
func Do(ctx context.Context, config Config, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if attempt >= config.MaxRetries || !IsRetryableError(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := calculateDelay(config, attempt)
		log.Debug().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max_attempts", config.MaxRetries+1).
			Dur("delay", delay).
			Msg("Retrying after failure")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func calculateDelay(config Config, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}
	return time.Duration(delay)
}

// IsRetryableError reports whether an error is worth retrying. Transient
// network and rate-limit failures qualify; everything else fails fast.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	retryable := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"no such host",
		"network unreachable",
		"broken pipe",
		"context deadline exceeded",
	}
	for _, s := range retryable {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
