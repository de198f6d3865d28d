package gitx

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/davis7dotsh/betterctx/internal/logging"
)

// RetryConfig holds configuration for retry behavior of network git
// operations. The cache never retries beyond this policy; further retries
// are the caller's choice.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialDelay is the initial backoff delay between retries.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// JitterFactor adds randomness to delays (0.25 = ±25%).
	JitterFactor float64
}

// DefaultRetryConfig returns the default policy: 3 attempts, 1s initial
// delay, 30s cap, 2x growth, 25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.25,
	}
}

// calculateBackoff computes the delay before the given attempt (0-indexed),
// with jitter applied.
func (cfg RetryConfig) calculateBackoff(attempt int) time.Duration {
	if attempt == 0 {
		return 0
	}

	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= cfg.Multiplier
	}

	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	jitter := (rand.Float64()*2 - 1) * cfg.JitterFactor
	delay *= (1 + jitter)

	return time.Duration(delay)
}

// IsRetryable reports whether an error is transient and worth retrying:
// network timeouts, connection errors, server errors. Auth failures and
// not-found are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	if errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"connection reset",
		"connection refused",
		"connection timed out",
		"network is unreachable",
		"no route to host",
		"temporary failure",
		"dns",
		"lookup",
		"i/o timeout",
		"eof",
		"broken pipe",
		"502",
		"503",
		"504",
		"429",
		"too many requests",
		"internal server error",
		"service unavailable",
		"gateway timeout",
		"bad gateway",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// WithRetry executes op with the configured retry policy, respecting
// context cancellation between attempts. If MaxAttempts is <= 0 the
// operation executes exactly once.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, logger *logging.Logger, op func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if attempt > 0 {
			delay := cfg.calculateBackoff(attempt)
			if logger != nil {
				logger.Info("retrying git operation",
					"attempt", attempt+1,
					"max_attempts", maxAttempts,
					"delay", delay.Round(time.Millisecond))
			}

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := op()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}

		if attempt < maxAttempts-1 && logger != nil {
			logger.Warn("git operation failed, will retry",
				"attempt", attempt+1,
				"error", logging.RedactSensitive(err.Error()))
		}
	}

	return zero, lastErr
}

// WithRetryNoResult is WithRetry for operations that return only an error.
func WithRetryNoResult(ctx context.Context, cfg RetryConfig, logger *logging.Logger, op func() error) error {
	_, err := WithRetry(ctx, cfg, logger, func() (struct{}, error) {
		return struct{}{}, op()
	})

	return err
}
