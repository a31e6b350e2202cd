/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainguard-dev/clog"
)

// ErrInvalidConfig is returned by Validate for configurations that cannot be used.
var ErrInvalidConfig = errors.New("invalid retry config")

// RetryConfig bounds how a single outbound call is retried on rate-limit signals.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial call.
	// 0 means the call is attempted exactly once.
	MaxRetries int
	// BaseBackoff is the delay before the first retry. Each subsequent
	// retry doubles it.
	BaseBackoff time.Duration
	// MaxBackoff caps a single delay. Zero means no cap.
	MaxBackoff time.Duration
	// MaxJitter is the upper bound of random jitter added to a delay.
	// Leave it at zero when delays must be strictly increasing.
	MaxJitter time.Duration
}

// Validate checks that the retry configuration has valid values.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	case c.BaseBackoff < 0:
		return fmt.Errorf("%w: base backoff cannot be negative", ErrInvalidConfig)
	case c.MaxBackoff < 0:
		return fmt.Errorf("%w: max backoff cannot be negative", ErrInvalidConfig)
	case c.MaxJitter < 0:
		return fmt.Errorf("%w: max jitter cannot be negative", ErrInvalidConfig)
	case c.MaxBackoff > 0 && c.MaxBackoff < c.BaseBackoff:
		return fmt.Errorf("%w: max backoff %s is below base backoff %s", ErrInvalidConfig, c.MaxBackoff, c.BaseBackoff)
	}
	return nil
}

// DefaultRetryConfig returns the model-call policy: three retries starting
// at one second and doubling (1s, 2s, 4s).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// Backoff returns the delay before retry number attempt (0-based), without jitter.
func Backoff(cfg RetryConfig, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := cfg.BaseBackoff
	for range attempt {
		d *= 2
		if cfg.MaxBackoff > 0 && d >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return d
}

// Schedule returns every delay RetryWithBackoff would wait, in order, without jitter.
func Schedule(cfg RetryConfig) []time.Duration {
	out := make([]time.Duration, 0, cfg.MaxRetries)
	for attempt := range cfg.MaxRetries {
		out = append(out, Backoff(cfg, attempt))
	}
	return out
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

// RetryWithBackoff calls fn, and while it fails with an error isRetryable
// accepts, waits and calls it again up to cfg.MaxRetries more times.
// Errors isRetryable rejects are returned immediately.
func RetryWithBackoff[T any](ctx context.Context, cfg RetryConfig, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if !isRetryable(lastErr) {
			return result, lastErr
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		delay := Backoff(cfg, attempt) + jitter(cfg.MaxJitter)

		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", delay).
			With("error", lastErr.Error()).
			Warn("Transient failure, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, lastErr)
}
