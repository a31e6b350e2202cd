/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/repopilot/agents/executor/retry"
	"github.com/google/go-cmp/cmp"
)

var errTooManyRequests = errors.New("429 too many requests")

func testRetryConfig() retry.RetryConfig {
	return retry.RetryConfig{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
	}
}

func onlyRateLimits(err error) bool {
	return errors.Is(err, errTooManyRequests)
}

func TestRetryWithBackoff_Success(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	got, err := retry.RetryWithBackoff(context.Background(), testRetryConfig(), "generate", onlyRateLimits, func() (string, error) {
		calls.Add(1)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff() = %v", err)
	}
	if got != "ok" {
		t.Errorf("result: got = %q, wanted %q", got, "ok")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls: got = %d, wanted 1", n)
	}
}

func TestRetryWithBackoff_RecoversAfterRateLimit(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	got, err := retry.RetryWithBackoff(context.Background(), testRetryConfig(), "generate", onlyRateLimits, func() (string, error) {
		if calls.Add(1) < 3 {
			return "", errTooManyRequests
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff() = %v", err)
	}
	if got != "recovered" {
		t.Errorf("result: got = %q, wanted %q", got, "recovered")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls: got = %d, wanted 3", n)
	}
}

func TestRetryWithBackoff_BudgetExhausted(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	_, err := retry.RetryWithBackoff(context.Background(), testRetryConfig(), "generate", onlyRateLimits, func() (string, error) {
		calls.Add(1)
		return "", errTooManyRequests
	})
	if err == nil {
		t.Fatal("RetryWithBackoff() = nil, wanted error")
	}
	// One initial call plus three retries.
	if n := calls.Load(); n != 4 {
		t.Errorf("calls: got = %d, wanted 4", n)
	}
	if !errors.Is(err, errTooManyRequests) {
		t.Errorf("errors.Is(%v, errTooManyRequests) = false", err)
	}
	if !strings.HasPrefix(err.Error(), "generate failed after 3 retries") {
		t.Errorf("error: got = %q", err)
	}
}

func TestRetryWithBackoff_NonRateLimitNotRetried(t *testing.T) {
	t.Parallel()
	permErr := errors.New("403 permission denied")

	var calls atomic.Int32
	_, err := retry.RetryWithBackoff(context.Background(), testRetryConfig(), "generate", onlyRateLimits, func() (string, error) {
		calls.Add(1)
		return "", permErr
	})
	if !errors.Is(err, permErr) {
		t.Fatalf("error: got = %v, wanted %v", err, permErr)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls: got = %d, wanted 1", n)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testRetryConfig()
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	_, err := retry.RetryWithBackoff(ctx, cfg, "generate", onlyRateLimits, func() (string, error) {
		cancel()
		return "", errTooManyRequests
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error: got = %v, wanted context.Canceled", err)
	}
}

func TestRetryWithBackoff_ZeroRetries(t *testing.T) {
	t.Parallel()
	cfg := testRetryConfig()
	cfg.MaxRetries = 0

	var calls atomic.Int32
	if _, err := retry.RetryWithBackoff(context.Background(), cfg, "generate", onlyRateLimits, func() (int, error) {
		calls.Add(1)
		return 0, errTooManyRequests
	}); err == nil {
		t.Fatal("RetryWithBackoff() = nil, wanted error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls: got = %d, wanted 1", n)
	}
}

func TestSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  retry.RetryConfig
		want []time.Duration
	}{{
		name: "default doubles from one second",
		cfg:  retry.DefaultRetryConfig(),
		want: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}, {
		name: "capped",
		cfg:  retry.RetryConfig{MaxRetries: 4, BaseBackoff: time.Second, MaxBackoff: 3 * time.Second},
		want: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second},
	}, {
		name: "uncapped",
		cfg:  retry.RetryConfig{MaxRetries: 3, BaseBackoff: 10 * time.Millisecond},
		want: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond},
	}, {
		name: "no retries",
		cfg:  retry.RetryConfig{BaseBackoff: time.Second},
		want: []time.Duration{},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, retry.Schedule(tt.cfg)); diff != "" {
				t.Errorf("Schedule() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScheduleStrictlyIncreasing(t *testing.T) {
	t.Parallel()
	delays := retry.Schedule(retry.DefaultRetryConfig())
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Errorf("delay[%d] = %v is not greater than delay[%d] = %v", i, delays[i], i-1, delays[i-1])
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     retry.RetryConfig
		wantErr bool
	}{{
		name: "default",
		cfg:  retry.DefaultRetryConfig(),
	}, {
		name:    "negative retries",
		cfg:     retry.RetryConfig{MaxRetries: -1},
		wantErr: true,
	}, {
		name:    "negative jitter",
		cfg:     retry.RetryConfig{MaxJitter: -time.Second},
		wantErr: true,
	}, {
		name:    "cap below base",
		cfg:     retry.RetryConfig{BaseBackoff: 2 * time.Second, MaxBackoff: time.Second},
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, retry.ErrInvalidConfig) {
				t.Errorf("errors.Is(%v, ErrInvalidConfig) = false", err)
			}
		})
	}
}
