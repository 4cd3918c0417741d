package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
		ShouldRetry:    RetryAll,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("upsert timed out")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return errors.New("always fails")
	})
	if err == nil || err.Error() != "always fails" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_DefaultPredicateSkipsPermanentErrors(t *testing.T) {
	cfg := fastConfig()
	cfg.ShouldRetry = nil

	var calls int
	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("invalid input")
	})
	if calls != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", calls)
	}
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	var calls int
	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call after cancel, got %d", calls)
	}
}

func TestDo_CustomBackoffAndOnRetry(t *testing.T) {
	var delays []int
	var retries []int
	cfg := RetryConfig{
		MaxAttempts: 4,
		ShouldRetry: RetryAll,
		Backoff: func(attempt int) time.Duration {
			delays = append(delays, attempt)
			return 0
		},
		OnRetry: func(attempt int, _ error) { retries = append(retries, attempt) },
	}
	_ = Do(context.Background(), cfg, func(_ context.Context) error { return errors.New("x") })

	if len(delays) != 3 || delays[0] != 0 || delays[2] != 2 {
		t.Errorf("unexpected backoff attempts: %v", delays)
	}
	if len(retries) != 3 || retries[0] != 1 || retries[2] != 3 {
		t.Errorf("unexpected retry attempts: %v", retries)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	v, err := DoVal(context.Background(), fastConfig(), func(_ context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("first")
		}
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("got (%d, %v), want (42, nil)", v, err)
	}
}

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: 100 * time.Millisecond, Multiplier: 2})
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		if got := computeBackoff(i, cfg); got != w {
			t.Errorf("attempt %d: got %v, want %v", i, got, w)
		}
	}
}

func TestComputeBackoff_CapsAtMax(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, Multiplier: 10})
	if got := computeBackoff(5, cfg); got != 3*time.Second {
		t.Errorf("got %v, want 3s", got)
	}
}

func TestComputeBackoff_WithJitterStaysInRange(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: 100 * time.Millisecond, Multiplier: 2, JitterFraction: 0.5})
	for range 50 {
		d := computeBackoff(0, cfg)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v out of range", d)
		}
	}
}

func TestBatchPolicy(t *testing.T) {
	var retries []int
	cfg := BatchPolicy(5, 250*time.Millisecond, func(attempt int, _ error) { retries = append(retries, attempt) })
	if cfg.MaxAttempts != 5 || cfg.InitialBackoff != 250*time.Millisecond {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.JitterFraction != 0 || cfg.Multiplier != 2.0 {
		t.Errorf("expected doubling without jitter, got %+v", cfg)
	}
	if !cfg.ShouldRetry(errors.New("constraint violation")) {
		t.Error("batch writes retry every error")
	}
	cfg.OnRetry(1, nil)
	if len(retries) != 1 {
		t.Error("OnRetry not wired")
	}

	def := BatchPolicy(0, 0, nil)
	if def.MaxAttempts != 3 || def.InitialBackoff != 100*time.Millisecond {
		t.Errorf("expected defaults, got %+v", def)
	}
}
