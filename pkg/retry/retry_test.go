package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTransient = errors.New("transient error")
	errFatal     = errors.New("fatal error")
)

func testConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestDo_MaxAttemptsExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errTransient
	})

	if err == nil {
		t.Error("Expected error after max attempts, got nil")
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("Expected wrapped transient error, got: %v", err)
	}
	if attempts != 3 { // MaxAttempts + 1 (initial attempt)
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, errFatal) }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errFatal
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errTransient
	})

	if err == nil {
		t.Error("Expected error when disabled, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt when disabled, got: %d", attempts)
	}
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	v, err := DoWithResult(context.Background(), testConfig(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errTransient
		}
		return 42, nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if v != 42 {
		t.Errorf("Expected 42, got: %d", v)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, testConfig(), func() error { return errTransient })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}
