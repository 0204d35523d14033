package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDial = errors.New("dial failed")

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), fastConfig(3), func(int) (string, error) {
		attempts++
		return "ok", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if got != "ok" {
		t.Errorf("Expected ok, got: %q", got)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_SingleAttemptByDefault(t *testing.T) {
	cfg := DefaultConfig()
	attempts := 0
	_, err := Do(context.Background(), cfg, func(int) (int, error) {
		attempts++
		return 0, errDial
	})

	if !errors.Is(err, errDial) {
		t.Errorf("Expected errDial, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), fastConfig(3), func(int) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errDial
		}
		return 1, nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestDo_RetriesExhausted(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), fastConfig(2), func(int) (int, error) {
		attempts++
		return 0, errDial
	})

	if !errors.Is(err, errDial) {
		t.Errorf("Expected errDial, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), fastConfig(5), func(int) (int, error) {
		attempts++
		return 0, Permanent(errDial)
	})

	if !errors.Is(err, errDial) {
		t.Errorf("Expected errDial, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := Do(ctx, fastConfig(3), func(int) (int, error) {
		attempts++
		return 0, nil
	})

	if err == nil {
		t.Error("Expected error for cancelled context")
	}
	if attempts != 0 {
		t.Errorf("Expected 0 attempts, got: %d", attempts)
	}
}

func TestDelay(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	if d := Delay(cfg, 0); d != 100*time.Millisecond {
		t.Errorf("Delay(0) = %v", d)
	}
	if d := Delay(cfg, 2); d != 400*time.Millisecond {
		t.Errorf("Delay(2) = %v", d)
	}
	if d := Delay(cfg, 10); d != time.Second {
		t.Errorf("Delay(10) = %v, want capped", d)
	}
}
