package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YaganovValera/feed-bridge/common/backoff"
	"github.com/YaganovValera/feed-bridge/common/logger"
)

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	called := 0
	err := backoff.Execute(context.Background(), backoff.Config{MaxElapsedTime: time.Second}, logger.Nop(),
		func(ctx context.Context) error {
			called++
			return nil
		})
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if called != 1 {
		t.Errorf("expected 1 attempt, got %d", called)
	}
}

func TestExecute_EventualSuccess(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 5 * time.Millisecond, Multiplier: 1, MaxElapsedTime: time.Second}
	called := 0
	err := backoff.Execute(context.Background(), cfg, logger.Nop(), func(ctx context.Context) error {
		called++
		if called < 3 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if called != 3 {
		t.Errorf("expected 3 attempts, got %d", called)
	}
}

func TestExecute_MaxRetriesExceeded(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 5 * time.Millisecond, Multiplier: 1, MaxElapsedTime: 40 * time.Millisecond}
	called := 0
	err := backoff.Execute(context.Background(), cfg, logger.Nop(), func(ctx context.Context) error {
		called++
		return errors.New("always fail")
	})
	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if maxErr.Attempts != called {
		t.Errorf("attempts mismatch: ErrMaxRetries.Attempts=%d, actual=%d", maxErr.Attempts, called)
	}
}

func TestExecute_PermanentStops(t *testing.T) {
	called := 0
	err := backoff.Execute(context.Background(), backoff.Config{InitialInterval: time.Millisecond}, logger.Nop(),
		func(ctx context.Context) error {
			called++
			return backoff.Permanent(errors.New("bad config"))
		})
	if err == nil || called != 1 {
		t.Fatalf("expected a single attempt and an error, got called=%d err=%v", called, err)
	}
}

func TestNewExponential_GrowthAndReset(t *testing.T) {
	bo, err := backoff.NewExponential(backoff.Config{
		InitialInterval: time.Second,
		Multiplier:      1.7,
		MaxInterval:     15 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewExponential: %v", err)
	}
	want := []time.Duration{
		time.Second,
		1700 * time.Millisecond,
		2890 * time.Millisecond,
		4913 * time.Millisecond,
	}
	for i, w := range want {
		got := bo.NextBackOff()
		if diff := got - w; diff < -time.Millisecond || diff > time.Millisecond {
			t.Errorf("step %d: got %v want %v", i, got, w)
		}
	}
	for i := 0; i < 20; i++ {
		bo.NextBackOff()
	}
	if got := bo.NextBackOff(); got != 15*time.Second {
		t.Errorf("capped delay = %v; want 15s", got)
	}
	bo.Reset()
	if got := bo.NextBackOff(); got != time.Second {
		t.Errorf("after reset = %v; want 1s", got)
	}
}

func TestNewExponential_InvalidConfig(t *testing.T) {
	if _, err := backoff.NewExponential(backoff.Config{RandomizationFactor: 2}); err == nil {
		t.Fatal("expected error for randomization factor > 1")
	}
}

func TestWait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := backoff.Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v; want context.Canceled", err)
	}
}
