package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
)

func TestRetryPolicy_Execute_Success(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))

	callCount := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		callCount++
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1", callCount)
	}
}

func TestRetryPolicy_Execute_SuccessAfterRetry(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	callCount := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		callCount++
		if callCount < 3 {
			return core.ErrRateLimit("rate limited")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if callCount != 3 {
		t.Errorf("callCount = %d, want 3", callCount)
	}
}

func TestRetryPolicy_Execute_NonRetryable(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	callCount := 0
	authErr := core.ErrAuth("invalid api key")
	err := policy.Execute(context.Background(), func(context.Context) error {
		callCount++
		return authErr
	})
	if !errors.Is(err, authErr) {
		t.Errorf("Execute() error = %v, want %v", err, authErr)
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1", callCount)
	}
}

func TestRetryPolicy_Execute_Exhausted(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	callCount := 0
	netErr := core.ErrNetwork(core.CodeGenerationFailed, "connection reset")
	err := policy.Execute(context.Background(), func(context.Context) error {
		callCount++
		return netErr
	})
	if callCount != 3 {
		t.Errorf("callCount = %d, want 3", callCount)
	}
	if !IsRetryExhausted(err) {
		t.Fatalf("expected RetryExhaustedError, got %T", err)
	}
	if !errors.Is(err, netErr) {
		t.Error("exhausted error should unwrap to the last error")
	}
	if !core.IsRetryable(err) {
		t.Error("category should survive unwrapping")
	}
}

func TestRetryPolicy_DefaultIsSingleAttempt(t *testing.T) {
	policy := DefaultRetryPolicy()

	callCount := 0
	netErr := core.ErrNetwork(core.CodeGenerationFailed, "connection reset")
	err := policy.Execute(context.Background(), func(context.Context) error {
		callCount++
		return netErr
	})
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1", callCount)
	}
	if err != netErr {
		t.Errorf("single attempt should return the error itself, got %v", err)
	}
}

func TestRetryPolicy_CalculateDelay(t *testing.T) {
	policy := NewRetryPolicy(
		WithBaseDelay(100*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0),
	)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		if got := policy.CalculateDelayNoJitter(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: delay = %v, want %v", tt.attempt, got, tt.want)
		}
		if got := policy.CalculateDelay(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: jitter-free delay = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_JitterBounds(t *testing.T) {
	policy := NewRetryPolicy(WithBaseDelay(100*time.Millisecond), WithJitter(0.2))
	for i := 0; i < 100; i++ {
		d := policy.CalculateDelay(1)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("delay %v outside jitter bounds", d)
		}
	}
}

func TestRetryPolicy_HonorsRetryAfter(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(2), WithBaseDelay(time.Hour), WithMaxDelay(time.Hour))

	var notified time.Duration
	callCount := 0
	err := policy.ExecuteWithNotify(context.Background(), func(context.Context) error {
		callCount++
		if callCount == 1 {
			return core.ErrRateLimit("slow down").WithDetail(RetryAfterDetail, 5*time.Millisecond)
		}
		return nil
	}, func(_ int, _ error, delay time.Duration) {
		notified = delay
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if notified != 5*time.Millisecond {
		t.Errorf("notified delay = %v, want 5ms", notified)
	}
}

func TestRetryPolicy_ContextCancellation(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(5), WithBaseDelay(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Execute(ctx, func(context.Context) error {
			callCount++
			return core.ErrTimeout("slow provider")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Execute() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1", callCount)
	}
}

func TestRetryPolicy_ImmediateContextCancel(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := policy.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("function should not run on a cancelled context")
	}
}

func TestWithMaxAttempts_FloorsAtOne(t *testing.T) {
	if got := NewRetryPolicy(WithMaxAttempts(0)).MaxAttempts; got != 1 {
		t.Errorf("MaxAttempts = %d, want 1", got)
	}
}
