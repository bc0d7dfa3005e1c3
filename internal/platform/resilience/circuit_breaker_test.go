package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestCircuitClosedToOpen verifies circuit opens after failure threshold
func TestCircuitClosedToOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-closed-to-open",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          1 * time.Second,
	})

	if cb.State() != StateClosed {
		t.Fatalf("Expected initial state Closed, got %s", cb.State())
	}

	failErr := errors.New("upstream failure")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return failErr
		})
		if cb.State() != StateClosed {
			t.Errorf("Expected Closed after %d failures, got %s", i+1, cb.State())
		}
	}

	// Third failure trips the breaker
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return failErr
	})
	if cb.State() != StateOpen {
		t.Errorf("Expected Open after 3 failures, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen while open, got %v", err)
	}

	t.Log("✓ State transition Closed → Open works correctly")
}

// TestCircuitOpenToHalfOpenToClosed verifies the recovery path
func TestCircuitOpenToHalfOpenToClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-recovery",
		FailureThreshold: 1,
		SuccessThreshold: 3,
		Timeout:          100 * time.Millisecond,
	})

	cb.ForceOpen()
	if cb.State() != StateOpen {
		t.Fatalf("Expected Open after ForceOpen, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen before probe delay elapsed, got %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	// Three successes in half-open close the circuit
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return nil
		})
		if err != nil {
			t.Errorf("Probe request %d failed unexpectedly: %v", i+1, err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected Closed after success threshold in half-open, got %s", cb.State())
	}

	t.Log("✓ State transition Open → HalfOpen → Closed works correctly")
}

// TestCircuitHalfOpenFailureReopens verifies a half-open failure re-trips the breaker
func TestCircuitHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-half-open-failure",
		FailureThreshold: 1,
		SuccessThreshold: 3,
		Timeout:          100 * time.Millisecond,
	})

	cb.ForceOpen()
	time.Sleep(150 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("still failing")
	})

	if cb.State() != StateOpen {
		t.Errorf("Expected Open after failure in half-open, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen after half-open failure, got %v", err)
	}

	t.Log("✓ State transition HalfOpen → Open on failure works correctly")
}

// TestCircuitIgnoresContextCancellation verifies caller cancellations don't count as failures
func TestCircuitIgnoresContextCancellation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-ignore-context",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          1 * time.Second,
	})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return context.Canceled
		})
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected Closed after context cancellations, got %s", cb.State())
	}

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return context.DeadlineExceeded
		})
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected Closed after deadline exceeded errors, got %s", cb.State())
	}

	t.Log("✓ Context cancellation correctly ignored for state transitions")
}

// TestCircuitStateChangeCallback verifies the callback fires for every transition
func TestCircuitStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []struct{ from, to State }

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-callback",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          100 * time.Millisecond,
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, struct{ from, to State }{from, to})
			mu.Unlock()
		},
	})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("failure")
		})
	}

	time.Sleep(150 * time.Millisecond)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})

	mu.Lock()
	defer mu.Unlock()

	expected := []struct{ from, to State }{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}

	if len(transitions) != len(expected) {
		t.Fatalf("Expected %d transitions, got %d", len(expected), len(transitions))
	}
	for i, want := range expected {
		if transitions[i] != want {
			t.Errorf("Transition %d: expected %s → %s, got %s → %s",
				i, want.from, want.to, transitions[i].from, transitions[i].to)
		}
	}

	t.Log("✓ OnStateChange callback invoked correctly for all transitions")
}

// TestCircuitSuccessResetsFailures verifies a success clears the consecutive failure count
func TestCircuitSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-success-reset",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          1 * time.Second,
	})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("failure")
		})
	}

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("failure")
		})
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected Closed (failures reset by success), got %s", cb.State())
	}

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("failure")
	})
	if cb.State() != StateOpen {
		t.Errorf("Expected Open after 3 consecutive failures, got %s", cb.State())
	}

	t.Log("✓ Success correctly resets failure count")
}

// TestCircuitDefaults verifies default thresholds are applied
func TestCircuitDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test-defaults"})

	if cb.failureThreshold != 5 {
		t.Errorf("Expected default failureThreshold 5, got %d", cb.failureThreshold)
	}
	if cb.successThreshold != 2 {
		t.Errorf("Expected default successThreshold 2, got %d", cb.successThreshold)
	}
	if cb.timeout != 60*time.Second {
		t.Errorf("Expected default timeout 60s, got %v", cb.timeout)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected initial state Closed, got %s", cb.State())
	}

	t.Log("✓ Default configuration applied correctly")
}

// TestCircuitReset verifies manual reset closes the breaker
func TestCircuitReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-reset",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          1 * time.Hour,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("failure")
	})
	if cb.State() != StateOpen {
		t.Fatalf("Expected Open, got %s", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("Expected Closed after reset, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Errorf("Expected request to succeed after reset, got %v", err)
	}

	t.Log("✓ Manual reset works correctly")
}

// TestExecuteWithResult verifies the generic result-returning path shares breaker state
func TestExecuteWithResult(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-with-result",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          1 * time.Hour,
	})

	val, err := ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("Expected 42, got %d", val)
	}

	_, err = ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("failure")
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected Open after failure, got %s", cb.State())
	}

	// Rejected calls return the zero value and ErrCircuitOpen
	val, err = ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 99, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if val != 0 {
		t.Errorf("Expected zero value on rejection, got %d", val)
	}

	t.Log("✓ ExecuteWithResult shares breaker state with Execute")
}
