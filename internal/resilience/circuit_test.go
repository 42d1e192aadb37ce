package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int, reset time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
}

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("down")
		})
	}
}

func TestCircuit_StaysClosedBelowThreshold(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	failN(cb, 2)
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %v", cb.State())
	}
}

func TestCircuit_OpensAtThreshold(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	failN(cb, 3)
	if cb.State() != CircuitOpen {
		t.Errorf("expected open, got %v", cb.State())
	}

	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Fatal("call must not run while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuit_SuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	failN(cb, 2)
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return nil })
	failN(cb, 2)
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after interleaved success, got %v", cb.State())
	}
}

func TestCircuit_HalfOpenProbeCloses(t *testing.T) {
	cb := newTestBreaker(2, time.Minute)
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 2)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	now = now.Add(2 * time.Minute)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %v", cb.State())
	}

	err := cb.Execute(context.Background(), func(_ context.Context) error { return nil })
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %v", cb.State())
	}
}

func TestCircuit_HalfOpenProbeFailureReopens(t *testing.T) {
	cb := newTestBreaker(2, time.Minute)
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 2)
	now = now.Add(2 * time.Minute)

	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("still down")
	})
	// The clock has not advanced past the failed probe, so the circuit must
	// reject the next call.
	err := cb.Execute(context.Background(), func(_ context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen after failed probe, got %v", err)
	}
}

func TestCircuit_ShouldTripFiltersErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		ShouldTrip:       IsTransient,
	})
	// Permanent errors never open the circuit.
	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("unknown symbol")
		})
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed, got %v", cb.State())
	}

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return NewTransientError(errors.New("rate limited"), 429)
		})
	}
	if cb.State() != CircuitOpen {
		t.Errorf("expected open after transient failures, got %v", cb.State())
	}
}

func TestCircuit_Reset(t *testing.T) {
	cb := newTestBreaker(1, time.Hour)
	failN(cb, 1)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}
	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after reset, got %v", cb.State())
	}
}

func TestCircuit_OnStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	failN(cb, 1)
	cb.Reset()
	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %v", transitions)
	}
	if transitions[0] != "closed->open" || transitions[1] != "open->closed" {
		t.Errorf("unexpected transitions: %v", transitions)
	}
}

func TestExecuteVal_PassesValueThrough(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}
