package infra

import (
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("flush", 3, 2, time.Minute)

	if !cb.Allow() {
		t.Fatal("new breaker should allow")
	}
	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state below threshold: got %s, want CLOSED", cb.GetState())
	}
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Errorf("state at threshold: got %s, want OPEN", cb.GetState())
	}
	if cb.Allow() {
		t.Error("open breaker allowed an attempt")
	}
}

func TestCircuitBreakerSuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker("flush", 2, 1, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	if cb.GetState() != StateClosed {
		t.Errorf("got %s, want CLOSED after interleaved success", cb.GetState())
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker("flush", 1, 2, 10*time.Millisecond)
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("got %s, want OPEN", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should probe after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("got %s, want HALF_OPEN", cb.GetState())
	}

	cb.RecordSuccess()
	if cb.GetState() != StateHalfOpen {
		t.Errorf("one success of two: got %s, want HALF_OPEN", cb.GetState())
	}
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Errorf("got %s, want CLOSED after recovery", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("flush", 1, 1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should probe after timeout")
	}
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Errorf("got %s, want OPEN after failed probe", cb.GetState())
	}
	if cb.Allow() {
		t.Error("reopened breaker allowed an attempt")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF_OPEN"},
		{State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
