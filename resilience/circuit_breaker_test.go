package resilience

import "testing"

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New("fact-checker", CircuitBreakerConfig{FailureThreshold: 3, OpenCycles: 1})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateClosed {
		t.Fatalf("breaker should stay closed below threshold, got %s", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("expected breaker to open on 3rd consecutive failure, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatalf("open breaker must reject calls")
	}
}

func TestBreakerHalfOpensAfterCooldownCycles(t *testing.T) {
	cb := New("researcher", CircuitBreakerConfig{FailureThreshold: 1, OpenCycles: 2})

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("expected open after single failure with threshold 1")
	}

	cb.AdvanceCycle()
	if cb.State() != StateOpen {
		t.Fatalf("should still be open after one cycle (OpenCycles=2)")
	}

	cb.AdvanceCycle()
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after cooldown elapses, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatalf("half-open breaker should allow a probe call")
	}
}

func TestBreakerHalfOpenFailureReopensAndResetsCooldown(t *testing.T) {
	cb := New("contrarian", CircuitBreakerConfig{FailureThreshold: 1, OpenCycles: 1})
	cb.RecordFailure()
	cb.AdvanceCycle()
	if cb.State() != StateHalfOpen {
		t.Fatalf("setup: expected half-open")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("expected half-open failure to reopen breaker, got %s", cb.State())
	}

	cb.AdvanceCycle()
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected cooldown to have reset and require a fresh cycle, got %s", cb.State())
	}
}

func TestBreakerSuccessClosesFromHalfOpen(t *testing.T) {
	cb := New("summarizer", CircuitBreakerConfig{FailureThreshold: 1, OpenCycles: 1})
	cb.RecordFailure()
	cb.AdvanceCycle()

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatalf("expected success from half-open to close breaker, got %s", cb.State())
	}
}
