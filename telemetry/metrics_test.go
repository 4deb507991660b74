package telemetry

import (
	"context"
	"testing"
)

func TestMetricsRegistryRecordsWithoutPanicking(t *testing.T) {
	r := NewMetricsRegistry()
	defer r.Shutdown(context.Background())

	r.Counter("cycles_run_total", "reasoning_mode", "dialectical")
	r.Gauge("agent_latency_p95_ms", 420.5, "agent", "synthesizer")
	r.Histogram("entailment_score", 0.82, "claim_type", "fact")
	r.EmitWithContext(context.Background(), "tokens_used_total", 128, "agent", "researcher")
}

func TestBaggageRoundTrip(t *testing.T) {
	r := NewMetricsRegistry()
	defer r.Shutdown(context.Background())

	ctx := WithBaggage(context.Background(), "query_id", "q-123", "cycle", "2")
	got := r.GetBaggage(ctx)

	if got["query_id"] != "q-123" {
		t.Fatalf("expected query_id=q-123, got %v", got)
	}
	if got["cycle"] != "2" {
		t.Fatalf("expected cycle=2, got %v", got)
	}
}

func TestGetBaggageEmptyWhenNoneSet(t *testing.T) {
	r := NewMetricsRegistry()
	if got := r.GetBaggage(context.Background()); got != nil {
		t.Fatalf("expected nil baggage map, got %v", got)
	}
}
