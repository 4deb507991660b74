package telemetry

import (
	"context"
	"testing"
)

func TestInitBuildsAStdoutBackedProvider(t *testing.T) {
	p, err := Init("orchestrator-core-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Shutdown(context.Background())

	ctx, span := p.StartSpan(context.Background(), "test-span")
	if ctx == nil {
		t.Fatalf("expected a non-nil context from StartSpan")
	}
	span.End()
}

func TestInitOTLPBuildsAnHTTPBackedProvider(t *testing.T) {
	p, err := InitOTLP(context.Background(), "orchestrator-core-test", "localhost:4318")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Shutdown(context.Background())

	_, span := p.StartSpan(context.Background(), "test-span")
	span.End()
}

func TestInitOTLPRejectsEmptyServiceName(t *testing.T) {
	if _, err := InitOTLP(context.Background(), "", "localhost:4318"); err == nil {
		t.Fatalf("expected an error for an empty service name")
	}
}
