package storage

import (
	"context"
	"testing"

	"github.com/autoresearch/orchestrator-core/querystate"
)

func testConfig() CoordinatorConfig {
	cfg := DefaultCoordinatorConfig()
	cfg.RAMBudgetBytes = 300
	cfg.Delta = 0
	cfg.ResidentFloor = 2
	return cfg
}

func TestPersistClaimAddsToResidentGraph(t *testing.T) {
	c := NewCoordinator(NewFakeBackend(), testConfig())
	ctx := context.Background()

	err := c.PersistClaim(ctx, querystate.Claim{ClaimID: "c1", Text: "paris is the capital of france"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ResidentCount() != 1 {
		t.Fatalf("expected 1 resident claim, got %d", c.ResidentCount())
	}
}

func TestEnforceRAMBudgetRespectsResidentFloor(t *testing.T) {
	cfg := testConfig()
	cfg.RAMBudgetBytes = 1 // force eviction pressure immediately
	c := NewCoordinator(NewFakeBackend(), cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		claim := querystate.Claim{ClaimID: idFor(i), Text: "claim text number " + idFor(i)}
		if err := c.PersistClaim(ctx, claim); err != nil {
			t.Fatalf("unexpected error persisting: %v", err)
		}
	}

	if c.ResidentCount() < cfg.ResidentFloor {
		t.Fatalf("expected resident count to never drop below floor %d, got %d", cfg.ResidentFloor, c.ResidentCount())
	}
}

func TestEnforceRAMBudgetNoEvictionUnderBudget(t *testing.T) {
	cfg := testConfig()
	cfg.RAMBudgetBytes = 1_000_000
	c := NewCoordinator(NewFakeBackend(), cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		claim := querystate.Claim{ClaimID: idFor(i), Text: "short"}
		if err := c.PersistClaim(ctx, claim); err != nil {
			t.Fatalf("unexpected error persisting: %v", err)
		}
	}

	if c.ResidentCount() != 5 {
		t.Fatalf("expected no eviction under budget, got resident count %d", c.ResidentCount())
	}
}

func TestUpdateClaimCreatesSupersedingClaim(t *testing.T) {
	c := NewCoordinator(NewFakeBackend(), testConfig())
	ctx := context.Background()

	if err := c.PersistClaim(ctx, querystate.Claim{ClaimID: "c1", Text: "v1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := c.UpdateClaim(ctx, "c1", func(cl querystate.Claim) querystate.Claim {
		cl.Text = "v2"
		return cl
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Supersedes != "c1" {
		t.Fatalf("expected supersedes c1, got %q", updated.Supersedes)
	}
	if updated.ClaimID == "c1" {
		t.Fatalf("expected a new claim id distinct from c1")
	}
}

func TestVectorSearchDegradesToEmptyWhenUnsupported(t *testing.T) {
	backend := NewFakeBackend()
	backend.SetVectorResults(false, nil)
	c := NewCoordinator(backend, testConfig())

	results, err := c.VectorSearch(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results when unsupported, got %v", results)
	}
}

func TestVectorSearchReturnsResultsWhenSupported(t *testing.T) {
	backend := NewFakeBackend()
	backend.SetVectorResults(true, []VectorResult{{ID: "c1", Score: 0.9}})
	c := NewCoordinator(backend, testConfig())

	results, err := c.VectorSearch(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c1" {
		t.Fatalf("expected 1 result for c1, got %v", results)
	}
}

func idFor(i int) string {
	return string(rune('a' + i))
}
