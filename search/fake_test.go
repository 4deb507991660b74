package search

import (
	"context"
	"errors"
	"testing"

	"github.com/autoresearch/orchestrator-core/core"
)

func TestFakeBackendSeedAndSearch(t *testing.T) {
	b := NewFakeBackend("fake")
	b.Seed("paris capital", RawResult{URL: "https://a", Title: "A"}, RawResult{URL: "https://b", Title: "B"})

	got, err := b.Search(context.Background(), "paris capital", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if b.CallCount() != 1 {
		t.Fatalf("expected CallCount 1, got %d", b.CallCount())
	}
}

func TestFakeBackendTruncatesToTopK(t *testing.T) {
	b := NewFakeBackend("fake")
	b.Seed("q", RawResult{URL: "1"}, RawResult{URL: "2"}, RawResult{URL: "3"})

	got, _ := b.Search(context.Background(), "q", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results after truncation, got %d", len(got))
	}
}

func TestFakeBackendIsIdempotentForSameQuery(t *testing.T) {
	b := NewFakeBackend("fake")
	b.Seed("q", RawResult{URL: "1"})

	first, _ := b.Search(context.Background(), "q", 10)
	second, _ := b.Search(context.Background(), "q", 10)

	if len(first) != len(second) || first[0].URL != second[0].URL {
		t.Fatalf("expected identical results across repeated calls, got %v and %v", first, second)
	}
}

func TestFakeBackendReturnsConfiguredError(t *testing.T) {
	b := NewFakeBackend("fake")
	injected := errors.New("unavailable")
	b.SetError(injected)

	_, err := b.Search(context.Background(), "q", 10)
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestFakeBackendRespectsCancellation(t *testing.T) {
	b := NewFakeBackend("fake")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Search(ctx, "q", 10)
	if core.Kind(err) != core.KindCancelled {
		t.Fatalf("expected KindCancelled, got %v", core.Kind(err))
	}
}
