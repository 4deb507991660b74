package retrieval

import (
	"context"
	"testing"

	"github.com/autoresearch/orchestrator-core/querystate"
)

type fakeMirror struct {
	store map[string][]querystate.RetrievalDocument
	gets  int
	sets  int
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{store: make(map[string][]querystate.RetrievalDocument)}
}

func (f *fakeMirror) Get(ctx context.Context, key string) ([]querystate.RetrievalDocument, bool) {
	f.gets++
	docs, ok := f.store[key]
	return docs, ok
}

func (f *fakeMirror) Set(ctx context.Context, key string, docs []querystate.RetrievalDocument) {
	f.sets++
	f.store[key] = docs
}

func TestCacheGetOrComputeWritesThroughToMirror(t *testing.T) {
	mirror := newFakeMirror()
	cache := NewCacheWithMirror(mirror)
	ctx := context.Background()
	key := NewCacheKey("paris capital", []string{"web"}, false, 0, 10)

	computed := 0
	compute := func() ([]querystate.RetrievalDocument, error) {
		computed++
		return []querystate.RetrievalDocument{{URL: "https://a.example"}}, nil
	}

	docs, err := cache.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if computed != 1 {
		t.Fatalf("expected exactly one compute call, got %d", computed)
	}
	if len(docs) != 1 || docs[0].URL != "https://a.example" {
		t.Fatalf("unexpected docs: %v", docs)
	}
	if mirror.sets != 1 {
		t.Fatalf("expected the freshly computed result to be written through to the mirror, got %d sets", mirror.sets)
	}
}

func TestCacheGetOrComputeFallsBackToMirrorOnLocalMiss(t *testing.T) {
	mirror := newFakeMirror()
	key := NewCacheKey("paris capital", []string{"web"}, false, 0, 10)
	mirror.store[key.String()] = []querystate.RetrievalDocument{{URL: "https://mirrored.example"}}

	cache := NewCacheWithMirror(mirror)
	ctx := context.Background()

	computed := 0
	compute := func() ([]querystate.RetrievalDocument, error) {
		computed++
		return []querystate.RetrievalDocument{{URL: "https://fresh.example"}}, nil
	}

	docs, err := cache.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if computed != 0 {
		t.Fatalf("expected the mirror hit to satisfy the lookup without invoking compute, got %d calls", computed)
	}
	if len(docs) != 1 || docs[0].URL != "https://mirrored.example" {
		t.Fatalf("expected the mirrored document, got %v", docs)
	}
	if mirror.gets == 0 {
		t.Fatalf("expected the mirror to be consulted on a local cache miss")
	}
}

func TestCacheWithoutMirrorNeverTouchesOne(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()
	key := NewCacheKey("tokyo capital", []string{"web"}, false, 0, 10)

	docs, err := cache.GetOrCompute(ctx, key, func() ([]querystate.RetrievalDocument, error) {
		return []querystate.RetrievalDocument{{URL: "https://b.example"}}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].URL != "https://b.example" {
		t.Fatalf("unexpected docs: %v", docs)
	}

	docs2, err := cache.GetOrCompute(ctx, key, func() ([]querystate.RetrievalDocument, error) {
		t.Fatalf("expected the second call to hit the local cache without recomputing")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs2) != 1 || docs2[0].URL != "https://b.example" {
		t.Fatalf("unexpected docs: %v", docs2)
	}
}
