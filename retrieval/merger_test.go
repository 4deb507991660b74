package retrieval

import (
	"context"
	"math"
	"testing"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/querystate"
	"github.com/autoresearch/orchestrator-core/search"
	"github.com/autoresearch/orchestrator-core/storage"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func weights() core.RankingWeights {
	return core.RankingWeights{BM25: 0.5, Semantic: 0.3, Credibility: 0.2}
}

func TestExternalLookupBlendsLiveResultsDeterministically(t *testing.T) {
	web := search.NewFakeBackend("web")
	web.Seed("paris capital", search.RawResult{URL: "https://a.example", Title: "A", Snippet: "paris is the capital"})
	news := search.NewFakeBackend("news")
	news.Seed("paris capital", search.RawResult{URL: "https://b.example", Title: "B", Snippet: "france news"})

	m := NewMerger(MergerConfig{Weights: weights()}, NewCache(), []search.Backend{web, news}, nil, nil, nil)

	docs, err := m.ExternalLookup(context.Background(), "Paris   Capital", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for _, d := range docs {
		if len(d.StageProvenance) != 1 || d.StageProvenance[0] != querystate.StageLive {
			t.Fatalf("expected live stage provenance, got %v", d.StageProvenance)
		}
	}
}

func TestExternalLookupCachesAcrossIdenticalCalls(t *testing.T) {
	web := search.NewFakeBackend("web")
	web.Seed("paris capital", search.RawResult{URL: "https://a.example", Title: "A", Snippet: "paris is the capital"})

	m := NewMerger(MergerConfig{Weights: weights()}, NewCache(), []search.Backend{web}, nil, nil, nil)

	ctx := context.Background()
	if _, err := m.ExternalLookup(ctx, "paris capital", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.ExternalLookup(ctx, "paris capital", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if web.CallCount() != 1 {
		t.Fatalf("expected the second lookup to hit the cache, backend was called %d times", web.CallCount())
	}
}

func TestExternalLookupCacheHitsAcrossWhitespaceAndCaseAliases(t *testing.T) {
	web := search.NewFakeBackend("web")
	web.Seed("hello world", search.RawResult{URL: "https://a.example", Title: "A", Snippet: "greeting"})

	m := NewMerger(MergerConfig{Weights: weights()}, NewCache(), []search.Backend{web}, nil, nil, nil)

	ctx := context.Background()
	first, err := m.ExternalLookup(ctx, "Hello  World", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := m.ExternalLookup(ctx, "hello world", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if web.CallCount() != 1 {
		t.Fatalf("expected exactly one backend fan-out across canonically-equivalent queries, got %d", web.CallCount())
	}
	if len(first) != len(second) {
		t.Fatalf("expected identical document counts across aliases, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].URL != second[i].URL {
			t.Fatalf("expected identical RetrievalDocument order across aliases at index %d, got %q vs %q", i, first[i].URL, second[i].URL)
		}
	}
}

func TestExternalLookupDegradesOnTransientBackendError(t *testing.T) {
	web := search.NewFakeBackend("web")
	web.SetError(core.NewError("test", core.KindTransient, nil))
	news := search.NewFakeBackend("news")
	news.Seed("paris capital", search.RawResult{URL: "https://b.example", Title: "B", Snippet: "france news"})

	m := NewMerger(MergerConfig{Weights: weights()}, NewCache(), []search.Backend{web, news}, nil, nil, nil)

	docs, err := m.ExternalLookup(context.Background(), "paris capital", 10)
	if err != nil {
		t.Fatalf("expected transient backend failure to degrade rather than fail the lookup, got %v", err)
	}
	if len(docs) != 1 || docs[0].URL != "https://b.example" {
		t.Fatalf("expected only the healthy backend's result, got %v", docs)
	}
}

func TestExternalLookupFailsOnNonTransientBackendError(t *testing.T) {
	web := search.NewFakeBackend("web")
	web.SetError(core.NewError("test", core.KindFatal, nil))

	m := NewMerger(MergerConfig{Weights: weights()}, NewCache(), []search.Backend{web}, nil, nil, nil)

	if _, err := m.ExternalLookup(context.Background(), "paris capital", 10); err == nil {
		t.Fatalf("expected a fatal backend error to fail the lookup")
	}
}

func TestExternalLookupHydratesFromStorageAndMergesByClaimID(t *testing.T) {
	backend := storage.NewFakeBackend()
	ctx := context.Background()
	if err := backend.Persist(ctx, []storage.Row{{
		Table:   "nodes",
		ID:      "claim-1",
		Columns: map[string]interface{}{"text": "paris capital of france"},
	}}); err != nil {
		t.Fatalf("unexpected error seeding storage: %v", err)
	}
	backend.SetVectorResults(true, []storage.VectorResult{{ID: "claim-1", Score: 0.9}})
	backend.SetOntologyResults(true, []storage.OntologyResult{{Predicate: "asserts", Args: []string{"claim-1", "paris", "capital_of", "france"}}})

	coord := storage.NewCoordinator(backend, storage.DefaultCoordinatorConfig())
	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("unexpected error initializing coordinator: %v", err)
	}

	m := NewMerger(MergerConfig{Weights: weights(), EmbeddingDim: 4}, NewCache(), nil, coord, &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3, 0.4}}, nil)

	docs, err := m.ExternalLookup(ctx, "paris capital", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected the bm25/vector/ontology hits to merge into a single document, got %d", len(docs))
	}
	doc := docs[0]
	if doc.URL != "claim-1" {
		t.Fatalf("expected merged document keyed by claim id, got %q", doc.URL)
	}
	stages := map[querystate.StorageStage]bool{}
	for _, s := range doc.StageProvenance {
		stages[s] = true
	}
	if !stages[querystate.StageBM25] || !stages[querystate.StageVector] || !stages[querystate.StageOntology] {
		t.Fatalf("expected bm25, vector, and ontology provenance, got %v", doc.StageProvenance)
	}
}

func TestExternalLookupDegradesWhenVectorIndexUnsupported(t *testing.T) {
	backend := storage.NewFakeBackend()
	ctx := context.Background()
	if err := backend.Persist(ctx, []storage.Row{{
		Table:   "nodes",
		ID:      "claim-1",
		Columns: map[string]interface{}{"text": "paris capital of france"},
	}}); err != nil {
		t.Fatalf("unexpected error seeding storage: %v", err)
	}
	backend.SetVectorResults(false, nil)

	coord := storage.NewCoordinator(backend, storage.DefaultCoordinatorConfig())
	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("unexpected error initializing coordinator: %v", err)
	}

	m := NewMerger(MergerConfig{Weights: weights(), EmbeddingDim: 4}, NewCache(), nil, coord, &fakeEmbedder{vec: []float32{0.1, 0.2}}, nil)

	docs, err := m.ExternalLookup(ctx, "paris capital", 10)
	if err != nil {
		t.Fatalf("expected degraded mode rather than an error, got %v", err)
	}
	if len(docs) != 1 || docs[0].URL != "claim-1" {
		t.Fatalf("expected the bm25 hit to still surface without the vector index, got %v", docs)
	}
	for _, s := range docs[0].StageProvenance {
		if s == querystate.StageVector {
			t.Fatalf("did not expect vector provenance when the vector index is unsupported")
		}
	}
}

func TestExternalLookupTruncatesToTopK(t *testing.T) {
	web := search.NewFakeBackend("web")
	web.Seed("q",
		search.RawResult{URL: "https://a.example", Title: "A"},
		search.RawResult{URL: "https://b.example", Title: "B"},
		search.RawResult{URL: "https://c.example", Title: "C"},
	)

	m := NewMerger(MergerConfig{Weights: weights()}, NewCache(), []search.Backend{web}, nil, nil, nil)

	docs, err := m.ExternalLookup(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected top_k truncation to 2 documents, got %d", len(docs))
	}
}

func TestQuantizeScoreRoundsToGrid(t *testing.T) {
	got := quantizeScore(0.123456789)
	want := 0.123457
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
}
