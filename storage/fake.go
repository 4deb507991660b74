package storage

import (
	"context"
	"strings"
	"sync"
)

// FakeBackend is an in-memory Backend for tests, avoiding any real
// SQLite/Mangle dependency so coordinator tests can focus purely on
// eviction and update semantics. Grounded on the same MockDiscovery
// fixture style used by search.FakeBackend.
type FakeBackend struct {
	mu         sync.Mutex
	rows       map[string]Row
	vectorHits []VectorResult
	vecSupported bool
	ontologyHits []OntologyResult
	ontologySupported bool
}

// NewFakeBackend returns an empty fake Backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{rows: make(map[string]Row)}
}

func (f *FakeBackend) Initialize(ctx context.Context) error { return nil }

func (f *FakeBackend) Persist(ctx context.Context, rows []Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.rows[r.Table+":"+r.ID] = r
	}
	return nil
}

func (f *FakeBackend) QueryBM25(ctx context.Context, text string, k int) ([]BM25Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []BM25Result
	needle := strings.ToLower(text)
	for key, r := range f.rows {
		if !strings.HasPrefix(key, "nodes:") {
			continue
		}
		t, _ := r.Columns["text"].(string)
		if strings.Contains(strings.ToLower(t), needle) {
			out = append(out, BM25Result{ID: r.ID, Score: 1})
		}
		if k > 0 && len(out) >= k {
			break
		}
	}
	return out, nil
}

// SetVectorResults configures what VectorSearch returns.
func (f *FakeBackend) SetVectorResults(supported bool, results []VectorResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vecSupported = supported
	f.vectorHits = results
}

func (f *FakeBackend) VectorSearch(ctx context.Context, vec []float32, k int) ([]VectorResult, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vectorHits, f.vecSupported, nil
}

// SetOntologyResults configures what OntologyQuery returns.
func (f *FakeBackend) SetOntologyResults(supported bool, results []OntologyResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ontologySupported = supported
	f.ontologyHits = results
}

func (f *FakeBackend) OntologyQuery(ctx context.Context, text string) ([]OntologyResult, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ontologyHits, f.ontologySupported, nil
}

func (f *FakeBackend) Teardown(ctx context.Context) error { return nil }
