package search

import (
	"context"
	"sync"

	"github.com/autoresearch/orchestrator-core/core"
)

// FakeBackend is an in-memory fixture Backend for tests, grounded on
// MockDiscovery: results are registered ahead of time keyed by query
// text, and Search simply looks them up under a lock rather than calling
// out to a real provider.
type FakeBackend struct {
	mu      sync.RWMutex
	name    string
	results map[string][]RawResult
	err     error
	calls   int
}

// NewFakeBackend returns an empty fixture backend identified by name
// (used for telemetry labels and source attribution, matching the real
// backends' Name() contract).
func NewFakeBackend(name string) *FakeBackend {
	return &FakeBackend{
		name:    name,
		results: make(map[string][]RawResult),
	}
}

// Seed registers the results Search should return for canonicalQuery.
func (f *FakeBackend) Seed(canonicalQuery string, results ...RawResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[canonicalQuery] = results
}

// SetError configures the error every subsequent Search call returns.
func (f *FakeBackend) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// CallCount reports how many times Search has been invoked.
func (f *FakeBackend) CallCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls
}

// Search implements Backend by looking up seeded results, truncating to
// topK, and is idempotent by construction — the same canonicalQuery
// always yields the same seeded slice until Seed is called again.
func (f *FakeBackend) Search(ctx context.Context, canonicalQuery string, topK int) ([]RawResult, error) {
	select {
	case <-ctx.Done():
		return nil, core.NewError("search.FakeBackend.Search", core.KindCancelled, ctx.Err())
	default:
	}

	f.mu.Lock()
	f.calls++
	err := f.err
	results := f.results[canonicalQuery]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if topK > 0 && topK < len(results) {
		return append([]RawResult(nil), results[:topK]...), nil
	}
	return append([]RawResult(nil), results...), nil
}

// Name implements Backend.
func (f *FakeBackend) Name() string { return f.name }
