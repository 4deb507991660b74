// Package search defines the narrow SearchBackend capability the
// orchestration core consumes (§6.1): a single idempotent search
// operation over an external result source, plus an in-memory fixture
// implementation and a headless-browser implementation for tests and
// local deployments respectively.
package search

import (
	"context"
)

// RawResult is one unranked hit returned by a SearchBackend, before the
// hybrid retrieval merger scores and blends it with storage-resident
// documents.
type RawResult struct {
	URL     string
	Title   string
	Snippet string
	Meta    map[string]string
}

// Backend is the capability surface a search provider implements.
// Search must be idempotent for identical (query, top_k) pairs within
// the backend's own freshness window — the merger's cache relies on
// this to coalesce concurrent identical lookups.
type Backend interface {
	// Search returns up to topK unranked results for canonicalQuery.
	Search(ctx context.Context, canonicalQuery string, topK int) ([]RawResult, error)
	// Name identifies the backend for telemetry labels and source
	// attribution on returned results.
	Name() string
}

// Errors a Backend should report through the closed core.ErrorKind
// taxonomy: Transient and Unavailable both map to core.KindTransient
// (retriable by the agent runtime's retry-then-breaker path);
// Unauthorized maps to core.KindConfig (fatal — a credential problem
// will not resolve itself on retry).
