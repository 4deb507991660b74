// Package storage implements the StorageBackend capability (§6.1) — an
// embedded columnar store, a vector index, and an RDF-ish ontology
// store, fronted by a Storage Coordinator that enforces a RAM budget
// with deterministic eviction (§4.9). Grounded on the pack's
// codenerd internal/store package (SQLite-backed local stores, the
// sqlite-vec build-tagged vector extension) and google/mangle for the
// ontology store.
package storage

import (
	"context"
)

// Row is one record handed to a Backend's Persist call: a node or edge
// in the claim graph, keyed by ID with arbitrary attribute columns. The
// coordinator is responsible for shaping Claim/Source data into Rows;
// Backend implementations only need to persist and retrieve them.
type Row struct {
	Table   string // "nodes", "edges", or "embeddings"
	ID      string
	Columns map[string]interface{}
}

// BM25Result is one hit from Backend.QueryBM25.
type BM25Result struct {
	ID    string
	Score float64
}

// VectorResult is one hit from Backend.VectorSearch.
type VectorResult struct {
	ID    string
	Score float64 // similarity under the backend's configured metric
}

// OntologyResult is one derived fact from Backend.OntologyQuery.
type OntologyResult struct {
	Predicate string
	Args      []string
}

// Backend is the capability surface a storage provider implements, per
// §6.1. Initialize and Teardown are idempotent. VectorSearch and
// OntologyQuery are optional: an implementation that cannot support them
// returns (nil, false, nil) via their bool "supported" return rather
// than an error, so callers can distinguish "no results" from
// "capability absent".
type Backend interface {
	// Initialize provisions schema. Safe to call more than once.
	Initialize(ctx context.Context) error
	// Persist writes rows (nodes/edges/embeddings) to the columnar store.
	Persist(ctx context.Context, rows []Row) error
	// QueryBM25 ranks stored rows against text, returning up to k hits.
	QueryBM25(ctx context.Context, text string, k int) ([]BM25Result, error)
	// VectorSearch returns the k nearest rows to vec under the backend's
	// metric. supported is false when the vector index is unavailable.
	VectorSearch(ctx context.Context, vec []float32, k int) (results []VectorResult, supported bool, err error)
	// OntologyQuery evaluates text against the RDF/ontology store.
	// supported is false when no ontology store is configured.
	OntologyQuery(ctx context.Context, text string) (results []OntologyResult, supported bool, err error)
	// Teardown releases resources. Safe to call more than once.
	Teardown(ctx context.Context) error
}
