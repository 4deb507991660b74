package storage

import (
	"context"

	"github.com/autoresearch/orchestrator-core/core"
)

// CompositeBackend implements Backend by combining the columnar
// SQLiteStore, its paired VectorIndex, and an OntologyStore into the
// single capability the Storage Coordinator consumes. This is the
// concrete StorageBackend this module ships; tests may substitute a
// simpler fake (see storage/fake.go) instead.
type CompositeBackend struct {
	columnar *SQLiteStore
	ontology *OntologyStore
}

// NewCompositeBackend wires a columnar store at path together with a
// fresh ontology store. The ontology store's Datalog program is
// evaluated once up front; construction fails only if that evaluation
// fails, which would indicate a packaging bug, not a runtime condition.
func NewCompositeBackend(path string, logger core.Logger) (*CompositeBackend, error) {
	columnar, err := NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	ontology, err := NewOntologyStore(logger)
	if err != nil {
		return nil, err
	}
	return &CompositeBackend{columnar: columnar, ontology: ontology}, nil
}

// Initialize implements Backend.
func (c *CompositeBackend) Initialize(ctx context.Context) error {
	return c.columnar.Initialize(ctx)
}

// Persist implements Backend, and additionally asserts any row carrying
// subject/predicate/object columns into the ontology store so
// graph_contradiction stays current.
func (c *CompositeBackend) Persist(ctx context.Context, rows []Row) error {
	if err := c.columnar.Persist(ctx, rows); err != nil {
		return err
	}
	for _, row := range rows {
		subject, sOK := row.Columns["subject"].(string)
		predicate, pOK := row.Columns["predicate"].(string)
		object, oOK := row.Columns["object"].(string)
		if sOK && pOK && oOK {
			if err := c.ontology.AssertClaim(ctx, row.ID, subject, predicate, object); err != nil {
				return err
			}
		}
	}
	return nil
}

// QueryBM25 implements Backend.
func (c *CompositeBackend) QueryBM25(ctx context.Context, text string, k int) ([]BM25Result, error) {
	return c.columnar.QueryBM25(ctx, text, k)
}

// VectorSearch implements Backend.
func (c *CompositeBackend) VectorSearch(ctx context.Context, vec []float32, k int) ([]VectorResult, bool, error) {
	return c.columnar.VectorSearch(ctx, vec, k)
}

// OntologyQuery implements Backend by delegating to the composite's
// OntologyStore rather than the columnar store's stub.
func (c *CompositeBackend) OntologyQuery(ctx context.Context, text string) ([]OntologyResult, bool, error) {
	results, err := c.ontology.Query(ctx, text)
	if err != nil {
		return nil, true, err
	}
	return results, true, nil
}

// Teardown implements Backend.
func (c *CompositeBackend) Teardown(ctx context.Context) error {
	return c.columnar.Teardown(ctx)
}
