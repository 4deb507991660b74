package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/autoresearch/orchestrator-core/core"
)

// SQLiteStore is the embedded columnar store: nodes, edges, and
// embeddings tables backed by database/sql over either mattn/go-sqlite3
// (cgo builds) or modernc.org/sqlite (pure-Go builds) — see
// driver_cgo.go / driver_purego.go. Grounded on the pack's
// LocalStore (internal/store/local_graph.go, local_vector.go): a single
// *sql.DB guarded by an RWMutex, INSERT OR REPLACE for idempotent
// upserts, LIKE-based keyword scoring as the query_bm25 fallback when no
// full-text index is built.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger core.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Pass ":memory:"
// for an ephemeral store, as tests do.
func NewSQLiteStore(path string, logger core.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, core.NewError("storage.NewSQLiteStore", core.KindStorage, err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Initialize creates the nodes/edges/embeddings tables if they do not
// already exist.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			text TEXT,
			columns TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			src TEXT,
			dst TEXT,
			columns TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			vector TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("storage: schema init failed", map[string]interface{}{"error": err.Error()})
			return core.NewError("storage.SQLiteStore.Initialize", core.KindStorage, err)
		}
	}
	return nil
}

// Persist upserts rows into their respective tables. Nodes and edges
// store arbitrary attribute columns as a JSON blob, matching
// metadata-as-JSON-column approach; embeddings store only the vector.
func (s *SQLiteStore) Persist(ctx context.Context, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		colJSON, err := json.Marshal(row.Columns)
		if err != nil {
			return core.NewError("storage.SQLiteStore.Persist", core.KindStorage, err)
		}

		var stmt string
		var args []interface{}
		switch row.Table {
		case "nodes":
			text, _ := row.Columns["text"].(string)
			stmt = `INSERT OR REPLACE INTO nodes (id, text, columns) VALUES (?, ?, ?)`
			args = []interface{}{row.ID, text, string(colJSON)}
		case "edges":
			src, _ := row.Columns["src"].(string)
			dst, _ := row.Columns["dst"].(string)
			stmt = `INSERT OR REPLACE INTO edges (id, src, dst, columns) VALUES (?, ?, ?, ?)`
			args = []interface{}{row.ID, src, dst, string(colJSON)}
		case "embeddings":
			vecJSON, _ := row.Columns["vector"].(string)
			stmt = `INSERT OR REPLACE INTO embeddings (id, vector) VALUES (?, ?)`
			args = []interface{}{row.ID, vecJSON}
		default:
			return core.NewError("storage.SQLiteStore.Persist", core.KindConfig, nil).WithMessage("unknown table " + row.Table)
		}

		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			s.logger.Error("storage: persist failed", map[string]interface{}{"table": row.Table, "error": err.Error()})
			return core.NewError("storage.SQLiteStore.Persist", core.KindStorage, err)
		}
	}
	return nil
}

// QueryBM25 scores rows by keyword overlap. A real BM25 ranking is
// computed in-process over the candidate set returned by this LIKE
// query (see retrieval.ScoreBM25) — no full-text search library exists
// anywhere in the reference corpus, so the store itself only narrows
// candidates, exactly as VectorRecall narrows
// candidates with LIKE before any richer ranking is applied downstream.
func (s *SQLiteStore) QueryBM25(ctx context.Context, text string, k int) ([]BM25Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		k = 10
	}

	keywords := strings.Fields(strings.ToLower(text))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		conditions = append(conditions, "LOWER(text) LIKE ?")
		args = append(args, "%"+kw+"%")
	}
	query := fmt.Sprintf("SELECT id, text FROM nodes WHERE %s LIMIT ?", strings.Join(conditions, " OR "))
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewError("storage.SQLiteStore.QueryBM25", core.KindStorage, err)
	}
	defer rows.Close()

	var out []BM25Result
	for rows.Next() {
		var id, nodeText string
		if err := rows.Scan(&id, &nodeText); err != nil {
			continue
		}
		score := keywordOverlapScore(keywords, nodeText)
		out = append(out, BM25Result{ID: id, Score: score})
	}
	return out, nil
}

func keywordOverlapScore(keywords []string, text string) float64 {
	lower := strings.ToLower(text)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	if len(keywords) == 0 {
		return 0
	}
	return float64(matched) / float64(len(keywords))
}

// VectorSearch delegates to a VectorIndex built on the same *sql.DB, or
// reports unsupported when sqlite-vec was not compiled in.
func (s *SQLiteStore) VectorSearch(ctx context.Context, vec []float32, k int) ([]VectorResult, bool, error) {
	idx := NewVectorIndex(s.db, s.logger)
	return idx.Search(ctx, vec, k)
}

// OntologyQuery is not implemented by SQLiteStore itself; a coordinator
// pairs it with an OntologyStore (see ontology_store.go) and reports
// unsupported here so the pairing is explicit at the call site.
func (s *SQLiteStore) OntologyQuery(ctx context.Context, text string) ([]OntologyResult, bool, error) {
	return nil, false, nil
}

// Teardown closes the underlying database handle. Safe to call more
// than once.
func (s *SQLiteStore) Teardown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return core.NewError("storage.SQLiteStore.Teardown", core.KindStorage, err)
	}
	return nil
}
