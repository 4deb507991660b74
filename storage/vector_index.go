package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/autoresearch/orchestrator-core/core"
)

// VectorIndex wraps a sqlite-vec virtual table for nearest-k search.
// Grounded on init_vec.go (sqlite-vec registered as a
// cgo-only auto-loadable extension) and local_vector.go's embedding
// storage shape, generalized from LIKE-based "semantic" search to a
// real vec0 virtual table when the extension is available.
type VectorIndex struct {
	db     *sql.DB
	logger core.Logger

	mu          sync.Mutex
	initialized bool
	dim         int
}

// NewVectorIndex returns a VectorIndex over db. The virtual table is
// created lazily, on first Search or Upsert, once the embedding
// dimension is known.
func NewVectorIndex(db *sql.DB, logger core.Logger) *VectorIndex {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &VectorIndex{db: db, logger: logger}
}

// Available reports whether sqlite-vec was compiled into this build.
func (v *VectorIndex) Available() bool { return vecAvailable }

func (v *VectorIndex) ensureSchema(ctx context.Context, dim int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.initialized && v.dim == dim {
		return nil
	}
	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_claims USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`, dim)
	if _, err := v.db.ExecContext(ctx, stmt); err != nil {
		return core.NewError("storage.VectorIndex.ensureSchema", core.KindStorage, err)
	}
	v.initialized = true
	v.dim = dim
	return nil
}

// encodeVector serializes a []float32 to the little-endian byte layout
// sqlite-vec's vec0 module expects for a float[N] column.
func encodeVector(vec []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(vec) * 4)
	for _, f := range vec {
		binary.Write(buf, binary.LittleEndian, f)
	}
	return buf.Bytes()
}

// Upsert stores the embedding for id, keyed to the same row id the
// columnar store uses so vector hits can be joined back to claims.
func (v *VectorIndex) Upsert(ctx context.Context, id string, vec []float32) error {
	if !vecAvailable {
		return nil
	}
	if err := v.ensureSchema(ctx, len(vec)); err != nil {
		return err
	}
	_, err := v.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vec_claims (id, embedding) VALUES (?, ?)`,
		id, encodeVector(vec))
	if err != nil {
		return core.NewError("storage.VectorIndex.Upsert", core.KindStorage, err)
	}
	return nil
}

// Search returns the k nearest rows to vec by the vec0 table's distance,
// which is sqlite-vec's default (L2) since the table is created without a
// distance_metric option. supported
// is false when sqlite-vec was not compiled into this build — callers
// treat that as "no vector index", not an error, per §4.9.
func (v *VectorIndex) Search(ctx context.Context, vec []float32, k int) (results []VectorResult, supported bool, err error) {
	if !vecAvailable {
		return nil, false, nil
	}
	if len(vec) == 0 {
		return nil, true, nil
	}
	if k <= 0 {
		k = 10
	}
	if err := v.ensureSchema(ctx, len(vec)); err != nil {
		return nil, true, err
	}

	rows, qerr := v.db.QueryContext(ctx,
		`SELECT id, distance FROM vec_claims WHERE embedding MATCH ? AND k = ? ORDER BY distance`,
		encodeVector(vec), k)
	if qerr != nil {
		v.logger.Warn("storage: vector search failed, degrading to empty result", map[string]interface{}{"error": qerr.Error()})
		return nil, true, core.NewError("storage.VectorIndex.Search", core.KindStorage, qerr)
	}
	defer rows.Close()

	var out []VectorResult
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			continue
		}
		out = append(out, VectorResult{ID: id, Score: 1 - distance})
	}
	return out, true, nil
}
