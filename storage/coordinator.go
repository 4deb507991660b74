package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/querystate"
)

// EvictionPolicy selects which resident graph node enforce_ram_budget
// evicts first once over budget.
type EvictionPolicy string

const (
	EvictLRU   EvictionPolicy = "lru"
	EvictScore EvictionPolicy = "score"
)

// CoordinatorConfig sizes the in-memory graph's RAM budget and
// eviction behavior, per §4.9.
type CoordinatorConfig struct {
	// RAMBudgetBytes is the soft ceiling on resident graph size.
	RAMBudgetBytes int64
	// Delta is the eviction hysteresis: eviction runs while
	// ram_usage > budget*(1-Delta), so a single eviction doesn't
	// immediately re-trigger on the next insert.
	Delta float64
	// ResidentFloor is the minimum number of nodes enforce_ram_budget
	// will never evict below, even if over budget.
	ResidentFloor int
	// Policy selects LRU or lowest-score eviction.
	Policy EvictionPolicy
	Logger core.Logger
}

// DefaultCoordinatorConfig returns the documented defaults: resident
// floor of 2 nodes, LRU policy, 10% hysteresis.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		RAMBudgetBytes: 64 * 1024 * 1024,
		Delta:          0.1,
		ResidentFloor:  2,
		Policy:         EvictLRU,
		Logger:         &core.NoOpLogger{},
	}
}

// residentNode is one claim resident in the in-memory graph.
type residentNode struct {
	claim      querystate.Claim
	sizeBytes  int64
	lastAccess time.Time
	score      float64 // used only under EvictScore
}

// Coordinator is the Storage Coordinator: it owns an in-memory resident
// graph in front of a Backend, enforcing a RAM budget with deterministic
// eviction. Grounded on LocalStore (mu-guarded
// *sql.DB access) generalized to a two-tier resident/persisted model —
// no equivalent tiered-eviction code exists in the pack itself, so this
// component's eviction policy is new domain logic built in the same
// mu-guarded-struct locking idiom.
type Coordinator struct {
	mu      sync.Mutex
	cfg     CoordinatorConfig
	backend Backend

	resident   map[string]*residentNode // claim_id -> node
	insertSeq  []string                 // insertion order, for deterministic tie-break
	ramUsage   int64
}

// NewCoordinator wires cfg to backend. Initialize must still be called
// before use.
func NewCoordinator(backend Backend, cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	if cfg.ResidentFloor <= 0 {
		cfg.ResidentFloor = 2
	}
	if cfg.Policy == "" {
		cfg.Policy = EvictLRU
	}
	return &Coordinator{
		cfg:      cfg,
		backend:  backend,
		resident: make(map[string]*residentNode),
	}
}

// Initialize provisions the backend's schema. Idempotent.
func (c *Coordinator) Initialize(ctx context.Context) error {
	return c.backend.Initialize(ctx)
}

// Backend returns the underlying Backend, for callers that need direct
// access to BM25/ontology queries alongside the coordinator's resident
// graph (e.g. the hybrid retrieval merger's storage hydration leg).
func (c *Coordinator) Backend() Backend {
	return c.backend
}

// PersistClaim adds claim to the in-memory graph and to the backend's
// columnar store (and ontology store, via the backend's own Persist),
// then enforces the RAM budget. Holds the coordinator's lock for the
// duration of both steps — persist and evict are one critical section,
// not two, matching the documented "persist and evict both hold the
// lock" contract without needing a literal re-entrant mutex.
func (c *Coordinator) PersistClaim(ctx context.Context, claim querystate.Claim) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistClaimLocked(ctx, claim)
}

func (c *Coordinator) persistClaimLocked(ctx context.Context, claim querystate.Claim) error {
	size := estimateClaimSize(claim)

	rows := []Row{{
		Table: "nodes",
		ID:    claim.ClaimID,
		Columns: map[string]interface{}{
			"text":            claim.Text,
			"type":            string(claim.Type),
			"created_by":      claim.CreatedByAgent,
			"cycle_created":   claim.CycleCreated,
			"supersedes":      claim.Supersedes,
		},
	}}
	for i, src := range claim.Sources {
		rows = append(rows, Row{
			Table: "edges",
			ID:    claim.ClaimID + ":source:" + strconv.Itoa(i),
			Columns: map[string]interface{}{
				"src": claim.ClaimID,
				"dst": src.URL,
			},
		})
	}
	if len(claim.Embedding) > 0 {
		rows = append(rows, Row{
			Table: "embeddings",
			ID:    claim.ClaimID,
			Columns: map[string]interface{}{
				"vector": encodeVectorJSON(claim.Embedding),
			},
		})
	}

	if err := c.backend.Persist(ctx, rows); err != nil {
		return err
	}

	if _, exists := c.resident[claim.ClaimID]; !exists {
		c.insertSeq = append(c.insertSeq, claim.ClaimID)
	}
	c.resident[claim.ClaimID] = &residentNode{
		claim:      claim,
		sizeBytes:  size,
		lastAccess: time.Now(),
	}
	c.ramUsage += size

	return c.enforceRAMBudgetLocked(ctx)
}

// EnforceRAMBudget is the exported form, acquiring the lock itself; use
// this when calling outside of PersistClaim (e.g. after an external
// config change lowers the budget).
func (c *Coordinator) EnforceRAMBudget(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enforceRAMBudgetLocked(ctx)
}

func (c *Coordinator) enforceRAMBudgetLocked(ctx context.Context) error {
	threshold := int64(float64(c.cfg.RAMBudgetBytes) * (1 - c.cfg.Delta))
	for c.ramUsage > threshold && len(c.resident) > c.cfg.ResidentFloor {
		victimID := c.selectVictimLocked()
		if victimID == "" {
			break
		}
		node := c.resident[victimID]
		delete(c.resident, victimID)
		c.ramUsage -= node.sizeBytes
		c.removeFromInsertSeqLocked(victimID)
		c.cfg.Logger.Debug("storage: evicted resident claim", map[string]interface{}{"claim_id": victimID})
		// The claim was already persisted to the columnar store by
		// PersistClaim; eviction only drops the in-memory copy.
	}
	return nil
}

func (c *Coordinator) selectVictimLocked() string {
	if len(c.resident) == 0 {
		return ""
	}
	switch c.cfg.Policy {
	case EvictScore:
		var best string
		var bestScore float64
		first := true
		for _, id := range c.insertSeq {
			node, ok := c.resident[id]
			if !ok {
				continue
			}
			if first || node.score < bestScore || (node.score == bestScore && id < best) {
				best = id
				bestScore = node.score
				first = false
			}
		}
		return best
	default: // EvictLRU
		var oldest string
		var oldestTime time.Time
		first := true
		for _, id := range c.insertSeq {
			node, ok := c.resident[id]
			if !ok {
				continue
			}
			if first || node.lastAccess.Before(oldestTime) || (node.lastAccess.Equal(oldestTime) && id < oldest) {
				oldest = id
				oldestTime = node.lastAccess
				first = false
			}
		}
		return oldest
	}
}

func (c *Coordinator) removeFromInsertSeqLocked(id string) {
	for i, seqID := range c.insertSeq {
		if seqID == id {
			c.insertSeq = append(c.insertSeq[:i], c.insertSeq[i+1:]...)
			return
		}
	}
}

// VectorSearch delegates to the backend, returning an empty slice
// (never an error) when the vector index is unavailable.
func (c *Coordinator) VectorSearch(ctx context.Context, embedding []float32, k int) ([]VectorResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results, supported, err := c.backend.VectorSearch(ctx, embedding, k)
	if err != nil {
		return nil, err
	}
	if !supported {
		return nil, nil
	}
	return results, nil
}

// PersistDocument writes a retrieval hit's URL/title/snippet into the
// backend's columnar store as a plain node row, keyed by URL, so a
// document surfaced by a live SearchBackend becomes reusable for future
// BM25 hydration (no embedding or ontology fact is written for it)
// instead of being re-fetched from the
// network every time. Unlike PersistClaim it does not enter the
// resident graph or count against the RAM budget — documents persisted
// here are claim-less search hits, not audited claims.
func (c *Coordinator) PersistDocument(ctx context.Context, id, title, snippet string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := Row{
		Table: "nodes",
		ID:    id,
		Columns: map[string]interface{}{
			"text":  snippet,
			"title": title,
		},
	}
	return c.backend.Persist(ctx, []Row{row})
}

// UpdateClaim creates a new Claim superseding claimID via patch, without
// mutating the original resident or persisted record.
func (c *Coordinator) UpdateClaim(ctx context.Context, claimID string, patch func(querystate.Claim) querystate.Claim) (querystate.Claim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.resident[claimID]
	if !ok {
		return querystate.Claim{}, core.NewError("storage.Coordinator.UpdateClaim", core.KindStorage, nil).WithMessage("claim not resident: " + claimID)
	}
	node.lastAccess = time.Now()

	next := patch(node.claim)
	if next.ClaimID == "" || next.ClaimID == claimID {
		next.ClaimID = uuid.NewString()
	}
	next.Supersedes = claimID
	if err := c.persistClaimLocked(ctx, next); err != nil {
		return querystate.Claim{}, err
	}
	return next, nil
}

// ResidentCount reports the number of claims currently resident, for
// tests asserting eviction behavior.
func (c *Coordinator) ResidentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resident)
}

// RAMUsage reports the coordinator's current estimated resident size.
func (c *Coordinator) RAMUsage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ramUsage
}

// Teardown releases the backend's resources.
func (c *Coordinator) Teardown(ctx context.Context) error {
	return c.backend.Teardown(ctx)
}

func estimateClaimSize(claim querystate.Claim) int64 {
	size := int64(len(claim.Text)) + 64
	for _, src := range claim.Sources {
		size += int64(len(src.URL) + len(src.Title) + len(src.Snippet))
	}
	size += int64(len(claim.Embedding)) * 4
	return size
}

func encodeVectorJSON(vec []float32) string {
	var b []byte
	b = append(b, '[')
	for i, f := range vec {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendFloat(b, float64(f), 'g', -1, 32)
	}
	b = append(b, ']')
	return string(b)
}
