package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/querystate"
	"github.com/autoresearch/orchestrator-core/search"
	"github.com/autoresearch/orchestrator-core/storage"
)

// quantum is the 10^-6 grid scores are rounded to so ordering is
// deterministic across platforms, per §4.7 step 5.
const quantum = 1e-6

// Mirror is an optional cross-process backing store for Cache, consulted
// on a local miss and written through on every local compute. A nil
// Mirror (the default) keeps Cache purely in-process; wiring one (e.g.
// storage.RedisCacheMirror) lets multiple orchestrator-core processes
// observe the same retrieval results for identical queries rather than
// each paying for its own backend fan-out.
type Mirror interface {
	Get(ctx context.Context, key string) ([]querystate.RetrievalDocument, bool)
	Set(ctx context.Context, key string, docs []querystate.RetrievalDocument)
}

// Cache is the writer-coalescing retrieval cache: readers never block
// each other, and concurrent writers for the same key coalesce via
// singleflight so only one does the work while the rest observe its
// result. Grounded on the pack's search-manager cache (singleflight.Group
// keyed by cache key, a read-through cache check before the coalesced
// call).
type Cache struct {
	mu     sync.RWMutex
	store  map[string][]querystate.RetrievalDocument
	group  singleflight.Group
	mirror Mirror
}

// NewCache returns an empty Cache with no cross-process mirror.
func NewCache() *Cache {
	return &Cache{store: make(map[string][]querystate.RetrievalDocument)}
}

// NewCacheWithMirror returns a Cache that falls back to mirror on a local
// miss and writes every freshly computed result through to it.
func NewCacheWithMirror(mirror Mirror) *Cache {
	c := NewCache()
	c.mirror = mirror
	return c
}

// Get returns the cached documents for key, if present locally.
func (c *Cache) Get(key CacheKey) ([]querystate.RetrievalDocument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs, ok := c.store[key.String()]
	return docs, ok
}

// Set stores docs locally under key and every alias, and (if wired) in
// the cross-process mirror under key alone.
func (c *Cache) Set(ctx context.Context, key CacheKey, aliases []string, docs []querystate.RetrievalDocument) {
	c.mu.Lock()
	c.store[key.String()] = docs
	for _, alias := range aliases {
		c.store[alias] = docs
	}
	c.mu.Unlock()
	if c.mirror != nil {
		c.mirror.Set(ctx, key.String(), docs)
	}
}

// GetOrCompute coalesces concurrent identical compute calls for key: the
// second caller observes the first's result rather than recomputing,
// per §5's "writers to the same key coalesce" concurrency rule. A local
// miss falls back to the mirror (if wired) before invoking compute.
func (c *Cache) GetOrCompute(ctx context.Context, key CacheKey, compute func() ([]querystate.RetrievalDocument, error)) ([]querystate.RetrievalDocument, error) {
	if docs, ok := c.Get(key); ok {
		return docs, nil
	}
	result, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if docs, ok := c.Get(key); ok {
			return docs, nil
		}
		if c.mirror != nil {
			if docs, ok := c.mirror.Get(ctx, key.String()); ok {
				return docs, nil
			}
		}
		docs, err := compute()
		if err != nil {
			return nil, err
		}
		if _, ok := c.Get(key); !ok {
			c.Set(ctx, key, nil, docs)
		}
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]querystate.RetrievalDocument), nil
}

// MergerConfig configures the merger's blend weights and storage
// coordination.
type MergerConfig struct {
	Weights      core.RankingWeights
	EmbeddingDim int
}

// Merger implements the Hybrid Retrieval Merger (§4.7): canonicalize,
// check cache, fan out to SearchBackends concurrently while also
// hydrating from storage, blend and quantize scores, sort
// deterministically, then cache and persist.
type Merger struct {
	cfg        MergerConfig
	cache      *Cache
	backends   []search.Backend
	coord      *storage.Coordinator
	embedder   Embedder
	credibility CredibilityScorer
}

// Embedder produces a query embedding for the vector-search leg of
// storage hydration. Degraded mode (no embedder, or it errors) simply
// omits the vec term, per §4.7's degraded-mode guarantee.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CredibilityScorer scores a document's source credibility in [0,1].
// A nil scorer yields a constant 0 credibility component rather than an
// error — credibility is not a required signal for determinism.
type CredibilityScorer interface {
	Score(doc querystate.RetrievalDocument) float64
}

// NewMerger wires a Merger over backends and a storage Coordinator.
// embedder and credibility may be nil.
func NewMerger(cfg MergerConfig, cache *Cache, backends []search.Backend, coord *storage.Coordinator, embedder Embedder, credibility CredibilityScorer) *Merger {
	if cache == nil {
		cache = NewCache()
	}
	return &Merger{cfg: cfg, cache: cache, backends: backends, coord: coord, embedder: embedder, credibility: credibility}
}

// ExternalLookup implements external_lookup(query, top_k) -> ranked
// RetrievalDocument list.
func (m *Merger) ExternalLookup(ctx context.Context, rawQuery string, topK int) ([]querystate.RetrievalDocument, error) {
	canonical := CanonicalizeQuery(rawQuery)

	backendNames := make([]string, len(m.backends))
	for i, b := range m.backends {
		backendNames[i] = b.Name()
	}
	hybrid := m.coord != nil
	key := NewCacheKey(canonical, backendNames, hybrid, m.cfg.EmbeddingDim, topK)

	return m.cache.GetOrCompute(ctx, key, func() ([]querystate.RetrievalDocument, error) {
		docs, err := m.compute(ctx, canonical, topK)
		if err != nil {
			return nil, err
		}
		aliases := LegacyAliases(canonical, backendNames, hybrid, m.cfg.EmbeddingDim, topK)
		m.cache.Set(ctx, key, aliases, docs)
		return docs, nil
	})
}

func (m *Merger) compute(ctx context.Context, canonical string, topK int) ([]querystate.RetrievalDocument, error) {
	type tagged struct {
		raw      search.RawResult
		stage    querystate.StorageStage
		backend  string
		original int
	}

	var mu sync.Mutex
	var collected []tagged

	g, gctx := errgroup.WithContext(ctx)

	for _, backend := range m.backends {
		backend := backend
		g.Go(func() error {
			results, err := backend.Search(gctx, canonical, topK)
			if err != nil {
				if core.IsTransient(err) {
					return nil // degraded mode: skip this backend, don't fail the whole lookup
				}
				return err
			}
			mu.Lock()
			for i, r := range results {
				collected = append(collected, tagged{raw: r, stage: querystate.StageLive, backend: backend.Name(), original: i})
			}
			mu.Unlock()
			return nil
		})
	}

	var bm25Results []storage.BM25Result
	var vectorResults []storage.VectorResult
	var ontologyResults []storage.OntologyResult
	if m.coord != nil {
		g.Go(func() error {
			results, supported, err := m.coord.Backend().OntologyQuery(gctx, canonical)
			if err != nil || !supported {
				return nil // degraded mode: skip the ontology stage, per §4.7
			}
			mu.Lock()
			ontologyResults = results
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			results, err := m.coord.Backend().QueryBM25(gctx, canonical, topK)
			if err != nil {
				return nil // degrade rather than fail the whole lookup
			}
			mu.Lock()
			bm25Results = results
			mu.Unlock()
			return nil
		})
		if m.embedder != nil {
			g.Go(func() error {
				vec, err := m.embedder.Embed(gctx, canonical)
				if err != nil {
					return nil // degraded mode: omit the vec term
				}
				results, err := m.coord.VectorSearch(gctx, vec, topK)
				if err != nil {
					return nil
				}
				mu.Lock()
				vectorResults = results
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	byURL := make(map[string]*querystate.RetrievalDocument)
	var order []string

	for _, t := range collected {
		doc, ok := byURL[t.raw.URL]
		if !ok {
			doc = &querystate.RetrievalDocument{
				URL:           t.raw.URL,
				Title:         t.raw.Title,
				Snippet:       t.raw.Snippet,
				BackendName:   t.backend,
				OriginalIndex: t.original,
			}
			byURL[t.raw.URL] = doc
			order = append(order, t.raw.URL)
		}
		doc.StageProvenance = appendStage(doc.StageProvenance, t.stage)
	}

	bm25ByID := make(map[string]float64, len(bm25Results))
	for _, r := range bm25Results {
		bm25ByID[r.ID] = r.Score
	}
	vecByID := make(map[string]float64, len(vectorResults))
	for _, r := range vectorResults {
		vecByID[r.ID] = r.Score
	}
	for id := range bm25ByID {
		if _, ok := byURL[id]; !ok {
			byURL[id] = &querystate.RetrievalDocument{URL: id, BackendName: "storage_bm25"}
			order = append(order, id)
		}
		byURL[id].StageProvenance = appendStage(byURL[id].StageProvenance, querystate.StageBM25)
	}
	for id := range vecByID {
		if _, ok := byURL[id]; !ok {
			byURL[id] = &querystate.RetrievalDocument{URL: id, BackendName: "storage_vector"}
			order = append(order, id)
		}
		byURL[id].StageProvenance = appendStage(byURL[id].StageProvenance, querystate.StageVector)
	}
	// Ontology hits are keyed by claim_id (asserts/4's first arg), the
	// same identifier space the columnar store persists rows under, so
	// they merge into the same byURL map as BM25/vector hits rather than
	// a separate structure.
	for _, r := range ontologyResults {
		if len(r.Args) == 0 {
			continue
		}
		id := r.Args[0]
		if _, ok := byURL[id]; !ok {
			byURL[id] = &querystate.RetrievalDocument{URL: id, BackendName: "storage_ontology"}
			order = append(order, id)
		}
		byURL[id].StageProvenance = appendStage(byURL[id].StageProvenance, querystate.StageOntology)
	}

	hasVec := m.coord != nil && m.embedder != nil
	for _, url := range order {
		doc := byURL[url]
		bm25 := bm25ByID[url]
		vecScore, hasVecScore := vecByID[url]
		semantic := bm25 // no separate semantic signal from SearchBackend results; BM25 doubles as the lexical/semantic proxy until a dedicated embedder scores it
		var sTerm float64
		if hasVec && hasVecScore {
			sTerm = (semantic + vecScore) / 2
		} else {
			sTerm = semantic
		}
		credibility := 0.0
		if m.credibility != nil {
			credibility = m.credibility.Score(*doc)
		}

		doc.BM25Score = quantizeScore(bm25)
		doc.SemanticScore = quantizeScore(sTerm)
		doc.CredibilityScore = quantizeScore(credibility)
		doc.BlendedScore = quantizeScore(m.cfg.Weights.BM25*bm25 + m.cfg.Weights.Semantic*sTerm + m.cfg.Weights.Credibility*credibility)
	}

	docs := make([]querystate.RetrievalDocument, 0, len(order))
	for _, url := range order {
		docs = append(docs, *byURL[url])
	}

	// Tie-break per §4.7 step 6: (backend_name, canonical_url, title,
	// original_index), all ascending, applied only when BlendedScore ties.
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].BlendedScore != docs[j].BlendedScore {
			return docs[i].BlendedScore > docs[j].BlendedScore
		}
		if docs[i].BackendName != docs[j].BackendName {
			return docs[i].BackendName < docs[j].BackendName
		}
		if docs[i].URL != docs[j].URL {
			return docs[i].URL < docs[j].URL
		}
		if docs[i].Title != docs[j].Title {
			return docs[i].Title < docs[j].Title
		}
		return docs[i].OriginalIndex < docs[j].OriginalIndex
	})

	if topK > 0 && len(docs) > topK {
		docs = docs[:topK]
	}

	m.persistLiveDocs(ctx, docs)

	return docs, nil
}

// persistLiveDocs writes every document a live SearchBackend surfaced
// (as opposed to one already hydrated from storage) through to the
// Storage Coordinator, per §4.7 step 7: once a cache miss resolves, the
// freshly fetched documents become reusable for the next query's BM25
// hydration instead of being re-fetched from the network every time. A
// nil Coordinator (no storage wired) is a no-op. A PersistDocument error
// is discarded without being logged; persistence is best-effort and
// never fails the lookup a caller is waiting on.
func (m *Merger) persistLiveDocs(ctx context.Context, docs []querystate.RetrievalDocument) {
	if m.coord == nil {
		return
	}
	for _, doc := range docs {
		live := false
		for _, stage := range doc.StageProvenance {
			if stage == querystate.StageLive {
				live = true
				break
			}
		}
		if !live {
			continue
		}
		_ = m.coord.PersistDocument(ctx, doc.URL, doc.Title, doc.Snippet)
	}
}

func appendStage(stages []querystate.StorageStage, stage querystate.StorageStage) []querystate.StorageStage {
	for _, s := range stages {
		if s == stage {
			return stages
		}
	}
	return append(stages, stage)
}

// quantizeScore rounds a score to the 10^-6 grid, per §4.7 step 5.
func quantizeScore(score float64) float64 {
	return math.Round(score/quantum) * quantum
}
