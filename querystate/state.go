package querystate

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoresearch/orchestrator-core/core"
)

// QueryState is the append-only scratchpad for one query. Every mutator
// holds mu for the duration of the update; reads also acquire it so a
// Clone can never observe a torn write. Grounded on the pack's
// WorkflowDAG's mu-guarded map pattern, generalized from a node map to
// the full per-query record.
type QueryState struct {
	mu sync.Mutex

	QueryID       string
	Cycle         int
	Claims        []Claim
	claimsByKey   map[string]int // normalized text+type -> index into Claims
	sourcesByURL  map[string]int // canonical URL -> index into Sources
	Sources       []Source
	Results       map[int][]AgentResult // cycle index -> results
	TaskGraph     *TaskGraph
	ReActLog      []ReActStep
	Metadata      map[string]interface{}
	AuditPolicy   core.AuditPolicy
	FinalAnswer   string
	finalAnswerSet bool
}

// New allocates a QueryState for queryID at cycle 0, per the orchestrator's
// step 1 (snapshot config; allocate QueryState with cycle=0).
func New(queryID string, auditPolicy core.AuditPolicy) *QueryState {
	if queryID == "" {
		queryID = uuid.NewString()
	}
	return &QueryState{
		QueryID:      queryID,
		Cycle:        0,
		claimsByKey:  make(map[string]int),
		sourcesByURL: make(map[string]int),
		Results:      make(map[int][]AgentResult),
		Metadata:     make(map[string]interface{}),
		AuditPolicy:  auditPolicy,
	}
}

// AdvanceCycle moves to the next cycle. Cycle only increases by exactly
// 1 between cycles.
func (s *QueryState) AdvanceCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cycle++
}

// AddClaim appends a new Claim; claims are never removed. A claim whose
// Supersedes is non-empty links back to the claim it replaces instead of
// mutating it. Claims are de-duplicated by normalized text + type, mirroring
// addSourceLocked's canonical-URL dedup: a claim matching an existing one
// on that key is linked via Supersedes rather than appended as a plain
// duplicate.
func (s *QueryState) AddClaim(c Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ClaimID == "" {
		c.ClaimID = uuid.NewString()
	}

	key := claimDedupKey(c.Text, c.Type)
	if idx, ok := s.claimsByKey[key]; ok {
		if c.Supersedes == "" {
			c.Supersedes = s.Claims[idx].ClaimID
		}
		s.claimsByKey[key] = len(s.Claims)
		s.Claims = append(s.Claims, c)
		return
	}

	s.claimsByKey[key] = len(s.Claims)
	s.Claims = append(s.Claims, c)
}

// claimDedupKey builds the normalized-text+type key claims are
// de-duplicated on: whitespace-collapsed, case-folded text paired with
// the claim type, following the same normalization the retrieval cache
// key applies to raw queries.
func claimDedupKey(text string, claimType ClaimType) string {
	fields := strings.Fields(text)
	normalized := strings.ToLower(strings.Join(fields, " "))
	return normalized + "\x00" + string(claimType)
}

// UpdateClaim creates a new Claim superseding claimID and appends it,
// per the storage coordinator's update_claim contract: never mutate in
// place.
func (s *QueryState) UpdateClaim(claimID string, patch func(Claim) Claim) (Claim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev Claim
	found := false
	for _, c := range s.Claims {
		if c.ClaimID == claimID {
			prev = c
			found = true
			break
		}
	}
	if !found {
		return Claim{}, false
	}

	next := patch(prev)
	next.ClaimID = uuid.NewString()
	next.Supersedes = claimID
	s.claimsByKey[claimDedupKey(next.Text, next.Type)] = len(s.Claims)
	s.Claims = append(s.Claims, next)
	return next, true
}

// AddSource de-duplicates by canonical URL: if the URL is already
// present, its StorageSources set is merged with the incoming one rather
// than appending a duplicate Source.
func (s *QueryState) AddSource(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addSourceLocked(src)
}

func (s *QueryState) addSourceLocked(src Source) {
	if idx, ok := s.sourcesByURL[src.URL]; ok {
		existing := &s.Sources[idx]
		if existing.StorageSources == nil {
			existing.StorageSources = make(map[StorageStage]struct{})
		}
		for stage := range src.StorageSources {
			existing.StorageSources[stage] = struct{}{}
		}
		if existing.Title == "" {
			existing.Title = src.Title
		}
		if existing.Snippet == "" {
			existing.Snippet = src.Snippet
		}
		return
	}
	s.sourcesByURL[src.URL] = len(s.Sources)
	s.Sources = append(s.Sources, src)
}

// AddResult appends an AgentResult under its cycle, in the rotated
// roster order callers invoked agents in — agent results are appended in
// that order and never reordered afterward.
func (s *QueryState) AddResult(r AgentResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results[r.Cycle] = append(s.Results[r.Cycle], r)
}

// AddReActStep appends one planner/executor trace entry.
func (s *QueryState) AddReActStep(step ReActStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	s.ReActLog = append(s.ReActLog, step)
}

// SetTaskGraph installs the planner's TaskGraph. Called at most once per
// query; later calls overwrite, which the orchestrator never does in
// practice since the planner only runs once per debate.
func (s *QueryState) SetTaskGraph(g *TaskGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TaskGraph = g
}

// SetMetadata records a telemetry-facing key/value pair.
func (s *QueryState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[key] = value
}

// SetFinalAnswer sets the synthesized answer exactly once; subsequent
// calls are no-ops, matching the "set once at synthesis" invariant.
func (s *QueryState) SetFinalAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalAnswerSet {
		return
	}
	s.FinalAnswer = answer
	s.finalAnswerSet = true
}

// HasFinalAnswer reports whether SetFinalAnswer has been called.
func (s *QueryState) HasFinalAnswer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalAnswerSet
}

// Clone deep-copies the state, including the claim and source slices and
// the results map, and re-initializes the internal lock rather than
// copying it — a copied sync.Mutex is not a valid lock.
func (s *QueryState) Clone() *QueryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &QueryState{
		QueryID:        s.QueryID,
		Cycle:          s.Cycle,
		Claims:         append([]Claim(nil), s.Claims...),
		Sources:        append([]Source(nil), s.Sources...),
		claimsByKey:    make(map[string]int, len(s.claimsByKey)),
		sourcesByURL:   make(map[string]int, len(s.sourcesByURL)),
		Results:        make(map[int][]AgentResult, len(s.Results)),
		ReActLog:       append([]ReActStep(nil), s.ReActLog...),
		Metadata:       make(map[string]interface{}, len(s.Metadata)),
		AuditPolicy:    s.AuditPolicy,
		FinalAnswer:    s.FinalAnswer,
		finalAnswerSet: s.finalAnswerSet,
	}
	for k, v := range s.claimsByKey {
		out.claimsByKey[k] = v
	}
	for k, v := range s.sourcesByURL {
		out.sourcesByURL[k] = v
	}
	for i, src := range out.Sources {
		if src.StorageSources == nil {
			continue
		}
		stages := make(map[StorageStage]struct{}, len(src.StorageSources))
		for stage := range src.StorageSources {
			stages[stage] = struct{}{}
		}
		out.Sources[i].StorageSources = stages
	}
	for cycle, results := range s.Results {
		out.Results[cycle] = append([]AgentResult(nil), results...)
	}
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	if s.TaskGraph != nil {
		cloned := *s.TaskGraph
		cloned.Nodes = append([]TaskNode(nil), s.TaskGraph.Nodes...)
		out.TaskGraph = &cloned
	}
	return out
}

// ClaimsSnapshot returns a copy of the current claims slice, safe to
// range over without holding the lock.
func (s *QueryState) ClaimsSnapshot() []Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Claim(nil), s.Claims...)
}

// SourcesSnapshot returns a copy of the current de-duplicated sources.
func (s *QueryState) SourcesSnapshot() []Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Source(nil), s.Sources...)
}

// ResultsSnapshot returns a copy of every cycle's recorded AgentResults,
// keyed by cycle index, in the rotated-roster order each cycle appended
// them.
func (s *QueryState) ResultsSnapshot() map[int][]AgentResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int][]AgentResult, len(s.Results))
	for cycle, results := range s.Results {
		out[cycle] = append([]AgentResult(nil), results...)
	}
	return out
}

// CurrentCycle returns the query's current cycle index.
func (s *QueryState) CurrentCycle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Cycle
}
