// Package querystate holds the per-query data model: the append-only
// QueryState scratchpad and the entities it accumulates (Claim, Source,
// AuditRecord, TaskGraph, ScoutResult, GateDecision, AgentResult,
// CycleBudget, RetrievalDocument). Grounded on the pack's
// orchestration/workflow_dag.go and workflow_state.go for the typed,
// versioned execution-record shape, generalized from workflow-step
// bookkeeping to the query's own append-only scratchpad.
package querystate

import (
	"time"

	"github.com/autoresearch/orchestrator-core/core"
)

// ClaimType enumerates the dialectical role a Claim plays.
type ClaimType string

const (
	ClaimThesis     ClaimType = "thesis"
	ClaimAntithesis ClaimType = "antithesis"
	ClaimSynthesis  ClaimType = "synthesis"
	ClaimEvidence   ClaimType = "evidence"
	ClaimFact       ClaimType = "fact"
)

// AuditStatus is the outcome of running a Claim through the auditor.
type AuditStatus string

const (
	AuditSupported   AuditStatus = "supported"
	AuditNeedsReview AuditStatus = "needs_review"
	AuditUnsupported AuditStatus = "unsupported"
)

// AgentStatus is the terminal state of one AgentResult.
type AgentStatus string

const (
	AgentOK      AgentStatus = "ok"
	AgentRetried AgentStatus = "retried"
	AgentFailed  AgentStatus = "failed"
	AgentTimeout AgentStatus = "timeout"
)

// GateAction is the Gate Policy's exit/debate decision.
type GateAction string

const (
	GateExit  GateAction = "exit"
	GateDebate GateAction = "debate"
)

// StorageStage records which retrieval stage surfaced a Source.
type StorageStage string

const (
	StageVector   StorageStage = "vector"
	StageBM25     StorageStage = "bm25"
	StageOntology StorageStage = "ontology"
	StageLive     StorageStage = "live"
)

// Source is a canonicalized reference to one piece of external evidence.
type Source struct {
	URL       string // canonical: lowercase scheme/host, fragments stripped
	Title     string
	Snippet   string
	Backend   string // retrieval backend name
	FetchedAt time.Time
	Checksum  string

	// StorageSources records every retrieval stage that surfaced this
	// Source; a subset of {vector, bm25, ontology, live}.
	StorageSources map[StorageStage]struct{}
}

// AuditRecord is the outcome of the claim auditor's entailment pass.
type AuditRecord struct {
	Status          AuditStatus
	EntailmentScore float64
	StabilityScore  float64
	Sources         []Source // top-N supporting sources
	RetryCount      int
	Notes           string
}

// Claim is one immutable statement in the dialectical record. Edits
// create a new Claim linked back via Supersedes rather than mutating in
// place.
type Claim struct {
	ClaimID        string
	Text           string
	Type           ClaimType
	CreatedByAgent string
	CycleCreated   int
	Sources        []Source
	Embedding      []float32 // optional, fixed-dimension
	Audit          *AuditRecord
	Supersedes     string // optional claim_id
}

// TaskNode is one unit of planner-scheduled work.
type TaskNode struct {
	ID           string
	Question     string
	Objectives   []string
	ExitCriteria []string
	ToolAffinity map[string]float64 // tool name -> score in [0,1]
	Dependencies []string           // ids
	Depth        int                // 1 + max(depth of deps), 0 if none
}

// TaskGraph is an ordered, acyclic set of TaskNode built by the planner.
type TaskGraph struct {
	Nodes []TaskNode
}

// ReActStep is one reason/act/observe step recorded by the task
// coordinator while executing a TaskGraph. Metadata carries
// unlock_events (task ids the step's completion made ready), per §4.4;
// no scheduler.candidates snapshot is recorded.
type ReActStep struct {
	TaskID        string
	Cycle         int
	Thought       string
	Action        string
	Tool          string
	Observation   string
	Metadata      map[string]interface{}
	AffinityDelta float64
	Timestamp     time.Time
}

// ScoutResult is the scout pass's output: a draft answer, the retrieval
// bundle it was built from, and the signal values the gate policy
// evaluates.
type ScoutResult struct {
	DraftAnswer       string
	RetrievalBundle   []RetrievalDocument
	RetrievalOverlap  float64
	ClaimConflict     float64
	MultiHopRequired  bool
	GraphContradiction bool
}

// GateDecision is the gate policy's exit/debate call.
type GateDecision struct {
	Action     GateAction
	MaxCycles  int
	Rationale  string
	Thresholds core.GateThresholds // snapshot of thresholds actually used
}

// AgentResult records the outcome of one agent's execution within a
// cycle.
type AgentResult struct {
	AgentName     string
	Cycle         int
	Status        AgentStatus
	ClaimsAdded   []string // claim_ids
	SourcesAdded  []string // canonical URLs
	TokensIn      int
	TokensOut     int
	LatencyMS     int64
	ModelSelected string
	EstimatedCostUSD float64
	ErrorKind     core.ErrorKind // empty if no error
	ErrorMessage  string
}

// CycleBudget tracks remaining resources for the current query.
// Monotonically non-increasing.
type CycleBudget struct {
	TokensRemaining  int
	TimeRemainingMS  int64
	CyclesRemaining  int
}

// RetrievalDocument is a ranked entity exposed to the scheduler by the
// hybrid retrieval merger.
type RetrievalDocument struct {
	URL              string
	Title            string
	Snippet          string
	BackendName      string
	OriginalIndex    int
	BM25Score        float64
	SemanticScore    float64
	CredibilityScore float64
	BlendedScore     float64
	StageProvenance  []StorageStage
}
