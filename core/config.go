package core

import (
	"fmt"
	"time"
)

// ReasoningMode selects the top-level strategy run_query uses, per §4.1.
type ReasoningMode string

const (
	ModeDirect       ReasoningMode = "direct"
	ModeDialectical  ReasoningMode = "dialectical"
	ModeChainOfThought ReasoningMode = "chain-of-thought"
	ModeAuto         ReasoningMode = "auto"
)

// GateThresholds are the four exit/escalate thresholds from §4.3. Defaults
// match the documented values and are what DefaultConfigSnapshot uses; a
// ConfigSnapshot built with the zero value keeps zero thresholds, since
// validation does not fill in defaults.
type GateThresholds struct {
	RetrievalOverlapMin float64 `yaml:"retrieval_overlap_min"`
	ClaimConflictMax    float64 `yaml:"claim_conflict_max"`
	MultiHopRequired    bool    `yaml:"multi_hop_required"`
	GraphContradiction  bool    `yaml:"graph_contradiction"`
}

// DefaultGateThresholds returns the documented defaults from §4.3.
func DefaultGateThresholds() GateThresholds {
	return GateThresholds{
		RetrievalOverlapMin: 0.6,
		ClaimConflictMax:    0.2,
		MultiHopRequired:    false,
		GraphContradiction:  false,
	}
}

// RankingWeights are the hybrid-retrieval blend weights from §4.7, step 4.
// Must be non-negative and sum to 1.0.
type RankingWeights struct {
	BM25       float64 `yaml:"bm25"`
	Semantic   float64 `yaml:"semantic"`
	Credibility float64 `yaml:"credibility"`
}

// DefaultRankingWeights returns a reasonable non-degenerate split.
func DefaultRankingWeights() RankingWeights {
	return RankingWeights{BM25: 0.4, Semantic: 0.4, Credibility: 0.2}
}

func (w RankingWeights) Validate() error {
	if w.BM25 < 0 || w.Semantic < 0 || w.Credibility < 0 {
		return NewError("RankingWeights.Validate", KindConfig, nil).WithMessage("weights must be non-negative")
	}
	sum := w.BM25 + w.Semantic + w.Credibility
	if sum < 0.999999 || sum > 1.000001 {
		return NewError("RankingWeights.Validate", KindConfig, nil).WithMessage(
			fmt.Sprintf("weights must sum to 1.0, got %f", sum))
	}
	return nil
}

// HedgeMode selects how the auditor marks unsupported text, per §4.6.
type HedgeMode string

const (
	HedgePrefix HedgeMode = "prefix"
	HedgeInline HedgeMode = "inline"
	HedgeNone   HedgeMode = "none"
)

// AuditPolicy configures the claim auditor, per §4.6.
type AuditPolicy struct {
	MaxRetryResults   int           `yaml:"max_retry_results"`
	MaxRounds         int           `yaml:"max_rounds"`
	SupportedMin      float64       `yaml:"supported_min"`
	UnsupportedMax    float64       `yaml:"unsupported_max"`
	HedgeMode         HedgeMode     `yaml:"hedge_mode"`
	RequireHumanAck   bool          `yaml:"require_human_ack"`
	OperatorTimeout   time.Duration `yaml:"operator_timeout"`
}

// DefaultAuditPolicy returns the documented defaults from §4.6.
func DefaultAuditPolicy() AuditPolicy {
	return AuditPolicy{
		MaxRetryResults: 5,
		MaxRounds:       2,
		SupportedMin:    0.75,
		UnsupportedMax:  0.3,
		HedgeMode:       HedgePrefix,
		RequireHumanAck: false,
		OperatorTimeout: 30 * time.Second,
	}
}

// RoutingPolicy configures the model router & budget tracker, per §4.8.
type RoutingPolicy struct {
	DefaultModel       string        `yaml:"default_model"`
	AgentLatencyBudget time.Duration `yaml:"agent_latency_budget"`
	// CostBudgetUSD is the total cost ceiling for one query, divided by
	// agents_remaining at each selection point to yield the per-call
	// share Router.Select filters candidate models against. Zero means
	// no cost ceiling: Select's cost filter never rejects a model.
	CostBudgetUSD float64 `yaml:"cost_budget_usd"`
}

// DefaultRoutingPolicy returns a permissive default: no cost ceiling.
func DefaultRoutingPolicy() RoutingPolicy {
	return RoutingPolicy{DefaultModel: "baseline", AgentLatencyBudget: 10 * time.Second}
}

// ConfigSnapshot is the immutable configuration captured at submit time and
// threaded through run_query. Per Design Note §9, the orchestrator never
// reads global/mutable config at runtime — everything it needs lives here.
type ConfigSnapshot struct {
	ReasoningMode ReasoningMode `yaml:"reasoning_mode"`
	Loops         int           `yaml:"loops"`
	AgentRoster   []string      `yaml:"agent_roster"`
	PrimusStart   int           `yaml:"primus_start"`

	TokenBudget int           `yaml:"token_budget"`
	TimeBudget  time.Duration `yaml:"time_budget"`

	PerAgentTimeout  time.Duration `yaml:"per_agent_timeout"`
	PerCycleTimeout  time.Duration `yaml:"per_cycle_timeout"`
	MaxRetryAttempts int           `yaml:"max_retry_attempts"`

	GateThresholds GateThresholds `yaml:"gate_thresholds"`
	RoutingPolicy  RoutingPolicy  `yaml:"routing_policy"`
	AuditPolicy    AuditPolicy    `yaml:"audit_policy"`
	RankingWeights RankingWeights `yaml:"ranking_weights"`
}

// DefaultConfigSnapshot returns a ConfigSnapshot with every documented
// default filled in; callers override only what they need.
func DefaultConfigSnapshot() ConfigSnapshot {
	return ConfigSnapshot{
		ReasoningMode:    ModeAuto,
		Loops:            1,
		PrimusStart:      0,
		PerAgentTimeout:  30 * time.Second,
		PerCycleTimeout:  120 * time.Second,
		MaxRetryAttempts: 3,
		GateThresholds:   DefaultGateThresholds(),
		RoutingPolicy:    DefaultRoutingPolicy(),
		AuditPolicy:      DefaultAuditPolicy(),
		RankingWeights:   DefaultRankingWeights(),
	}
}

// Validate enforces the boundary invariants from §8: non-empty roster,
// loops >= 1, a recognized reasoning mode, and well-formed ranking
// weights. Returns a KindConfig *Error on the first violation.
func (c ConfigSnapshot) Validate() error {
	const op = "ConfigSnapshot.Validate"
	switch c.ReasoningMode {
	case ModeDirect, ModeDialectical, ModeChainOfThought, ModeAuto:
	default:
		return NewError(op, KindConfig, nil).WithMessage("unknown reasoning_mode: " + string(c.ReasoningMode))
	}
	if c.Loops < 1 {
		return NewError(op, KindConfig, nil).WithMessage("loops must be >= 1")
	}
	if len(c.AgentRoster) == 0 {
		return NewError(op, KindConfig, nil).WithMessage("agent roster must be non-empty")
	}
	if c.PrimusStart < 0 || c.PrimusStart >= len(c.AgentRoster) {
		return NewError(op, KindConfig, nil).WithMessage("primus_start out of range")
	}
	if err := c.RankingWeights.Validate(); err != nil {
		return err
	}
	return nil
}
