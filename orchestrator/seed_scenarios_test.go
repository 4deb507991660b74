package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/autoresearch/orchestrator-core/agent"
	"github.com/autoresearch/orchestrator-core/audit"
	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/gate"
	"github.com/autoresearch/orchestrator-core/llm"
	"github.com/autoresearch/orchestrator-core/querystate"
	"github.com/autoresearch/orchestrator-core/retrieval"
	"github.com/autoresearch/orchestrator-core/router"
	"github.com/autoresearch/orchestrator-core/search"
)

// Concrete end-to-end scenarios exercising the whole orchestrator wiring
// rather than any one package's internals.

func TestSeedDirectModeHappyPath(t *testing.T) {
	web := search.NewFakeBackend("web")
	web.Seed("paris", search.RawResult{URL: "https://a.example", Title: "France", Snippet: "Paris is the capital of France."})
	merger := retrieval.NewMerger(retrieval.MergerConfig{Weights: core.DefaultRankingWeights()}, retrieval.NewCache(), []search.Backend{web}, nil, nil, nil)

	mock := llm.NewMockAdapter()
	mock.EntailmentScores = map[string]float64{"Paris": 1.0}

	scout := gate.NewScout(merger, mock, 5)
	auditor := audit.NewAuditor(merger, mock, nil)
	agents := map[string]agent.Agent{"synthesizer": draftAgent("synthesizer", "Paris")}
	o := NewOrchestrator(merger, scout, auditor, nil, mock, agents, WithExecutorConfig(fastExecutorConfig()))

	cfg := core.DefaultConfigSnapshot()
	cfg.ReasoningMode = core.ModeDirect
	cfg.AgentRoster = []string{"synthesizer"}

	resp, err := o.RunQuery(context.Background(), "capital of France", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "Paris" {
		t.Fatalf("expected answer %q, got %q", "Paris", resp.Answer)
	}
	if resp.Metrics.CyclesRun != 1 {
		t.Fatalf("expected cycles_run=1, got %d", resp.Metrics.CyclesRun)
	}
	if len(resp.Reasoning) != 1 {
		t.Fatalf("expected exactly one AgentResult in the reasoning trace, got %d", len(resp.Reasoning))
	}
	if resp.Metrics.Partial {
		t.Fatalf("expected partial=false")
	}
	if len(resp.Warnings) != 0 {
		t.Fatalf("expected no audit warnings, got %v", resp.Warnings)
	}
}

func TestSeedAutoModeScoutExitAllClaimsSupported(t *testing.T) {
	web := search.NewFakeBackend("web")
	web.Seed("what causes tides", search.RawResult{URL: "https://a.example", Title: "Tides", Snippet: "gravity from the moon and sun causes tides"})
	web.Seed("tides are caused by the combined gravitational pull of the moon and the sun.",
		search.RawResult{URL: "https://a.example", Title: "Tides", Snippet: "gravity from the moon and sun causes tides"})
	merger := retrieval.NewMerger(retrieval.MergerConfig{Weights: core.DefaultRankingWeights()}, retrieval.NewCache(), []search.Backend{web}, nil, nil, nil)

	mock := llm.NewMockAdapter()
	mock.SetResponses("tides are caused by the combined gravitational pull of the moon and the sun.")
	mock.EntailmentScores = map[string]float64{
		"tides are caused by the combined gravitational pull of the moon and the sun.": 0.95,
	}

	scout := gate.NewScout(merger, mock, 5)
	auditor := audit.NewAuditor(merger, mock, nil)
	agents := map[string]agent.Agent{"synthesizer": draftAgent("synthesizer", "should not run")}
	o := NewOrchestrator(merger, scout, auditor, nil, mock, agents, WithExecutorConfig(fastExecutorConfig()))

	cfg := core.DefaultConfigSnapshot()
	cfg.ReasoningMode = core.ModeAuto
	cfg.AgentRoster = []string{"synthesizer"}
	// A single-document bundle never clears the default retrieval_overlap
	// floor (no document is corroborated by a second stage) or the
	// default multi_hop_required=false target (fewer than two documents
	// forces multi_hop_required=true); relaxing those two to match what a
	// genuinely single-source scout pass reports lets the exit path run
	// without fabricating multi-stage provenance.
	cfg.GateThresholds = core.GateThresholds{
		RetrievalOverlapMin: 0,
		ClaimConflictMax:    0.2,
		MultiHopRequired:    true,
		GraphContradiction:  false,
	}

	resp, err := o.RunQuery(context.Background(), "what causes tides", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Metrics.CyclesRun != 0 {
		t.Fatalf("expected the gate to exit with zero debate cycles, got %d", resp.Metrics.CyclesRun)
	}
	for _, rec := range resp.ClaimAudits {
		if rec.Status != querystate.AuditSupported {
			t.Fatalf("expected every extracted claim to be marked supported, got %s", rec.Status)
		}
	}
}

func TestSeedDebateHedgesUnsupportedClaimWithoutLeakingIntoAnswer(t *testing.T) {
	// No backend is wired, so every claim's evidence lookup comes back
	// empty and is scored unsupported regardless of entailment — this is
	// the auditor's own "no supporting evidence retrieved" floor, not a
	// stubbed entailment score, and is sufficient to exercise the
	// hedge-without-leaking-into-answer invariant end to end.
	merger := emptyMerger()
	mock := llm.NewMockAdapter()
	mock.SetResponses("the deepest part of the ocean is in the Mariana Trench.")

	scout := gate.NewScout(merger, mock, 5)
	auditor := audit.NewAuditor(merger, mock, nil)
	agents := map[string]agent.Agent{
		"synthesizer": draftAgent("synthesizer", "the deepest part of the ocean is in the Mariana Trench."),
	}
	o := NewOrchestrator(merger, scout, auditor, nil, mock, agents, WithExecutorConfig(fastExecutorConfig()))

	cfg := core.DefaultConfigSnapshot()
	cfg.ReasoningMode = core.ModeDialectical
	cfg.AgentRoster = []string{"synthesizer"}
	cfg.Loops = 1
	cfg.AuditPolicy.HedgeMode = core.HedgePrefix

	resp, err := o.RunQuery(context.Background(), "where is the deepest ocean trench", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ClaimAudits) != 1 || resp.ClaimAudits[0].Status != querystate.AuditUnsupported {
		t.Fatalf("expected exactly one unsupported claim, got %+v", resp.ClaimAudits)
	}
	if len(resp.Warnings) == 0 {
		t.Fatalf("expected the unsupported claim to surface a warning")
	}
	if got := resp.Answer; len(got) == 0 {
		t.Fatalf("expected a non-empty answer")
	}
	if strings.Contains(resp.Answer, "[unverified]") || strings.Contains(resp.Answer, "(unverified)") {
		t.Fatalf("answer must never carry a hedge marker, got %q", resp.Answer)
	}
	if resp.Answer != "the deepest part of the ocean is in the Mariana Trench." {
		t.Fatalf("expected the unhedged draft as the answer, got %q", resp.Answer)
	}

	found := false
	for _, w := range resp.Warnings {
		if strings.HasPrefix(w, "[unverified] ") {
			found = true
		}
		if w == resp.Answer {
			t.Fatalf("warning text must never equal the answer text")
		}
	}
	if !found {
		t.Fatalf("expected a structured hedge warning carrying the configured prefix, got %+v", resp.Warnings)
	}
}

// TestSeedCostBudgetConstrainsModelSelection exercises §4.8 end to end:
// a tight RoutingPolicy.CostBudgetUSD must actually reach Router.Select
// as a finite remaining-cost share, not the unlimited default, so an
// expensive model never gets picked once the budget can't afford it.
func TestSeedCostBudgetConstrainsModelSelection(t *testing.T) {
	merger := emptyMerger()
	mock := llm.NewMockAdapter()
	mock.SetResponses("answer")

	modelRouter := router.NewRouter([]router.ModelProfile{
		{ID: "premium", PricePerTokenUSD: 0.01},
		{ID: "cheap", PricePerTokenUSD: 0.00001},
	})

	scout := gate.NewScout(merger, mock, 5)
	auditor := audit.NewAuditor(merger, mock, nil)
	agents := map[string]agent.Agent{"synthesizer": draftAgent("synthesizer", "answer")}
	execCfg := fastExecutorConfig()
	execCfg.EstimatedTokens = 1000
	o := NewOrchestrator(merger, scout, auditor, modelRouter, mock, agents, WithExecutorConfig(execCfg))

	cfg := core.DefaultConfigSnapshot()
	cfg.ReasoningMode = core.ModeDirect
	cfg.AgentRoster = []string{"synthesizer"}
	// 1000 tokens * 0.01 = 10 USD for premium, far over this budget; cheap
	// at 1000*0.00001 = 0.01 USD comfortably fits.
	cfg.RoutingPolicy.CostBudgetUSD = 0.5

	resp, err := o.RunQuery(context.Background(), "a tightly budgeted question", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Reasoning) != 1 {
		t.Fatalf("expected exactly one reasoning entry, got %+v", resp.Reasoning)
	}
	if !strings.Contains(resp.Reasoning[0].Content, "model=cheap") {
		t.Fatalf("expected the cost budget to force the cheap model, got %+v", resp.Reasoning[0])
	}
}
