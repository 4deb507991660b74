// Package orchestrator implements the Orchestrator & Cycle Scheduler
// (§4.1): the top-level state machine owning one query's lifecycle from
// submit to response — Init -> (ScoutPass)? -> GateDecision -> Debate* ->
// Synthesize -> Audit -> (Hedge)? -> Done. Grounded on the pack's
// pkg/orchestration/orchestrator.go (StandardOrchestrator.ProcessRequest:
// route -> execute -> synthesize -> assemble response, with a circuit
// breaker gating the whole request and metrics/history bookkeeping
// alongside it) and orchestration/orchestrator.go's state-machine framing,
// generalized from a single routing-plan execution to a multi-cycle
// dialectical debate over a shared QueryState.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/autoresearch/orchestrator-core/agent"
	"github.com/autoresearch/orchestrator-core/audit"
	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/gate"
	"github.com/autoresearch/orchestrator-core/llm"
	"github.com/autoresearch/orchestrator-core/planner"
	"github.com/autoresearch/orchestrator-core/querystate"
	"github.com/autoresearch/orchestrator-core/retrieval"
	"github.com/autoresearch/orchestrator-core/router"
)

// ReasoningEntry is one line of the QueryResponse's reasoning trace: a
// single agent's contribution in a single cycle.
type ReasoningEntry struct {
	Agent     string
	Cycle     int
	Content   string
	ClaimRefs []string
}

// Metrics is the QueryResponse's metrics block, per §6.2's wire contract.
type Metrics struct {
	TokensIn                int
	TokensOut               int
	TokensByAgent           map[string]int
	AgentLatencyP95MS       map[string]int64
	ModelRoutingDecisions   int64
	ModelRoutingCostSavings float64
	CyclesRun               int
	GateSignals             *querystate.ScoutResult
	ScoutSamples            int
	CacheHit                bool
	Partial                 bool
}

// QueryResponse is the stable wire contract run_query returns, per §6.2.
type QueryResponse struct {
	QueryID     string
	Answer      string
	Reasoning   []ReasoningEntry
	ClaimAudits []querystate.AuditRecord
	Metrics     Metrics
	Warnings    []string
}

// Orchestrator owns the dependencies one RunQuery invocation wires
// together: retrieval for the scout pass and planner grounding, the
// dialectical agent roster, the auditor, and the model router every
// agent invocation selects through.
type Orchestrator struct {
	merger      *retrieval.Merger
	scout       *gate.Scout
	auditor     *audit.Auditor
	modelRouter *router.Router
	agents      map[string]agent.Agent
	llmClient   llm.Adapter
	execCfg     agent.ExecutorConfig
	logger      core.Logger
	telemetry   core.Telemetry
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger installs a structured logger; the default is core.NoOpLogger{}.
func WithLogger(l core.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithTelemetry installs a tracer; the default is core.NoOpTelemetry{}.
func WithTelemetry(t core.Telemetry) Option { return func(o *Orchestrator) { o.telemetry = t } }

// WithExecutorConfig overrides the per-agent retry/breaker/latency wiring
// every cycle's Executor is built with.
func WithExecutorConfig(cfg agent.ExecutorConfig) Option {
	return func(o *Orchestrator) { o.execCfg = cfg }
}

// NewOrchestrator wires an Orchestrator over merger (scout pass + planner
// grounding), scout (auto-mode draft), auditor (§4.6), modelRouter (§4.8,
// may be nil to always use the configured default model), llmClient (used
// directly only for the planner's task-graph proposal), and agents keyed
// by the roster name each implements (e.g. "synthesizer", "contrarian" —
// matched case-sensitively against ConfigSnapshot.AgentRoster).
func NewOrchestrator(merger *retrieval.Merger, scout *gate.Scout, auditor *audit.Auditor, modelRouter *router.Router, llmClient llm.Adapter, agents map[string]agent.Agent, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		merger:      merger,
		scout:       scout,
		auditor:     auditor,
		modelRouter: modelRouter,
		llmClient:   llmClient,
		agents:      agents,
		execCfg:     agent.DefaultExecutorConfig(),
		logger:      core.NoOpLogger{},
		telemetry:   core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunQuery executes the full §4.1 state machine for one query and returns
// its QueryResponse. A non-nil error is a ConfigError (invalid cfg),
// Cancelled (ctx was cancelled mid-debate), or Fatal (the final audit
// step returned an error) — every other failure
// mode, including budget exhaustion, is folded into a best-effort
// QueryResponse with Metrics.Partial set instead of an error, per §7.
func (o *Orchestrator) RunQuery(ctx context.Context, queryText string, cfg core.ConfigSnapshot) (QueryResponse, error) {
	const op = "orchestrator.RunQuery"

	if queryText == "" {
		return QueryResponse{}, core.NewError(op, core.KindConfig, nil).WithMessage("query_text must be non-empty")
	}
	if err := cfg.Validate(); err != nil {
		return QueryResponse{}, err
	}

	ctx, span := o.telemetry.StartSpan(ctx, "orchestrator.run_query")
	defer span.End()

	state := querystate.New("", cfg.AuditPolicy)
	exec := agent.NewExecutor(o.execCfg, o.modelRouter)

	var (
		candidateDraft string
		scoutSamples   int
		gateSignals    *querystate.ScoutResult
		cyclesRun      int
		partial        bool
	)

	if cfg.ReasoningMode == core.ModeAuto {
		result, err := o.scout.Run(ctx, queryText, cfg.RoutingPolicy.DefaultModel)
		if err != nil {
			o.logger.Warn("orchestrator: scout pass failed, falling back to debate", map[string]interface{}{"error": err.Error()})
		} else {
			scoutSamples++
			gateSignals = &result
			decision := gate.Evaluate(result, cfg.GateThresholds, cfg.Loops)
			state.SetMetadata("gate_decision", decision.Action)
			state.SetMetadata("gate_rationale", decision.Rationale)
			if decision.Action == querystate.GateExit {
				candidateDraft = result.DraftAnswer
				return o.finish(ctx, state, cfg, candidateDraft, Metrics{
					CyclesRun:    0,
					GateSignals:  gateSignals,
					ScoutSamples: scoutSamples,
				})
			}
			cfg.Loops = decision.MaxCycles
		}
	}

	if cfg.ReasoningMode == core.ModeDirect {
		draft, err := o.runOne(ctx, exec, "synthesizer", state, cfg, 0, len(cfg.AgentRoster))
		if err != nil && (core.IsFatal(err) || core.IsBudgetExhausted(err)) {
			partial = true
		}
		if draft != "" {
			candidateDraft = draft
		}
		return o.finish(ctx, state, cfg, candidateDraft, Metrics{
			CyclesRun:    1,
			GateSignals:  gateSignals,
			ScoutSamples: scoutSamples,
			Partial:      partial,
		})
	}

	if err := o.plan(ctx, state, cfg, queryText); err != nil {
		o.logger.Warn("orchestrator: planner step failed, continuing without a task graph", map[string]interface{}{"error": err.Error()})
	}

	primusIndex := cfg.PrimusStart
	tokensUsed := 0

	for cycle := 0; cycle < cfg.Loops; cycle++ {
		select {
		case <-ctx.Done():
			return QueryResponse{}, core.NewError(op, core.KindCancelled, ctx.Err())
		default:
		}

		order := rotate(cfg.AgentRoster, primusIndex)
		cycleConverged := false

		for i, name := range order {
			a, ok := o.agents[name]
			if !ok {
				state.AddResult(querystate.AgentResult{
					AgentName: name, Cycle: cycle,
					Status: querystate.AgentFailed, ErrorKind: core.KindConfig,
					ErrorMessage: "no agent wired for roster entry " + name,
				})
				continue
			}

			result, out, err := exec.Run(ctx, a, state, cfg, cycle, remainingCostBudget(cfg, state), len(order)-i)
			state.AddResult(result)
			tokensUsed += result.TokensIn + result.TokensOut

			if out != nil {
				for _, c := range out.Claims {
					state.AddClaim(c)
				}
				for _, s := range out.Sources {
					state.AddSource(s)
				}
				if out.Draft != "" {
					candidateDraft = out.Draft
					cycleConverged = true
				}
			}

			if err != nil && (core.IsFatal(err) || core.IsBudgetExhausted(err)) {
				partial = true
				break
			}
		}

		exec.AdvanceCycle()
		cyclesRun++

		if partial {
			break
		}
		if cfg.TokenBudget > 0 && tokensUsed >= cfg.TokenBudget {
			partial = true
			break
		}
		if cycleConverged {
			break
		}
		primusIndex = (primusIndex + 1) % len(cfg.AgentRoster)
	}

	if candidateDraft == "" {
		draft, err := o.runOne(ctx, exec, "synthesizer", state, cfg, cyclesRun, 1)
		if err != nil && (core.IsFatal(err) || core.IsBudgetExhausted(err)) {
			partial = true
		}
		if draft != "" {
			candidateDraft = draft
		}
	}

	tokensByAgent := map[string]int{}
	for _, results := range state.ResultsSnapshot() {
		for _, r := range results {
			tokensByAgent[r.AgentName] += r.TokensIn + r.TokensOut
		}
	}

	var decisionCount int64
	var costSavings float64
	if o.modelRouter != nil {
		decisionCount = o.modelRouter.DecisionCount()
		costSavings = o.modelRouter.CostSavings()
	}

	return o.finish(ctx, state, cfg, candidateDraft, Metrics{
		TokensByAgent:           tokensByAgent,
		ModelRoutingDecisions:   decisionCount,
		ModelRoutingCostSavings: costSavings,
		CyclesRun:               cyclesRun,
		GateSignals:             gateSignals,
		ScoutSamples:            scoutSamples,
		Partial:                 partial,
	})
}

// totalEstimatedCost sums every recorded AgentResult's EstimatedCostUSD,
// giving the query's cumulative model spend so far without requiring a
// separately threaded running total.
func totalEstimatedCost(state *querystate.QueryState) float64 {
	var total float64
	for _, results := range state.ResultsSnapshot() {
		for _, r := range results {
			total += r.EstimatedCostUSD
		}
	}
	return total
}

// remainingCostBudget computes §4.8's remaining_cost_budget term: the
// configured ceiling minus cumulative spend so far, floored at zero. A
// zero/unset RoutingPolicy.CostBudgetUSD means no ceiling at all, per
// DefaultRoutingPolicy's permissive default, so Router.Select's cost
// filter never rejects a model in that case.
func remainingCostBudget(cfg core.ConfigSnapshot, state *querystate.QueryState) float64 {
	if cfg.RoutingPolicy.CostBudgetUSD <= 0 {
		return math.MaxFloat64
	}
	remaining := cfg.RoutingPolicy.CostBudgetUSD - totalEstimatedCost(state)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// runOne invokes a single named agent outside the rotated-roster debate
// loop (used for the direct-mode single Synthesizer pass, and the
// end-of-debate synthesis fallback), returning its Output.Draft.
func (o *Orchestrator) runOne(ctx context.Context, exec *agent.Executor, name string, state *querystate.QueryState, cfg core.ConfigSnapshot, cycle int, agentsRemaining int) (string, error) {
	a, ok := o.agents[name]
	if !ok {
		return "", core.NewError("orchestrator.runOne", core.KindConfig, nil).WithMessage("no agent wired for " + name)
	}
	result, out, err := exec.Run(ctx, a, state, cfg, cycle, remainingCostBudget(cfg, state), agentsRemaining)
	state.AddResult(result)
	if out == nil {
		return "", err
	}
	for _, c := range out.Claims {
		state.AddClaim(c)
	}
	for _, s := range out.Sources {
		state.AddSource(s)
	}
	return out.Draft, err
}

// plan runs §4.4's planner step: gather a retrieval bundle for grounding,
// propose a task graph via the LLM, validate/repair it, and install both
// the graph and its initial ready tasks into state.
func (o *Orchestrator) plan(ctx context.Context, state *querystate.QueryState, cfg core.ConfigSnapshot, queryText string) error {
	if o.merger == nil {
		return nil
	}
	bundle, err := o.merger.ExternalLookup(ctx, queryText, 10)
	if err != nil {
		return err
	}
	raw, err := planner.Propose(ctx, o.llmClient, queryText, bundle, cfg.RoutingPolicy.DefaultModel)
	if err != nil || len(raw) == 0 {
		return err
	}
	built, err := planner.BuildTaskGraph(raw)
	if err != nil {
		return err
	}
	for _, w := range built.Warnings {
		state.AddReActStep(querystate.ReActStep{Cycle: 0, Thought: "plan repair", Observation: w})
	}
	state.SetTaskGraph(&built.Graph)

	coord := planner.NewCoordinator(built.Graph)
	for _, t := range coord.ReadyTasks() {
		state.AddReActStep(querystate.ReActStep{TaskID: t.ID, Cycle: 0, Thought: t.Question, Action: "ready"})
	}
	return nil
}

// finish runs the Claim Auditor over candidateDraft (§4.6), assembles the
// reasoning trace from QueryState's recorded AgentResults, and builds the
// final QueryResponse.
func (o *Orchestrator) finish(ctx context.Context, state *querystate.QueryState, cfg core.ConfigSnapshot, candidateDraft string, metrics Metrics) (QueryResponse, error) {
	auditResult, err := o.auditor.Audit(ctx, candidateDraft, cfg.AuditPolicy)
	if err != nil {
		return QueryResponse{}, core.NewError("orchestrator.finish", core.KindFatal, err)
	}
	state.SetFinalAnswer(auditResult.FinalAnswer)

	var warnings []string
	for i, rec := range auditResult.Records {
		if rec.Status == querystate.AuditUnsupported {
			warnings = append(warnings, fmt.Sprintf("claim %d unsupported: %s", i, rec.Notes))
		}
	}
	warnings = append(warnings, auditResult.HedgeWarnings...)
	if auditResult.AckTimedOut {
		warnings = append(warnings, "operator acknowledgement timed out for one or more unsupported claims")
	}

	resultsByCycle := state.ResultsSnapshot()
	cycles := make([]int, 0, len(resultsByCycle))
	for cycle := range resultsByCycle {
		cycles = append(cycles, cycle)
	}
	sort.Ints(cycles)

	reasoning := make([]ReasoningEntry, 0)
	for _, cycle := range cycles {
		for _, r := range resultsByCycle[cycle] {
			reasoning = append(reasoning, ReasoningEntry{
				Agent: r.AgentName, Cycle: r.Cycle, Content: fmt.Sprintf("status=%s model=%s", r.Status, r.ModelSelected), ClaimRefs: r.ClaimsAdded,
			})
		}
	}

	return QueryResponse{
		QueryID:     state.QueryID,
		Answer:      auditResult.FinalAnswer,
		Reasoning:   reasoning,
		ClaimAudits: auditResult.Records,
		Metrics:     metrics,
		Warnings:    warnings,
	}, nil
}

// rotate returns roster reordered so the entry at primusIndex runs
// first, preserving the rest in roster order, per §4.1 step 5a.
func rotate(roster []string, primusIndex int) []string {
	if len(roster) == 0 {
		return nil
	}
	primusIndex = ((primusIndex % len(roster)) + len(roster)) % len(roster)
	out := make([]string, 0, len(roster))
	out = append(out, roster[primusIndex:]...)
	out = append(out, roster[:primusIndex]...)
	return out
}
