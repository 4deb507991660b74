// Package router implements the Model Router & Budget Tracker (§4.8):
// per-agent/per-model token, cost, and p95-latency bookkeeping, and
// cheapest-eligible-model selection under the query's remaining cost
// budget. Grounded on pkg/routing/autonomous.go (mu-guarded
// stats struct, functional-option constructor) and pkg/routing/workflow.go
// (deterministic selection over a static catalog rather than an LLM call).
package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autoresearch/orchestrator-core/core"
)

// ModelProfile describes one model's pricing. Latency is not static per
// model — it's observed per (agent, model) pair via Router.Observe — so
// only price lives here.
type ModelProfile struct {
	ID                string
	PricePerTokenUSD  float64
}

// Decision is the router's output for one agent invocation.
type Decision struct {
	AgentName        string
	ModelID          string
	EstimatedCostUSD float64
	Degraded         bool // true when no model met both budget and latency, and the cheapest eligible model was picked anyway
}

// latencyWindow keeps a bounded ring of recent observed latencies for one
// (agent, model) pair, from which p95 is computed on demand. Grounded on
// the same bounded-sample-window shape circuit breaker uses
// for its failure count, generalized from a counter to a percentile.
type latencyWindow struct {
	samples []time.Duration
}

const maxLatencySamples = 200

func (w *latencyWindow) record(d time.Duration) {
	w.samples = append(w.samples, d)
	if len(w.samples) > maxLatencySamples {
		w.samples = w.samples[len(w.samples)-maxLatencySamples:]
	}
}

// p95 returns the 95th-percentile latency observed so far, or 0 if no
// samples have been recorded yet (treated as "no observed violation" by
// Router.Select).
func (w *latencyWindow) p95() time.Duration {
	if len(w.samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), w.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Router maintains tokens_used, cost_spent, and latency_p95_ms per agent
// and per model, per §4.8, and selects the cheapest model meeting both
// the per-invocation cost share and the agent's latency budget.
//
// Per the Open Question decision recorded in DESIGN.md, the p95 window is
// kept per-process (not per-query): a fresh Router is expensive to warm up
// with no latency history, so observations accumulate across queries the
// way AutonomousRouter accumulates RouterStats across
// requests rather than per-call.
type Router struct {
	mu     sync.Mutex
	models []ModelProfile

	tokensUsed   map[string]int64          // agent -> tokens
	costSpent    map[string]float64        // agent -> USD
	latencyByKey map[string]*latencyWindow // "agent|model" -> window

	decisions   int64
	costSavings float64

	logger  core.Logger
	metrics core.MetricsRegistry
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithLogger installs a structured logger.
func WithLogger(l core.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMetrics installs a metrics registry. When omitted, the router falls
// back to core.GetGlobalMetricsRegistry() at emission time.
func WithMetrics(m core.MetricsRegistry) Option {
	return func(r *Router) { r.metrics = m }
}

// NewRouter builds a Router over the given model catalog, cheapest first
// is not required of the caller — Select sorts internally.
func NewRouter(models []ModelProfile, opts ...Option) *Router {
	r := &Router{
		models:       append([]ModelProfile(nil), models...),
		tokensUsed:   make(map[string]int64),
		costSpent:    make(map[string]float64),
		latencyByKey: make(map[string]*latencyWindow),
		logger:       &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func latencyKey(agent, model string) string { return agent + "|" + model }

// Select implements §4.8's selection rule: for agentName's next
// invocation, pick the cheapest model whose estimated tokens*price <=
// remaining_cost_budget/agents_remaining AND whose observed p95 latency
// (if any) is <= latencyBudget. If none qualifies, fall back to the
// cheapest model overall and mark the decision degraded, emitting
// routing_degraded via the metrics registry.
func (r *Router) Select(ctx context.Context, agentName string, estimatedTokens int, remainingCostBudgetUSD float64, agentsRemaining int, latencyBudget time.Duration, defaultModel string) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := append([]ModelProfile(nil), r.models...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PricePerTokenUSD < sorted[j].PricePerTokenUSD })

	share := remainingCostBudgetUSD
	if agentsRemaining > 0 {
		share = remainingCostBudgetUSD / float64(agentsRemaining)
	}

	var chosen *ModelProfile
	for i := range sorted {
		m := &sorted[i]
		cost := float64(estimatedTokens) * m.PricePerTokenUSD
		if cost > share {
			continue
		}
		if latencyBudget > 0 {
			if w, ok := r.latencyByKey[latencyKey(agentName, m.ID)]; ok {
				if p95 := w.p95(); p95 > 0 && p95 > latencyBudget {
					continue
				}
			}
		}
		chosen = m
		break
	}

	degraded := false
	if chosen == nil {
		degraded = true
		if len(sorted) > 0 {
			chosen = &sorted[0]
		} else {
			chosen = &ModelProfile{ID: defaultModel}
		}
		r.logger.Warn("router: no model satisfied budget/latency constraints, degrading to cheapest eligible", map[string]interface{}{
			"agent": agentName,
		})
		r.emitCounter(ctx, "routing_degraded", "agent", agentName)
	}

	cost := float64(estimatedTokens) * chosen.PricePerTokenUSD
	baseline := r.priceFor(defaultModel)
	savings := float64(estimatedTokens)*baseline - cost
	if savings > 0 {
		r.costSavings += savings
	}
	r.decisions++
	r.emitCounter(ctx, "model_routing_decisions", "agent", agentName, "model", chosen.ID, "degraded", boolLabel(degraded))
	r.emitGauge("model_routing_cost_savings", r.costSavings)

	return Decision{AgentName: agentName, ModelID: chosen.ID, EstimatedCostUSD: cost, Degraded: degraded}
}

func (r *Router) priceFor(modelID string) float64 {
	for _, m := range r.models {
		if m.ID == modelID {
			return m.PricePerTokenUSD
		}
	}
	return 0
}

// Observe records tokens, cost, and latency for one completed agent
// invocation against model, updating the per-agent and per-(agent,model)
// bookkeeping Select reads.
func (r *Router) Observe(agentName, modelID string, tokens int64, costUSD float64, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokensUsed[agentName] += tokens
	r.costSpent[agentName] += costUSD

	key := latencyKey(agentName, modelID)
	w, ok := r.latencyByKey[key]
	if !ok {
		w = &latencyWindow{}
		r.latencyByKey[key] = w
	}
	w.record(latency)
}

// TokensUsed reports cumulative tokens attributed to agentName.
func (r *Router) TokensUsed(agentName string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokensUsed[agentName]
}

// CostSpent reports cumulative USD attributed to agentName.
func (r *Router) CostSpent(agentName string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.costSpent[agentName]
}

// LatencyP95 reports the observed p95 latency for (agentName, modelID),
// or 0 if no samples have been recorded.
func (r *Router) LatencyP95(agentName, modelID string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.latencyByKey[latencyKey(agentName, modelID)]
	if !ok {
		return 0
	}
	return w.p95()
}

// CostSavings reports the cumulative cost-savings-vs-baseline accounting
// total, per §4.8.
func (r *Router) CostSavings() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.costSavings
}

// DecisionCount reports how many Select calls this Router has served,
// feeding the QueryResponse's model_routing_decisions metric.
func (r *Router) DecisionCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions
}

func (r *Router) emitCounter(ctx context.Context, name string, labels ...string) {
	reg := r.metrics
	if reg == nil {
		reg = core.GetGlobalMetricsRegistry()
	}
	if reg == nil {
		return
	}
	reg.EmitWithContext(ctx, name, 1, labels...)
}

func (r *Router) emitGauge(name string, value float64, labels ...string) {
	reg := r.metrics
	if reg == nil {
		reg = core.GetGlobalMetricsRegistry()
	}
	if reg == nil {
		return
	}
	reg.Gauge(name, value, labels...)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
