// Package agent implements the Agent Runtime & Circuit Breakers (§4.5):
// the narrow Agent capability every dialectical role implements, and an
// Executor that wires retry-with-backoff, a per-agent-per-query circuit
// breaker, and the Model Router around a single invocation. Grounded on
// orchestration/executor.go (SmartExecutor: a thin wrapper
// dispatching to a capability with logging/telemetry/retry around the
// call) generalized from HTTP-capability dispatch to the in-process
// Agent interface, and core/agent.go's Capability/lifecycle naming.
package agent

import (
	"context"
	"time"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/querystate"
	"github.com/autoresearch/orchestrator-core/resilience"
	"github.com/autoresearch/orchestrator-core/router"
)

// Agent is the polymorphic capability every dialectical role implements,
// per §4.5: `execute(state, config) -> AgentResult`. Execute must not
// mutate state's QueryState fields itself — the orchestrator applies
// returned claims/sources/results via QueryState.Add* so every mutation
// goes through the same dedup/supersede rules regardless of which Agent
// produced it.
type Agent interface {
	// Execute runs one invocation against the given QueryState snapshot
	// and config, using model to drive the underlying LLMAdapter calls.
	// It returns the new claims/sources/draft-result it discovered;
	// Execute itself never appends to state.
	Execute(ctx context.Context, state *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error)
	Name() string
	Role() string
}

// Output is what an Agent's Execute call contributes for one invocation.
type Output struct {
	Claims    []querystate.Claim
	Sources   []querystate.Source
	TokensIn  int
	TokensOut int
	Draft     string // candidate answer text, set only by synthesis-capable roles
}

// ExecutorConfig configures the per-agent runtime wiring.
type ExecutorConfig struct {
	Retry          resilience.RetryConfig
	Breaker        resilience.CircuitBreakerConfig
	LatencyBudget  time.Duration
	EstimatedTokens int
	Logger         core.Logger
}

// DefaultExecutorConfig returns the documented §4.5 defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Retry:           resilience.DefaultRetryConfig(),
		Breaker:         resilience.DefaultCircuitBreakerConfig(),
		LatencyBudget:   10 * time.Second,
		EstimatedTokens: 1000,
		Logger:          core.NoOpLogger{},
	}
}

// Executor owns one per-agent-per-query circuit breaker set (never
// process-global, per §4.5) and invokes agents through retry + router
// selection.
type Executor struct {
	cfg      ExecutorConfig
	breakers map[string]*resilience.CircuitBreaker
	mdlRtr   *router.Router
}

// NewExecutor builds an Executor fresh for one query, backed by mdlRouter
// for model selection.
func NewExecutor(cfg ExecutorConfig, mdlRouter *router.Router) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = core.NoOpLogger{}
	}
	return &Executor{cfg: cfg, breakers: make(map[string]*resilience.CircuitBreaker), mdlRtr: mdlRouter}
}

func (e *Executor) breakerFor(name string) *resilience.CircuitBreaker {
	b, ok := e.breakers[name]
	if !ok {
		b = resilience.New(name, e.cfg.Breaker)
		e.breakers[name] = b
	}
	return b
}

// AdvanceCycle ticks every tracked breaker's cooldown clock once, per
// §4.1 step 5d.
func (e *Executor) AdvanceCycle() {
	for _, b := range e.breakers {
		b.AdvanceCycle()
	}
}

// BreakerState reports the named agent's current circuit state (Closed
// if the agent has never run).
func (e *Executor) BreakerState(name string) resilience.CircuitState {
	return e.breakerFor(name).State()
}

// Run invokes a against state/cfg, applying retry and circuit-breaker
// semantics per §4.5, and selecting a model via the wired Router if one
// is configured. The returned AgentResult is always populated (even on
// failure) so the orchestrator can append it to QueryState.Results
// unconditionally; the returned Output is nil on failure.
func (e *Executor) Run(ctx context.Context, a Agent, state *querystate.QueryState, cfg core.ConfigSnapshot, cycle int, remainingCostBudgetUSD float64, agentsRemaining int) (querystate.AgentResult, *Output, error) {
	name := a.Name()
	breaker := e.breakerFor(name)

	result := querystate.AgentResult{AgentName: name, Cycle: cycle}

	if !breaker.Allow() {
		result.Status = querystate.AgentFailed
		result.ErrorKind = core.KindAgentFailure
		result.ErrorMessage = "circuit breaker open"
		return result, nil, nil
	}

	model := cfg.RoutingPolicy.DefaultModel
	var estimatedCost float64
	if e.mdlRtr != nil {
		decision := e.mdlRtr.Select(ctx, name, e.cfg.EstimatedTokens, remainingCostBudgetUSD, agentsRemaining, e.cfg.LatencyBudget, cfg.RoutingPolicy.DefaultModel)
		model = decision.ModelID
		estimatedCost = decision.EstimatedCostUSD
	}
	result.ModelSelected = model
	result.EstimatedCostUSD = estimatedCost

	start := time.Now()
	var out *Output
	retryResult, err := resilience.Do(ctx, e.cfg.Retry, resilience.DefaultClassifier, func() error {
		o, callErr := a.Execute(ctx, state, cfg, model)
		if callErr != nil {
			return callErr
		}
		out = &o
		return nil
	})
	latency := time.Since(start)
	result.LatencyMS = latency.Milliseconds()

	if e.mdlRtr != nil {
		if out != nil {
			result.TokensIn = out.TokensIn
			result.TokensOut = out.TokensOut
		}
		e.mdlRtr.Observe(name, model, int64(result.TokensIn+result.TokensOut), estimatedCost, latency)
	}

	if err != nil {
		breaker.RecordFailure()
		if core.IsCancelled(err) {
			result.Status = querystate.AgentTimeout
		} else if retryResult.Attempts > 1 {
			result.Status = querystate.AgentRetried
		} else {
			result.Status = querystate.AgentFailed
		}
		result.ErrorKind = core.Kind(err)
		result.ErrorMessage = err.Error()
		e.cfg.Logger.Warn("agent: execution failed", map[string]interface{}{
			"agent": name, "attempts": retryResult.Attempts, "error": err.Error(),
		})
		return result, nil, err
	}

	breaker.RecordSuccess()
	if retryResult.Attempts > 1 {
		result.Status = querystate.AgentRetried
	} else {
		result.Status = querystate.AgentOK
	}
	if out != nil {
		result.TokensIn = out.TokensIn
		result.TokensOut = out.TokensOut
		for _, c := range out.Claims {
			result.ClaimsAdded = append(result.ClaimsAdded, c.ClaimID)
		}
		for _, s := range out.Sources {
			result.SourcesAdded = append(result.SourcesAdded, s.URL)
		}
	}
	return result, out, nil
}
