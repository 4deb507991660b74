// Package resilience implements the per-agent, per-query circuit breaker
// and the retry-with-backoff strategy the agent runtime uses around every
// LLMAdapter/SearchBackend/StorageBackend call, per spec §4.5 and §4.1's
// failure semantics.
package resilience

import (
	"sync"

	"github.com/autoresearch/orchestrator-core/core"
)

// CircuitState is the three-state machine from §4.5: Closed → Open →
// HalfOpen.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a single breaker instance. Per Design
// Note §9 ("Global singletons... move to per-query instances"), a breaker
// is always constructed fresh for one query and discarded with it — never
// shared across queries.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens. Default 3.
	FailureThreshold int
	// OpenCycles is how many orchestrator cycles the breaker stays open
	// before allowing a half-open probe. Default 1.
	OpenCycles int
	Logger     core.Logger
}

// DefaultCircuitBreakerConfig returns the documented defaults from §4.5.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 3, OpenCycles: 1, Logger: core.NoOpLogger{}}
}

// CircuitBreaker isolates one agent within one query from repeated calls
// to a misbehaving dependency. It advances on two distinct clocks: results
// (success/failure per attempt) and cycles (advanced once per orchestrator
// cycle via AdvanceCycle), since §4.5 measures the open cooldown in
// cycles, not wall-clock time.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu               sync.Mutex
	state            CircuitState
	consecutiveFails int
	cyclesInOpen     int
}

// New creates a circuit breaker for a single agent within a single query.
func New(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.OpenCycles <= 0 {
		config.OpenCycles = 1
	}
	if config.Logger == nil {
		config.Logger = core.NoOpLogger{}
	}
	return &CircuitBreaker{name: name, config: config, state: StateClosed}
}

// Allow reports whether a call should be attempted. In StateOpen it always
// rejects. Transition to HalfOpen happens in AdvanceCycle once the
// cooldown elapses; Allow does not itself mutate cooldown state, so
// repeated calls within the same cycle see a consistent answer.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state != StateOpen
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RecordSuccess closes the breaker (from Closed or HalfOpen) and resets
// the consecutive-failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	from := cb.state
	cb.consecutiveFails = 0
	cb.cyclesInOpen = 0
	cb.state = StateClosed
	if from != StateClosed {
		cb.config.Logger.Info("circuit breaker closed", map[string]interface{}{
			"agent": cb.name, "from_state": from.String(),
		})
	}
}

// RecordFailure counts the failure. From Closed it opens the breaker once
// FailureThreshold consecutive failures accumulate. From HalfOpen a single
// failure reopens it and resets the cooldown, per §4.5 ("on failure →
// Open, reset cooldown").
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.open()
	case StateClosed:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.config.FailureThreshold {
			cb.open()
		}
	case StateOpen:
		// Already open; a stray failed call during the open window
		// (e.g. a probe that was in flight when the window opened)
		// just resets the cooldown rather than compounding.
		cb.cyclesInOpen = 0
	}
}

func (cb *CircuitBreaker) open() {
	from := cb.state
	cb.state = StateOpen
	cb.cyclesInOpen = 0
	if from != StateOpen {
		cb.config.Logger.Warn("circuit breaker opened", map[string]interface{}{
			"agent": cb.name, "consecutive_failures": cb.consecutiveFails,
		})
	}
}

// AdvanceCycle is called once per orchestrator cycle (§4.1 step 5d) for
// every agent's breaker. Once a breaker has spent OpenCycles cycles in
// StateOpen, the next call transitions it to StateHalfOpen so a single
// probe attempt is allowed through.
func (cb *CircuitBreaker) AdvanceCycle() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return
	}
	cb.cyclesInOpen++
	if cb.cyclesInOpen >= cb.config.OpenCycles {
		cb.state = StateHalfOpen
		cb.consecutiveFails = 0
	}
}
