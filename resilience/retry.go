package resilience

import (
	"context"
	"time"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures the exponential-backoff retry strategy from
// §4.1's failure semantics: "retried with exponential backoff up to N
// attempts (default 3, base 200ms, jitter +-20%)".
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent float64
}

// DefaultRetryConfig returns the documented defaults from §4.1.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		JitterPercent: 0.2,
	}
}

// Classifier decides whether an error counts toward the retry budget at
// all; non-transient errors bypass retry entirely and should trip the
// caller's circuit breaker directly, per §4.5.
type Classifier func(error) bool

// DefaultClassifier retries only errors tagged Transient or RateLimited.
func DefaultClassifier(err error) bool {
	return core.IsTransient(err)
}

// Result carries the bookkeeping the orchestrator records for an
// AgentResult when a retry strategy was used, per §4.1
// ("Recorded as retry_with_backoff strategy").
type Result struct {
	Attempts int
	Delays   []time.Duration
	Strategy string
}

// Do runs fn, retrying with exponential backoff and jitter while
// classify(err) is true, up to cfg.MaxAttempts total attempts. A non-
// retriable error (classify returns false) is returned immediately on the
// attempt it occurs, without consuming further retries.
func Do(ctx context.Context, cfg RetryConfig, classify Classifier, fn func() error) (Result, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	if classify == nil {
		classify = DefaultClassifier
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.MaxInterval = cfg.MaxDelay
	bo.RandomizationFactor = cfg.JitterPercent
	bo.Multiplier = 2.0

	result := Result{Strategy: "retry_with_backoff"}
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		select {
		case <-ctx.Done():
			return result, core.NewError("resilience.Do", core.KindCancelled, ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !classify(err) {
			return result, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		result.Delays = append(result.Delays, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, core.NewError("resilience.Do", core.KindCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	return result, core.NewError("resilience.Do", core.KindTransient, lastErr).
		WithMessage("maximum retries exceeded")
}
