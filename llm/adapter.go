// Package llm defines the narrow LLMAdapter capability the orchestration
// core consumes (§6.1) and a deterministic mock implementation for tests.
// Concrete provider adapters (Anthropic, OpenAI, Bedrock, Gemini, ...) are
// out of scope per §1 — this package only specifies and exercises the
// boundary.
package llm

import (
	"context"

	"github.com/autoresearch/orchestrator-core/core"
)

// GenerateParams configures a single generation call.
type GenerateParams struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
}

// GenerateResult is the normalized response shape for Generate, per §6.1.
type GenerateResult struct {
	Text        string
	TokensIn    int
	TokensOut   int
	LatencyMS   int64
	ModelUsed   string
}

// Adapter is the capability surface this module consumes from an LLM
// provider. Implementations wrap whatever SDK/HTTP client the provider
// needs; the core never imports a provider SDK directly.
type Adapter interface {
	// Generate produces a completion for prompt under the given model and
	// params.
	Generate(ctx context.Context, prompt string, params GenerateParams) (GenerateResult, error)
	// Embed returns a fixed-dimension embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Entailment scores how well evidence supports claim, in [0,1]. Used
	// by the claim auditor (§4.6) and the FactChecker agent; the gate
	// policy's claim_conflict signal does not call it.
	Entailment(ctx context.Context, claim string, evidence string) (float64, error)
}

// Adapter implementations report errors through the closed core.ErrorKind
// taxonomy rather than a private one, per §6.1: Transient and RateLimited
// map to core.KindTransient / core.KindRateLimited (both retriable);
// InvalidRequest maps to core.KindConfig (fatal, surfaced to the caller);
// Unavailable maps to core.KindTransient as well — the agent runtime's
// retry-then-breaker path treats a temporarily unreachable provider the
// same as any other transient dependency failure.
var _ = core.KindTransient // adapters are expected to use these constants directly
