package llm

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/autoresearch/orchestrator-core/core"
)

// MockAdapter is a deterministic, scripted Adapter for tests. Grounded on
// ai/providers/mock.Client: a round-robin Responses list,
// CallCount tracking, configurable error injection, and awareness of
// context cancellation — generalized here to also cover Embed and
// Entailment, which the mock provider never needed.
type MockAdapter struct {
	mu sync.Mutex

	// Responses are returned round-robin by Generate. Defaults to a single
	// canned response if unset.
	Responses []string
	// ResponseIndex is the index of the next response to return.
	ResponseIndex int
	// Error, if set, is returned by Generate, Embed, and Entailment instead
	// of a scripted result.
	Error error
	// CallCount is the number of times Generate has been called.
	CallCount int
	// LastPrompt records the prompt of the most recent Generate call.
	LastPrompt string

	// EntailmentScores maps claim text to a fixed score in [0,1]. It is
	// consulted only when EntailmentFunc is unset; a claim not present here
	// falls back to a deterministic lexical-overlap heuristic.
	EntailmentScores map[string]float64
	// EntailmentFunc, if set, computes the entailment score directly,
	// taking precedence over EntailmentScores.
	EntailmentFunc func(claim, evidence string) float64

	// EmbedDim controls the dimensionality of vectors returned by Embed.
	// Defaults to 8.
	EmbedDim int
}

// NewMockAdapter returns a MockAdapter with a single default response,
// mirroring a mock provider's default of []string{"Mock response"}.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		Responses: []string{"mock response"},
		EmbedDim:  8,
	}
}

// SetResponses replaces the scripted response list and resets the cursor.
func (m *MockAdapter) SetResponses(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = responses
	m.ResponseIndex = 0
}

// SetError configures the error every subsequent call returns.
func (m *MockAdapter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
}

// Reset clears call-tracking state and any injected error.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResponseIndex = 0
	m.CallCount = 0
	m.LastPrompt = ""
	m.Error = nil
}

// Generate returns the next scripted response, looping back to the start
// of Responses once exhausted so long-running test scenarios (multiple
// debate cycles) never need more canned text than a single round.
func (m *MockAdapter) Generate(ctx context.Context, prompt string, params GenerateParams) (GenerateResult, error) {
	select {
	case <-ctx.Done():
		return GenerateResult{}, core.NewError("llm.MockAdapter.Generate", core.KindCancelled, ctx.Err())
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastPrompt = prompt

	if m.Error != nil {
		return GenerateResult{}, m.Error
	}
	if len(m.Responses) == 0 {
		return GenerateResult{}, core.NewError("llm.MockAdapter.Generate", core.KindFatal, errors.New("no scripted responses configured"))
	}

	text := m.Responses[m.ResponseIndex%len(m.Responses)]
	m.ResponseIndex++

	model := params.Model
	if model == "" {
		model = "mock-model"
	}

	return GenerateResult{
		Text:      text,
		TokensIn:  len(prompt) / 4,
		TokensOut: len(text) / 4,
		LatencyMS: 1,
		ModelUsed: model,
	}, nil
}

// Embed returns a deterministic fixed-dimension vector derived from a
// hash of text, so identical inputs always produce identical embeddings
// without requiring a real model.
func (m *MockAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, core.NewError("llm.MockAdapter.Embed", core.KindCancelled, ctx.Err())
	default:
	}

	m.mu.Lock()
	err := m.Error
	dim := m.EmbedDim
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if dim <= 0 {
		dim = 8
	}

	vec := make([]float32, dim)
	h := fnv.New64a()
	for i := 0; i < dim; i++ {
		h.Reset()
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		sum := h.Sum64()
		// Map the hash into [-1, 1] deterministically.
		vec[i] = float32(sum%2000)/1000 - 1
	}
	return vec, nil
}

// Entailment scores claim against evidence. Precedence: EntailmentFunc,
// then an exact match in EntailmentScores, then a deterministic
// lexical-overlap heuristic (shared-word fraction) so unconfigured test
// scenarios still get a stable, non-random score.
func (m *MockAdapter) Entailment(ctx context.Context, claim string, evidence string) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, core.NewError("llm.MockAdapter.Entailment", core.KindCancelled, ctx.Err())
	default:
	}

	m.mu.Lock()
	err := m.Error
	fn := m.EntailmentFunc
	scores := m.EntailmentScores
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if fn != nil {
		return fn(claim, evidence), nil
	}
	if scores != nil {
		if s, ok := scores[claim]; ok {
			return s, nil
		}
	}
	return lexicalOverlap(claim, evidence), nil
}

// lexicalOverlap is a deterministic stand-in entailment heuristic: the
// fraction of claim words also present in evidence.
func lexicalOverlap(claim, evidence string) float64 {
	claimWords := strings.Fields(strings.ToLower(claim))
	if len(claimWords) == 0 {
		return 0
	}
	evidenceSet := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(evidence)) {
		evidenceSet[w] = struct{}{}
	}
	matched := 0
	for _, w := range claimWords {
		if _, ok := evidenceSet[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(claimWords))
}

// simulateLatency sleeps for d when d is positive. Nothing in this module
// calls it; Generate and Embed return without delay.
func simulateLatency(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
