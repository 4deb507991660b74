// Package gate implements the Scout Pass and Gate Policy (§4.2/§4.3): a
// cheap first-attempt draft plus the deterministic signal-to-decision
// mapping that decides whether a query can exit immediately or needs a
// full debate. This is new domain logic with no direct precedent elsewhere
// in this module — the nearest analog in the pack is threshold-driven
// hallucination detection (orchestration/hallucination_detection_test.go),
// which maps observable signals onto a pass/fail decision the same way
// gate.go maps ScoutResult signals onto a GateDecision.
package gate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/autoresearch/orchestrator-core/llm"
	"github.com/autoresearch/orchestrator-core/querystate"
	"github.com/autoresearch/orchestrator-core/retrieval"
)

// graphContradictionDivergence is the blended-score gap, between two
// ontology-sourced documents in the same bundle, above which the scout
// pass treats the knowledge graph as asserting conflicting support for
// the query. There is no precedent for this figure elsewhere; it is a
// conservative fixed threshold recorded as an Open Question decision.
const graphContradictionDivergence = 0.35

// minCorroboratingSources is the number of distinct retrieval documents
// below which the scout pass considers its evidence too thin to answer
// in one shot, forcing multi_hop_required=true.
const minCorroboratingSources = 2

// Scout runs the lightweight first-attempt pass, per §4.2: gather a
// retrieval bundle, draft an answer from it, and compute the four
// gate signals. It never mutates persistent storage beyond whatever
// caching ExternalLookup itself performs.
type Scout struct {
	merger    *retrieval.Merger
	llmClient llm.Adapter
	topK      int
}

// NewScout builds a Scout backed by merger for retrieval and llmClient
// for the draft answer.
func NewScout(merger *retrieval.Merger, llmClient llm.Adapter, topK int) *Scout {
	if topK <= 0 {
		topK = 10
	}
	return &Scout{merger: merger, llmClient: llmClient, topK: topK}
}

// Run executes one scout pass over queryText using model for the draft
// generation call.
func (s *Scout) Run(ctx context.Context, queryText string, model string) (querystate.ScoutResult, error) {
	docs, err := s.merger.ExternalLookup(ctx, queryText, s.topK)
	if err != nil {
		return querystate.ScoutResult{}, err
	}

	draft, err := s.draftAnswer(ctx, queryText, docs, model)
	if err != nil {
		return querystate.ScoutResult{}, err
	}

	return querystate.ScoutResult{
		DraftAnswer:        draft,
		RetrievalBundle:    docs,
		RetrievalOverlap:   retrievalOverlap(docs),
		ClaimConflict:      claimConflict(docs),
		MultiHopRequired:   len(docs) < minCorroboratingSources,
		GraphContradiction: graphContradiction(docs),
	}, nil
}

func (s *Scout) draftAnswer(ctx context.Context, queryText string, docs []querystate.RetrievalDocument, model string) (string, error) {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(queryText)
	b.WriteString("\n\nEvidence:\n")
	for _, d := range docs {
		b.WriteString("- ")
		b.WriteString(d.Snippet)
		b.WriteString("\n")
	}

	result, err := s.llmClient.Generate(ctx, b.String(), llm.GenerateParams{
		Model:        model,
		SystemPrompt: "Draft a concise candidate answer from the evidence provided. If the evidence is thin, say so.",
		MaxTokens:    512,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// retrievalOverlap is the fraction of documents corroborated by more than
// one retrieval stage (live search, bm25, vector, or ontology) — the
// scout pass's proxy for cross-source agreement, since a document every
// stage surfaces independently is far less likely to be a single
// backend's idiosyncratic hit.
func retrievalOverlap(docs []querystate.RetrievalDocument) float64 {
	if len(docs) == 0 {
		return 0
	}
	corroborated := 0
	for _, d := range docs {
		if len(d.StageProvenance) > 1 {
			corroborated++
		}
	}
	return float64(corroborated) / float64(len(docs))
}

// claimConflict is the average pairwise lexical dissimilarity (1 minus
// Jaccard token overlap) across document snippets. A bundle whose
// snippets barely share vocabulary reads as likely disagreement; a
// single-document bundle has no pair to disagree, so conflict is 0.
func claimConflict(docs []querystate.RetrievalDocument) float64 {
	if len(docs) < 2 {
		return 0
	}
	tokenSets := make([]map[string]struct{}, len(docs))
	for i, d := range docs {
		tokenSets[i] = tokenize(d.Snippet)
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(tokenSets); i++ {
		for j := i + 1; j < len(tokenSets); j++ {
			sum += 1 - jaccard(tokenSets[i], tokenSets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}

// graphContradiction flags the bundle when two ontology-sourced documents
// diverge in blended score by more than graphContradictionDivergence,
// read as the knowledge graph surfacing conflicting support for the
// query rather than a single consistent answer.
func graphContradiction(docs []querystate.RetrievalDocument) bool {
	var ontologyScores []float64
	for _, d := range docs {
		for _, stage := range d.StageProvenance {
			if stage == querystate.StageOntology {
				ontologyScores = append(ontologyScores, d.BlendedScore)
				break
			}
		}
	}
	if len(ontologyScores) < 2 {
		return false
	}
	sort.Float64s(ontologyScores)
	return ontologyScores[len(ontologyScores)-1]-ontologyScores[0] > graphContradictionDivergence
}

func tokenize(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

// describeSignals renders a ScoutResult's signal values for
// GateDecision.Rationale, e.g. "retrieval_overlap=0.750 claim_conflict=0.100
// multi_hop_required=false graph_contradiction=false".
func describeSignals(r querystate.ScoutResult) string {
	return fmt.Sprintf(
		"retrieval_overlap=%.3f claim_conflict=%.3f multi_hop_required=%t graph_contradiction=%t",
		r.RetrievalOverlap, r.ClaimConflict, r.MultiHopRequired, r.GraphContradiction,
	)
}
