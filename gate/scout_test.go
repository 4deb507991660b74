package gate

import (
	"context"
	"testing"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/llm"
	"github.com/autoresearch/orchestrator-core/querystate"
	"github.com/autoresearch/orchestrator-core/retrieval"
	"github.com/autoresearch/orchestrator-core/search"
)

func weights() core.RankingWeights {
	return core.RankingWeights{BM25: 0.5, Semantic: 0.3, Credibility: 0.2}
}

func TestScoutRunProducesDraftAndSignals(t *testing.T) {
	web := search.NewFakeBackend("web")
	news := search.NewFakeBackend("news")
	query := retrieval.CanonicalizeQuery("capital of france")
	web.Seed(query, search.RawResult{URL: "https://a.example", Title: "A", Snippet: "paris is the capital of france"})
	news.Seed(query, search.RawResult{URL: "https://b.example", Title: "B", Snippet: "paris is the capital city of france"})

	merger := retrieval.NewMerger(retrieval.MergerConfig{Weights: weights()}, retrieval.NewCache(), []search.Backend{web, news}, nil, nil, nil)
	m := llm.NewMockAdapter()
	m.SetResponses("Paris is the capital of France.")

	s := NewScout(merger, m, 10)
	result, err := s.Run(context.Background(), "capital of france", "baseline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DraftAnswer != "Paris is the capital of France." {
		t.Fatalf("expected the mocked draft text, got %q", result.DraftAnswer)
	}
	if len(result.RetrievalBundle) != 2 {
		t.Fatalf("expected 2 documents in the bundle, got %d", len(result.RetrievalBundle))
	}
	if result.MultiHopRequired {
		t.Fatalf("expected multi_hop_required=false with 2 corroborating sources")
	}
}

func TestScoutRunSignalsMultiHopWhenEvidenceThin(t *testing.T) {
	web := search.NewFakeBackend("web")
	query := retrieval.CanonicalizeQuery("an obscure question")
	web.Seed(query, search.RawResult{URL: "https://a.example", Title: "A", Snippet: "a single thin hit"})

	merger := retrieval.NewMerger(retrieval.MergerConfig{Weights: weights()}, retrieval.NewCache(), []search.Backend{web}, nil, nil, nil)
	m := llm.NewMockAdapter()

	s := NewScout(merger, m, 10)
	result, err := s.Run(context.Background(), "an obscure question", "baseline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.MultiHopRequired {
		t.Fatalf("expected multi_hop_required=true with a single corroborating source")
	}
}

func TestRetrievalOverlapRewardsMultiStageDocuments(t *testing.T) {
	docs := []querystate.RetrievalDocument{
		{URL: "a", StageProvenance: []querystate.StorageStage{querystate.StageBM25, querystate.StageVector}},
		{URL: "b", StageProvenance: []querystate.StorageStage{querystate.StageLive}},
	}
	overlap := retrievalOverlap(docs)
	if overlap != 0.5 {
		t.Fatalf("expected overlap 0.5, got %v", overlap)
	}
}

func TestClaimConflictIsZeroForASingleDocument(t *testing.T) {
	docs := []querystate.RetrievalDocument{{URL: "a", Snippet: "anything at all"}}
	if got := claimConflict(docs); got != 0 {
		t.Fatalf("expected zero conflict with one document, got %v", got)
	}
}

func TestClaimConflictIsHighForDisjointSnippets(t *testing.T) {
	docs := []querystate.RetrievalDocument{
		{URL: "a", Snippet: "apples oranges bananas"},
		{URL: "b", Snippet: "rockets satellites orbits"},
	}
	got := claimConflict(docs)
	if got < 0.9 {
		t.Fatalf("expected near-total conflict for disjoint vocabularies, got %v", got)
	}
}

func TestGraphContradictionTrueWhenOntologyScoresDiverge(t *testing.T) {
	docs := []querystate.RetrievalDocument{
		{URL: "a", BlendedScore: 0.9, StageProvenance: []querystate.StorageStage{querystate.StageOntology}},
		{URL: "b", BlendedScore: 0.1, StageProvenance: []querystate.StorageStage{querystate.StageOntology}},
	}
	if !graphContradiction(docs) {
		t.Fatalf("expected contradiction to be flagged for divergent ontology-sourced scores")
	}
}

func TestGraphContradictionFalseWithFewerThanTwoOntologyHits(t *testing.T) {
	docs := []querystate.RetrievalDocument{
		{URL: "a", BlendedScore: 0.9, StageProvenance: []querystate.StorageStage{querystate.StageOntology}},
		{URL: "b", BlendedScore: 0.1, StageProvenance: []querystate.StorageStage{querystate.StageLive}},
	}
	if graphContradiction(docs) {
		t.Fatalf("expected no contradiction with only one ontology-sourced document")
	}
}
