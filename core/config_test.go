package core

import "testing"

func TestDefaultConfigSnapshotValidatesOnceRosterSet(t *testing.T) {
	cfg := DefaultConfigSnapshot()
	cfg.AgentRoster = []string{"synthesizer"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config + roster to validate, got %v", err)
	}
}

func TestEmptyRosterIsConfigError(t *testing.T) {
	cfg := DefaultConfigSnapshot()
	err := cfg.Validate()
	if Kind(err) != KindConfig {
		t.Fatalf("expected KindConfig for empty roster, got %v", err)
	}
}

func TestLoopsMustBePositive(t *testing.T) {
	cfg := DefaultConfigSnapshot()
	cfg.AgentRoster = []string{"synthesizer"}
	cfg.Loops = 0
	if Kind(cfg.Validate()) != KindConfig {
		t.Fatalf("expected loops=0 to be a config error")
	}
}

func TestRankingWeightsMustSumToOne(t *testing.T) {
	w := RankingWeights{BM25: 0.5, Semantic: 0.5, Credibility: 0.5}
	if err := w.Validate(); err == nil {
		t.Fatalf("expected weights summing to 1.5 to fail validation")
	}

	w = RankingWeights{BM25: 1, Semantic: 0, Credibility: 0}
	if err := w.Validate(); err != nil {
		t.Fatalf("expected single-component weighting to validate, got %v", err)
	}
}

func TestPrimusStartOutOfRange(t *testing.T) {
	cfg := DefaultConfigSnapshot()
	cfg.AgentRoster = []string{"a", "b"}
	cfg.PrimusStart = 2
	if Kind(cfg.Validate()) != KindConfig {
		t.Fatalf("expected out-of-range primus_start to be a config error")
	}
}
