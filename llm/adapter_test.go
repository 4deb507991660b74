package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/autoresearch/orchestrator-core/core"
)

func TestMockAdapterGenerateRoundRobins(t *testing.T) {
	m := NewMockAdapter()
	m.SetResponses("first", "second")

	ctx := context.Background()
	r1, err := m.Generate(ctx, "p1", GenerateParams{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1.Text != "first" {
		t.Fatalf("expected first, got %q", r1.Text)
	}

	r2, _ := m.Generate(ctx, "p2", GenerateParams{})
	if r2.Text != "second" {
		t.Fatalf("expected second, got %q", r2.Text)
	}

	r3, _ := m.Generate(ctx, "p3", GenerateParams{})
	if r3.Text != "first" {
		t.Fatalf("expected wraparound to first, got %q", r3.Text)
	}

	if m.CallCount != 3 {
		t.Fatalf("expected CallCount 3, got %d", m.CallCount)
	}
	if m.LastPrompt != "p3" {
		t.Fatalf("expected LastPrompt p3, got %q", m.LastPrompt)
	}
}

func TestMockAdapterGenerateReturnsConfiguredError(t *testing.T) {
	m := NewMockAdapter()
	injected := errors.New("boom")
	m.SetError(injected)

	_, err := m.Generate(context.Background(), "p", GenerateParams{})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestMockAdapterGenerateRespectsCancellation(t *testing.T) {
	m := NewMockAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, "p", GenerateParams{})
	if core.Kind(err) != core.KindCancelled {
		t.Fatalf("expected KindCancelled, got %v", core.Kind(err))
	}
}

func TestMockAdapterEmbedIsDeterministic(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	v1, err := m.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v2, _ := m.Embed(ctx, "hello world")

	if len(v1) != 8 {
		t.Fatalf("expected dim 8, got %d", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("expected deterministic embedding, differed at %d: %v vs %v", i, v1[i], v2[i])
		}
	}

	v3, _ := m.Embed(ctx, "different text")
	if len(v3) == len(v1) {
		same := true
		for i := range v1 {
			if v1[i] != v3[i] {
				same = false
				break
			}
		}
		if same {
			t.Fatalf("expected different text to produce a different embedding")
		}
	}
}

func TestMockAdapterEntailmentUsesConfiguredScores(t *testing.T) {
	m := NewMockAdapter()
	m.EntailmentScores = map[string]float64{
		"the sky is green": 0.1,
	}

	score, err := m.Entailment(context.Background(), "the sky is green", "the sky is blue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.1 {
		t.Fatalf("expected configured score 0.1, got %v", score)
	}
}

func TestMockAdapterEntailmentFallsBackToLexicalOverlap(t *testing.T) {
	m := NewMockAdapter()

	score, err := m.Entailment(context.Background(), "paris is the capital of france", "paris is the capital of france and a major city")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Fatalf("expected full overlap score 1.0, got %v", score)
	}

	score2, _ := m.Entailment(context.Background(), "the moon is made of cheese", "paris is the capital of france")
	if score2 != 0 {
		t.Fatalf("expected zero overlap, got %v", score2)
	}
}
