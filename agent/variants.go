package agent

import (
	"context"
	"fmt"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/llm"
	"github.com/autoresearch/orchestrator-core/querystate"
	"github.com/autoresearch/orchestrator-core/retrieval"
)

// base implements the bookkeeping shared by every dialectical role: build
// a role-specific prompt from the current QueryState, call the
// LLMAdapter, and wrap the result as a single Claim of the role's
// ClaimType. Grounded on orchestration/executor.go's per-capability
// dispatch shape, collapsed from HTTP-capability invocation to a direct
// LLMAdapter call since every role here is in-process.
type base struct {
	name       string
	role       string
	claimType  querystate.ClaimType
	llmClient  llm.Adapter
	systemPrompt func(role string) string
}

func (b *base) Name() string { return b.name }
func (b *base) Role() string { return b.role }

func (b *base) promptFor(state *querystate.QueryState) string {
	prompt := "Role: " + b.role + "\n\n"
	for _, c := range state.ClaimsSnapshot() {
		prompt += string(c.Type) + ": " + c.Text + "\n"
	}
	return prompt
}

func (b *base) execute(ctx context.Context, state *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	sys := b.role
	if b.systemPrompt != nil {
		sys = b.systemPrompt(b.role)
	}
	result, err := b.llmClient.Generate(ctx, b.promptFor(state), llm.GenerateParams{
		Model:        model,
		SystemPrompt: sys,
		MaxTokens:    1024,
	})
	if err != nil {
		return Output{}, err
	}

	claim := querystate.Claim{
		ClaimID:        fmt.Sprintf("%s-cycle%d", b.name, state.Cycle),
		Text:           result.Text,
		Type:           b.claimType,
		CreatedByAgent: b.name,
		CycleCreated:   state.Cycle,
	}
	out := Output{
		Claims:    []querystate.Claim{claim},
		TokensIn:  result.TokensIn,
		TokensOut: result.TokensOut,
	}
	if b.claimType == querystate.ClaimSynthesis {
		out.Draft = result.Text
	}
	return out, nil
}

// Synthesizer produces the thesis/candidate-answer claim each cycle, and
// is the role the orchestrator calls directly in `direct` reasoning mode.
type Synthesizer struct{ base }

func NewSynthesizer(client llm.Adapter) *Synthesizer {
	return &Synthesizer{base{name: "synthesizer", role: "synthesizer", claimType: querystate.ClaimSynthesis, llmClient: client}}
}
func (a *Synthesizer) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	return a.execute(ctx, s, cfg, model)
}

// Contrarian argues the antithesis against the current synthesis/thesis.
type Contrarian struct{ base }

func NewContrarian(client llm.Adapter) *Contrarian {
	return &Contrarian{base{name: "contrarian", role: "contrarian", claimType: querystate.ClaimAntithesis, llmClient: client}}
}
func (a *Contrarian) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	return a.execute(ctx, s, cfg, model)
}

// FactChecker scores existing claims for entailment against their
// sources rather than generating new prose; it produces one evidence
// claim per scored (claim, source) pair, recording the entailment score.
type FactChecker struct {
	base
}

func NewFactChecker(client llm.Adapter) *FactChecker {
	return &FactChecker{base{name: "fact_checker", role: "fact_checker", claimType: querystate.ClaimEvidence, llmClient: client}}
}
func (a *FactChecker) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	claims := s.ClaimsSnapshot()
	var claimsOut []querystate.Claim
	var tokensIn, tokensOut int
	for _, c := range claims {
		for _, src := range c.Sources {
			score, err := a.llmClient.Entailment(ctx, c.Text, src.Snippet)
			if err != nil {
				continue
			}
			claimsOut = append(claimsOut, querystate.Claim{
				ClaimID:        c.ClaimID + "-check-" + src.URL,
				Text:           fmt.Sprintf("entailment(%q, %q) = %.3f", c.ClaimID, src.URL, score),
				Type:           querystate.ClaimEvidence,
				CreatedByAgent: a.name,
				CycleCreated:   s.Cycle,
			})
		}
	}
	return Output{Claims: claimsOut, TokensIn: tokensIn, TokensOut: tokensOut}, nil
}

// Researcher fans out to the Hybrid Retrieval Merger for new sources and
// attaches them to a fresh evidence claim, the only role that returns
// Sources in its Output rather than just Claims.
type Researcher struct {
	base
	merger *retrieval.Merger
	topK   int
}

func NewResearcher(client llm.Adapter, merger *retrieval.Merger, topK int) *Researcher {
	if topK <= 0 {
		topK = 5
	}
	return &Researcher{base: base{name: "researcher", role: "researcher", claimType: querystate.ClaimEvidence, llmClient: client}, merger: merger, topK: topK}
}
func (a *Researcher) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	query := a.promptFor(s)
	docs, err := a.merger.ExternalLookup(ctx, query, a.topK)
	if err != nil {
		return Output{}, err
	}

	var sources []querystate.Source
	for _, d := range docs {
		set := make(map[querystate.StorageStage]struct{}, len(d.StageProvenance))
		for _, stage := range d.StageProvenance {
			set[stage] = struct{}{}
		}
		sources = append(sources, querystate.Source{
			URL:            d.URL,
			Title:          d.Title,
			Snippet:        d.Snippet,
			Backend:        d.BackendName,
			StorageSources: set,
		})
	}

	if len(sources) == 0 {
		return Output{}, nil
	}

	claim := querystate.Claim{
		ClaimID:        fmt.Sprintf("researcher-cycle%d", s.Cycle),
		Text:           "retrieved " + fmt.Sprint(len(sources)) + " supporting sources",
		Type:           querystate.ClaimEvidence,
		CreatedByAgent: a.name,
		CycleCreated:   s.Cycle,
		Sources:        sources,
	}
	return Output{Claims: []querystate.Claim{claim}, Sources: sources}, nil
}

// Critic reviews the current claim set for weaknesses, producing
// antithesis-flavored feedback without new retrieval.
type Critic struct{ base }

func NewCritic(client llm.Adapter) *Critic {
	return &Critic{base{name: "critic", role: "critic", claimType: querystate.ClaimAntithesis, llmClient: client}}
}
func (a *Critic) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	return a.execute(ctx, s, cfg, model)
}

// Summarizer condenses the accumulated claim set into a synthesis claim,
// distinct from Synthesizer in that it never introduces new argument —
// only compression.
type Summarizer struct{ base }

func NewSummarizer(client llm.Adapter) *Summarizer {
	return &Summarizer{base{name: "summarizer", role: "summarizer", claimType: querystate.ClaimSynthesis, llmClient: client}}
}
func (a *Summarizer) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	return a.execute(ctx, s, cfg, model)
}

// Planner (as an Agent) re-plans mid-debate when the task graph needs
// adjusting; it produces a thesis-flavored claim describing the revised
// plan rather than touching the TaskGraph directly. The claim is recorded
// like any other; the orchestrator builds the TaskGraph once before the
// debate loop and does not feed this claim back into
// planner.BuildTaskGraph.
type Planner struct{ base }

func NewPlannerAgent(client llm.Adapter) *Planner {
	return &Planner{base{name: "planner", role: "planner", claimType: querystate.ClaimThesis, llmClient: client}}
}
func (a *Planner) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	return a.execute(ctx, s, cfg, model)
}

// Moderator arbitrates between thesis and antithesis claims, producing a
// synthesis claim — distinct from Synthesizer in that it explicitly
// prompts for reconciliation of the two sides rather than initial
// drafting.
type Moderator struct{ base }

func NewModerator(client llm.Adapter) *Moderator {
	return &Moderator{base{
		name: "moderator", role: "moderator", claimType: querystate.ClaimSynthesis, llmClient: client,
		systemPrompt: func(role string) string {
			return "You are the moderator. Reconcile the thesis and antithesis claims into a single balanced position."
		},
	}}
}
func (a *Moderator) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	return a.execute(ctx, s, cfg, model)
}

// DomainSpecialist injects domain-specific framing via a fixed system
// prompt prefix, e.g. a legal, medical, or financial lens.
type DomainSpecialist struct {
	base
	domain string
}

func NewDomainSpecialist(client llm.Adapter, domain string) *DomainSpecialist {
	d := &DomainSpecialist{base: base{name: "domain_specialist_" + domain, role: "domain_specialist", claimType: querystate.ClaimEvidence, llmClient: client}, domain: domain}
	d.base.systemPrompt = func(role string) string {
		return "You are a " + d.domain + " domain specialist. Frame your claim using " + d.domain + " terminology and constraints."
	}
	return d
}
func (a *DomainSpecialist) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	return a.execute(ctx, s, cfg, model)
}

// UserAgent represents an injected human-provided claim (e.g. operator
// acknowledgement text from the audit hedge gate) rather than an LLM
// call; Execute is a no-op passthrough that never calls the LLMAdapter.
type UserAgent struct {
	name string
	text string
}

func NewUserAgent(text string) *UserAgent {
	return &UserAgent{name: "user_agent", text: text}
}
func (a *UserAgent) Name() string { return a.name }
func (a *UserAgent) Role() string { return "user_agent" }
func (a *UserAgent) Execute(ctx context.Context, s *querystate.QueryState, cfg core.ConfigSnapshot, model string) (Output, error) {
	if a.text == "" {
		return Output{}, nil
	}
	claim := querystate.Claim{
		ClaimID:        fmt.Sprintf("user-cycle%d", s.Cycle),
		Text:           a.text,
		Type:           querystate.ClaimEvidence,
		CreatedByAgent: a.name,
		CycleCreated:   s.Cycle,
	}
	return Output{Claims: []querystate.Claim{claim}}, nil
}
