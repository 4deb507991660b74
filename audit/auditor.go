// Package audit implements the Claim Auditor (§4.6): extracting claims
// from a synthesized answer, scoring each against retrieved evidence,
// and hedging whatever remains unsupported after the configured number
// of retry rounds — optionally blocking for an operator acknowledgement
// first. Grounded on orchestration/hitl_controller.go
// (DefaultInterruptController: policy decision -> notify -> await
// acknowledgement with a bounded timeout) generalized from a webhook/
// checkpoint-store notification flow to a single blocking RequestAck
// call, and hitl_policy_test.go's threshold-to-decision shape.
package audit

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/llm"
	"github.com/autoresearch/orchestrator-core/querystate"
	"github.com/autoresearch/orchestrator-core/retrieval"
)

// quantum matches the 10^-6 grid the hybrid retrieval merger rounds
// ranking scores to (§4.7 step 5), applied here to entailment/stability
// scores for the same cross-platform-determinism reason.
const quantum = 1e-6

func quantizeScore(v float64) float64 {
	return math.Round(v/quantum) * quantum
}

// sentenceRe splits a draft answer into sentences while keeping each
// match's trailing whitespace, so concatenating every match reproduces
// the original string exactly — required for hedging to leave supported
// sentences byte-identical.
var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+\s*`)

// extractClaims is the deterministic claim splitter from §4.6 step 1: one
// claim per sentence, in order, with any unterminated trailing fragment
// kept as a final claim.
func extractClaims(draft string) []string {
	matches := sentenceRe.FindAllString(draft, -1)
	consumed := 0
	for _, m := range matches {
		consumed += len(m)
	}
	if consumed < len(draft) {
		matches = append(matches, draft[consumed:])
	}
	return matches
}

// AckProvider requests a human operator's acknowledgement of an
// unsupported claim, blocking until ctx is done or the operator
// responds. A nil AckProvider is treated as an operator who never
// responds, so every request times out immediately.
type AckProvider interface {
	RequestAck(ctx context.Context, claimID string, claimText string) (bool, error)
}

// Result is what Audit returns: the final answer text — byte-identical to
// draft, never annotated with hedge markers — one AuditRecord per
// extracted claim, the structured hedge warnings for whatever claims
// remain unsupported, and whether any claim forced the
// operator-acknowledgement path to time out. Per §6.2, hedge annotations
// belong only in QueryResponse.Warnings, never concatenated into the
// answer.
type Result struct {
	FinalAnswer   string
	Records       []querystate.AuditRecord
	HedgeWarnings []string
	AckTimedOut   bool
}

// Auditor runs the §4.6 entailment-scoring and hedging pipeline over a
// synthesized draft answer.
type Auditor struct {
	merger      *retrieval.Merger
	llmClient   llm.Adapter
	ackProvider AckProvider
}

// NewAuditor builds an Auditor. ackProvider may be nil if
// audit.require_human_ack is never set.
func NewAuditor(merger *retrieval.Merger, llmClient llm.Adapter, ackProvider AckProvider) *Auditor {
	return &Auditor{merger: merger, llmClient: llmClient, ackProvider: ackProvider}
}

// Audit extracts claims from draft, scores each against iteratively
// retrieved evidence, hedges whatever remains unsupported after
// policy.MaxRounds retries, and optionally blocks for an operator
// acknowledgement per policy.RequireHumanAck.
func (a *Auditor) Audit(ctx context.Context, draft string, policy core.AuditPolicy) (Result, error) {
	sentences := extractClaims(draft)
	records := make([]querystate.AuditRecord, len(sentences))
	ackTimedOut := false

	for i, sentence := range sentences {
		claimText := strings.TrimSpace(sentence)
		if claimText == "" {
			records[i] = querystate.AuditRecord{Status: querystate.AuditSupported}
			continue
		}

		record, err := a.scoreWithRetries(ctx, claimText, policy)
		if err != nil {
			return Result{}, err
		}
		records[i] = record
	}

	if policy.RequireHumanAck {
		for i, record := range records {
			if record.Status != querystate.AuditUnsupported {
				continue
			}
			claimID := fmt.Sprintf("claim-%d", i)
			ok, timedOut := a.requestAck(ctx, claimID, strings.TrimSpace(sentences[i]), policy)
			if timedOut {
				ackTimedOut = true
				records[i].Notes = appendNote(records[i].Notes, "ack_timeout=true")
			} else if ok {
				records[i].Notes = appendNote(records[i].Notes, "operator_acknowledged=true")
			}
		}
	}

	hedgeWarnings := hedgeWarningsFor(sentences, records, policy.HedgeMode)

	return Result{FinalAnswer: draft, Records: records, HedgeWarnings: hedgeWarnings, AckTimedOut: ackTimedOut}, nil
}

// scoreWithRetries runs one entailment-scoring pass, and re-runs
// retrieval+scoring up to policy.MaxRounds times while the claim remains
// unsupported, per §4.6 step 4.
func (a *Auditor) scoreWithRetries(ctx context.Context, claimText string, policy core.AuditPolicy) (querystate.AuditRecord, error) {
	retries := policy.MaxRounds
	if retries < 0 {
		retries = 0
	}

	var record querystate.AuditRecord
	for round := 0; round <= retries; round++ {
		scored, err := a.score(ctx, claimText, policy)
		if err != nil {
			return querystate.AuditRecord{}, err
		}
		scored.RetryCount = round
		record = scored
		if record.Status != querystate.AuditUnsupported {
			break
		}
	}
	return record, nil
}

func (a *Auditor) score(ctx context.Context, claimText string, policy core.AuditPolicy) (querystate.AuditRecord, error) {
	maxResults := policy.MaxRetryResults
	if maxResults <= 0 {
		maxResults = 5
	}

	docs, err := a.merger.ExternalLookup(ctx, claimText, maxResults)
	if err != nil {
		return querystate.AuditRecord{}, err
	}

	if len(docs) == 0 {
		return querystate.AuditRecord{
			Status:          querystate.AuditUnsupported,
			EntailmentScore: 0,
			StabilityScore:  0,
			Notes:           "no supporting evidence retrieved",
		}, nil
	}

	var sum, sumSq float64
	sources := make([]querystate.Source, 0, len(docs))
	for _, d := range docs {
		score, err := a.llmClient.Entailment(ctx, claimText, d.Snippet)
		if err != nil {
			return querystate.AuditRecord{}, err
		}
		sum += score
		sumSq += score * score

		stages := make(map[querystate.StorageStage]struct{}, len(d.StageProvenance))
		for _, stage := range d.StageProvenance {
			stages[stage] = struct{}{}
		}
		sources = append(sources, querystate.Source{
			URL: d.URL, Title: d.Title, Snippet: d.Snippet, Backend: d.BackendName, StorageSources: stages,
		})
	}

	n := float64(len(docs))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	stability := 1 - math.Sqrt(variance)
	if stability < 0 {
		stability = 0
	}

	status := querystate.AuditNeedsReview
	switch {
	case mean >= policy.SupportedMin:
		status = querystate.AuditSupported
	case mean <= policy.UnsupportedMax:
		status = querystate.AuditUnsupported
	}

	return querystate.AuditRecord{
		Status:          status,
		EntailmentScore: quantizeScore(mean),
		StabilityScore:  quantizeScore(stability),
		Sources:         sources,
	}, nil
}

func (a *Auditor) requestAck(ctx context.Context, claimID, claimText string, policy core.AuditPolicy) (acknowledged bool, timedOut bool) {
	if a.ackProvider == nil {
		return false, true
	}

	timeout := policy.OperatorTimeout
	ackCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := a.ackProvider.RequestAck(ackCtx, claimID, claimText)
	if err != nil {
		if core.IsCancelled(err) || ackCtx.Err() != nil {
			return false, true
		}
		return false, false
	}
	return ok, false
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}

// hedgeWarningsFor builds one structured warning per unsupported sentence,
// per the configured mode, instead of annotating the answer text: §6.2
// requires the answer stay free of warning-prefix substrings, with hedge
// annotations surfaced only in QueryResponse.Warnings.
func hedgeWarningsFor(sentences []string, records []querystate.AuditRecord, mode core.HedgeMode) []string {
	if mode == core.HedgeNone {
		return nil
	}

	var warnings []string
	for i, sentence := range sentences {
		if i >= len(records) || records[i].Status != querystate.AuditUnsupported {
			continue
		}
		text := strings.TrimSpace(sentence)
		if text == "" {
			continue
		}

		switch mode {
		case core.HedgePrefix:
			warnings = append(warnings, "[unverified] "+text)
		case core.HedgeInline:
			warnings = append(warnings, text+" (unverified)")
		}
	}
	return warnings
}
