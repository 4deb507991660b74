package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/autoresearch/orchestrator-core/core"
)

// baseProgram seeds the Datalog-evaluated ontology with the predicates
// the gate policy's graph_contradiction signal and the claim auditor's
// cross-claim checks rely on: a claim asserts a fact about a subject,
// and two claims contradict when they assert the same subject+predicate
// with different objects.
const baseProgram = `
	Decl asserts(Claim.Type<n>, Subject.Type<n>, Predicate.Type<n>, Object.Type<n>).
	Decl contradicts(ClaimA.Type<n>, ClaimB.Type<n>).

	contradicts(CA, CB) :-
		asserts(CA, S, P, OA),
		asserts(CB, S, P, OB),
		CA != CB,
		OA != OB.
`

// OntologyStore evaluates claim assertions against a small Datalog
// program using google/mangle, following the standard Mangle
// integration pattern (parse.Unit -> analysis.AnalyzeOneUnit ->
// factstore.NewSimpleInMemoryStore -> engine.EvalProgramWithStats),
// generalized from a static ancestor/parent example to a
// claim-contradiction ontology re-evaluated on every asserted fact.
type OntologyStore struct {
	mu          sync.Mutex
	store       factstore.FactStore
	programInfo *analysis.ProgramInfo
	logger      core.Logger
}

// NewOntologyStore parses and evaluates baseProgram to a fixed point,
// ready to accept facts via AssertClaim.
func NewOntologyStore(logger core.Logger) (*OntologyStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	unit, err := parse.Unit(strings.NewReader(baseProgram))
	if err != nil {
		return nil, core.NewError("storage.NewOntologyStore", core.KindConfig, err).WithMessage("parse ontology program")
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, core.NewError("storage.NewOntologyStore", core.KindConfig, err).WithMessage("analyze ontology program")
	}

	store := factstore.NewSimpleInMemoryStore()
	if _, err := engine.EvalProgramWithStats(programInfo, store); err != nil {
		return nil, core.NewError("storage.NewOntologyStore", core.KindStorage, err).WithMessage("evaluate ontology program")
	}

	return &OntologyStore{store: store, programInfo: programInfo, logger: logger}, nil
}

// AssertClaim records that claimID asserts subject-predicate-object,
// then re-evaluates the program so derived predicates (contradicts)
// reflect the new fact.
func (o *OntologyStore) AssertClaim(ctx context.Context, claimID, subject, predicate, object string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	atom := ast.NewAtom("asserts", ast.Name("/"+sanitizeName(claimID)), ast.Name("/"+sanitizeName(subject)), ast.Name("/"+sanitizeName(predicate)), ast.Name("/"+sanitizeName(object)))
	o.store.Add(atom)

	if _, err := engine.EvalProgramWithStats(o.programInfo, o.store); err != nil {
		o.logger.Error("storage: ontology re-evaluation failed", map[string]interface{}{"error": err.Error()})
		return core.NewError("storage.OntologyStore.AssertClaim", core.KindStorage, err)
	}
	return nil
}

// Contradictions returns every (claimA, claimB) pair the engine has
// derived as contradicting, used by the gate policy's
// graph_contradiction signal.
func (o *OntologyStore) Contradictions(ctx context.Context) ([]OntologyResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pred := ast.PredicateSym{Symbol: "contradicts", Arity: 2}
	query := ast.NewQuery(pred)

	var out []OntologyResult
	err := o.store.GetFacts(query, func(atom ast.Atom) error {
		args := make([]string, len(atom.Args))
		for i, a := range atom.Args {
			args[i] = termString(a)
		}
		out = append(out, OntologyResult{Predicate: "contradicts", Args: args})
		return nil
	})
	if err != nil {
		return nil, core.NewError("storage.OntologyStore.Contradictions", core.KindStorage, err)
	}
	return out, nil
}

// Query implements a free-text lookup over asserted facts: every fact
// whose subject, predicate, or object textually matches text.
func (o *OntologyStore) Query(ctx context.Context, text string) ([]OntologyResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pred := ast.PredicateSym{Symbol: "asserts", Arity: 4}
	query := ast.NewQuery(pred)

	needle := strings.ToLower(text)
	var out []OntologyResult
	err := o.store.GetFacts(query, func(atom ast.Atom) error {
		args := make([]string, len(atom.Args))
		matched := false
		for i, a := range atom.Args {
			args[i] = termString(a)
			if strings.Contains(strings.ToLower(args[i]), needle) {
				matched = true
			}
		}
		if matched {
			out = append(out, OntologyResult{Predicate: "asserts", Args: args})
		}
		return nil
	})
	if err != nil {
		return nil, core.NewError("storage.OntologyStore.Query", core.KindStorage, err)
	}
	return out, nil
}

func termString(term ast.BaseTerm) string {
	if c, ok := term.(ast.Constant); ok {
		return strings.TrimPrefix(c.Symbol, "/")
	}
	return fmt.Sprintf("%v", term)
}

// sanitizeName makes s safe as a Mangle Name constant: Mangle names are
// identifier-like, so spaces and punctuation are collapsed to
// underscores.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
