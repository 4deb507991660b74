package gate

import (
	"strings"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/querystate"
)

// Evaluate implements §4.3's exit/debate decision: exit only when
// retrieval_overlap clears its floor, claim_conflict clears its ceiling,
// and multi_hop_required/graph_contradiction both match the configured
// (normally false) target — i.e. the scout pass found corroborated,
// non-conflicting, single-hop, contradiction-free evidence. loops is the
// configured cycle count used as max_cycles when the decision is debate;
// an exit decision always carries max_cycles=0.
func Evaluate(result querystate.ScoutResult, thresholds core.GateThresholds, loops int) querystate.GateDecision {
	overlapOK := result.RetrievalOverlap >= thresholds.RetrievalOverlapMin
	conflictOK := result.ClaimConflict <= thresholds.ClaimConflictMax
	multiHopOK := result.MultiHopRequired == thresholds.MultiHopRequired
	contradictionOK := result.GraphContradiction == thresholds.GraphContradiction

	decision := querystate.GateDecision{Thresholds: thresholds}

	if overlapOK && conflictOK && multiHopOK && contradictionOK {
		decision.Action = querystate.GateExit
		decision.MaxCycles = 0
		decision.Rationale = "all four gate conditions held: " + describeSignals(result)
		return decision
	}

	decision.Action = querystate.GateDebate
	if loops < 1 {
		loops = 1
	}
	decision.MaxCycles = loops
	decision.Rationale = "escalating to debate (" + failedConditions(overlapOK, conflictOK, multiHopOK, contradictionOK) + "): " + describeSignals(result)
	return decision
}

func failedConditions(overlapOK, conflictOK, multiHopOK, contradictionOK bool) string {
	var failed []string
	if !overlapOK {
		failed = append(failed, "retrieval_overlap")
	}
	if !conflictOK {
		failed = append(failed, "claim_conflict")
	}
	if !multiHopOK {
		failed = append(failed, "multi_hop_required")
	}
	if !contradictionOK {
		failed = append(failed, "graph_contradiction")
	}
	if len(failed) == 0 {
		return "none"
	}
	return strings.Join(failed, ", ")
}
