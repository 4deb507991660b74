// Package planner implements the Planner & Task Coordinator (§4.4):
// TaskGraph construction with a deterministic repair pass, and a
// dependency-aware ready-task scheduler with an append-only ReAct log.
// Grounded on orchestration/workflow_dag.go (mu-guarded DAG,
// DFS cycle detection, dependents/ready-node bookkeeping) and
// orchestration/catalog.go (capability/affinity scoring over a cached
// index).
package planner

import (
	"sort"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/querystate"
)

// RawTask is the planner LLM's proposed task, before validation/repair.
// Kept distinct from querystate.TaskNode because Depth is always
// computed, never LLM-supplied.
type RawTask struct {
	ID           string
	Question     string
	Objectives   []string
	ExitCriteria []string
	ToolAffinity map[string]float64
	Dependencies []string
}

// BuildResult is the outcome of normalizing a planner proposal into a
// valid TaskGraph.
type BuildResult struct {
	Graph   querystate.TaskGraph
	Repaired bool
	Warnings []string
}

// BuildTaskGraph normalizes raw tasks into a validated, acyclic TaskGraph
// per §3's TaskGraph invariant and §4.4's repair pass: cycles are broken
// by dropping the latest edge that closes them, tool_affinity values are
// clamped to [0,1], and nodes with empty exit_criteria are rejected
// outright (repair cannot invent exit criteria, only topology/affinity).
func BuildTaskGraph(tasks []RawTask) (BuildResult, error) {
	const op = "planner.BuildTaskGraph"

	for _, t := range tasks {
		if len(t.ExitCriteria) == 0 {
			return BuildResult{}, core.NewError(op, core.KindConfig, nil).WithMessage("task " + t.ID + " has empty exit_criteria")
		}
	}

	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = true
	}

	repaired := false
	var warnings []string

	// Drop dependency edges pointing at unknown ids outright — they can
	// never become ready, and repairing them (inventing a node) would
	// violate the caller's plan more than dropping the edge does.
	normalized := make([]RawTask, len(tasks))
	for i, t := range tasks {
		nt := t
		var deps []string
		for _, d := range t.Dependencies {
			if ids[d] && d != t.ID {
				deps = append(deps, d)
			} else {
				repaired = true
				warnings = append(warnings, "dropped dangling or self dependency: "+t.ID+" -> "+d)
			}
		}
		nt.Dependencies = deps

		affinity := make(map[string]float64, len(t.ToolAffinity))
		for tool, score := range t.ToolAffinity {
			clamped := score
			if clamped < 0 {
				clamped = 0
				repaired = true
				warnings = append(warnings, "clamped negative affinity: "+t.ID+"/"+tool)
			} else if clamped > 1 {
				clamped = 1
				repaired = true
				warnings = append(warnings, "clamped affinity above 1: "+t.ID+"/"+tool)
			}
			affinity[tool] = clamped
		}
		nt.ToolAffinity = affinity

		normalized[i] = nt
	}

	// Cycle removal: process tasks in id order for determinism, and for
	// each, DFS from its dependencies; a back-edge to a node already on
	// the current path is the "latest edge closing the cycle" and is
	// dropped.
	byID := make(map[string]*RawTask, len(normalized))
	order := make([]string, len(normalized))
	for i := range normalized {
		byID[normalized[i].ID] = &normalized[i]
		order[i] = normalized[i].ID
	}
	sort.Strings(order)

	onPath := make(map[string]bool)
	visited := make(map[string]bool)
	var breakCycles func(id string)
	breakCycles = func(id string) {
		if visited[id] {
			return
		}
		onPath[id] = true
		t := byID[id]
		var kept []string
		for _, dep := range t.Dependencies {
			if onPath[dep] {
				repaired = true
				warnings = append(warnings, "dropped cyclic dependency: "+id+" -> "+dep)
				continue
			}
			kept = append(kept, dep)
			breakCycles(dep)
		}
		t.Dependencies = kept
		onPath[id] = false
		visited[id] = true
	}
	for _, id := range order {
		breakCycles(id)
	}

	// Depth: 0 if no deps, else 1 + max(depth of deps). Dependencies are
	// now guaranteed acyclic, so a single memoized pass terminates.
	depth := make(map[string]int, len(normalized))
	var computeDepth func(id string) int
	computeDepth = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		t := byID[id]
		if len(t.Dependencies) == 0 {
			depth[id] = 0
			return 0
		}
		max := -1
		for _, dep := range t.Dependencies {
			if d := computeDepth(dep); d > max {
				max = d
			}
		}
		depth[id] = max + 1
		return depth[id]
	}

	nodes := make([]querystate.TaskNode, 0, len(normalized))
	for _, id := range order {
		t := byID[id]
		nodes = append(nodes, querystate.TaskNode{
			ID:           t.ID,
			Question:     t.Question,
			Objectives:   t.Objectives,
			ExitCriteria: t.ExitCriteria,
			ToolAffinity: t.ToolAffinity,
			Dependencies: append([]string(nil), t.Dependencies...),
			Depth:        computeDepth(id),
		})
	}

	return BuildResult{
		Graph:    querystate.TaskGraph{Nodes: nodes},
		Repaired: repaired,
		Warnings: warnings,
	}, nil
}
