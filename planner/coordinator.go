package planner

import (
	"sort"
	"sync"
	"time"

	"github.com/autoresearch/orchestrator-core/querystate"
)

// Coordinator schedules a TaskGraph's nodes, tracking completion and
// exposing ReadyTasks() in the deterministic order §4.4 mandates:
// ascending depth, descending max tool affinity, ascending id as the
// final tie-break. Grounded on AgentCatalog
// (mu-RWMutex-guarded index, rebuilt incrementally as state changes)
// generalized from a capability index to a task-completion index.
type Coordinator struct {
	mu        sync.RWMutex
	nodes     map[string]querystate.TaskNode
	order     []string // insertion order, for stable iteration
	completed map[string]bool
	reactLog  []querystate.ReActStep
}

// NewCoordinator builds a Coordinator over graph's nodes.
func NewCoordinator(graph querystate.TaskGraph) *Coordinator {
	c := &Coordinator{
		nodes:     make(map[string]querystate.TaskNode, len(graph.Nodes)),
		completed: make(map[string]bool, len(graph.Nodes)),
	}
	for _, n := range graph.Nodes {
		c.nodes[n.ID] = n
		c.order = append(c.order, n.ID)
	}
	return c
}

func maxAffinity(n querystate.TaskNode) float64 {
	max := 0.0
	for _, v := range n.ToolAffinity {
		if v > max {
			max = v
		}
	}
	return max
}

// ReadyTasks returns every TaskNode whose dependencies are all complete
// and which is not itself complete, sorted by (ascending depth,
// descending max tool affinity, ascending id).
func (c *Coordinator) ReadyTasks() []querystate.TaskNode {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ready []querystate.TaskNode
	for _, id := range c.order {
		if c.completed[id] {
			continue
		}
		n := c.nodes[id]
		if c.dependenciesCompleteLocked(n) {
			ready = append(ready, n)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Depth != ready[j].Depth {
			return ready[i].Depth < ready[j].Depth
		}
		ai, aj := maxAffinity(ready[i]), maxAffinity(ready[j])
		if ai != aj {
			return ai > aj
		}
		return ready[i].ID < ready[j].ID
	})
	return ready
}

func (c *Coordinator) dependenciesCompleteLocked(n querystate.TaskNode) bool {
	for _, dep := range n.Dependencies {
		if !c.completed[dep] {
			return false
		}
	}
	return true
}

// CompleteTask marks taskID done, records a ReActStep describing the
// step and which previously-blocked tasks it unlocked, and returns those
// newly-unlocked task ids for the caller's own scheduling decisions.
func (c *Coordinator) CompleteTask(taskID string, step querystate.ReActStep) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	beforeReady := c.readyIDsLocked()
	c.completed[taskID] = true
	afterReady := c.readyIDsLocked()

	unlocked := diff(afterReady, beforeReady)

	if step.Metadata == nil {
		step.Metadata = make(map[string]interface{})
	}
	step.Metadata["unlock_events"] = unlocked
	step.TaskID = taskID
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	c.reactLog = append(c.reactLog, step)

	return unlocked
}

func (c *Coordinator) readyIDsLocked() map[string]bool {
	out := make(map[string]bool)
	for _, id := range c.order {
		if c.completed[id] {
			continue
		}
		if c.dependenciesCompleteLocked(c.nodes[id]) {
			out[id] = true
		}
	}
	return out
}

func diff(after, before map[string]bool) []string {
	var out []string
	for id := range after {
		if !before[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ReActLog returns the append-only history of executed steps, in
// execution order.
func (c *Coordinator) ReActLog() []querystate.ReActStep {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]querystate.ReActStep(nil), c.reactLog...)
}

// IsComplete reports whether every node in the graph has been completed.
func (c *Coordinator) IsComplete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.order {
		if !c.completed[id] {
			return false
		}
	}
	return true
}
