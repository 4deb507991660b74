package planner

import (
	"testing"

	"github.com/autoresearch/orchestrator-core/querystate"
)

func graphFixture(t *testing.T) querystate.TaskGraph {
	t.Helper()
	result, err := BuildTaskGraph([]RawTask{
		{ID: "a", ExitCriteria: []string{"done"}, ToolAffinity: map[string]float64{"search": 0.5}},
		{ID: "b", ExitCriteria: []string{"done"}, ToolAffinity: map[string]float64{"search": 0.9}},
		{ID: "c", ExitCriteria: []string{"done"}, Dependencies: []string{"a", "b"}},
	})
	if err != nil {
		t.Fatalf("unexpected error building fixture: %v", err)
	}
	return result.Graph
}

func TestReadyTasksOrdersByDepthThenAffinityThenID(t *testing.T) {
	c := NewCoordinator(graphFixture(t))
	ready := c.ReadyTasks()
	if len(ready) != 2 {
		t.Fatalf("expected 2 ready tasks (a, b) before c's dependencies complete, got %d", len(ready))
	}
	if ready[0].ID != "b" || ready[1].ID != "a" {
		t.Fatalf("expected b (higher affinity) before a, got %s then %s", ready[0].ID, ready[1].ID)
	}
}

func TestCompleteTaskUnlocksDependents(t *testing.T) {
	c := NewCoordinator(graphFixture(t))

	unlocked := c.CompleteTask("a", querystate.ReActStep{Thought: "did a"})
	if len(unlocked) != 0 {
		t.Fatalf("expected no unlocks until both a and b complete, got %v", unlocked)
	}

	unlocked = c.CompleteTask("b", querystate.ReActStep{Thought: "did b"})
	if len(unlocked) != 1 || unlocked[0] != "c" {
		t.Fatalf("expected completing b to unlock c, got %v", unlocked)
	}

	ready := c.ReadyTasks()
	if len(ready) != 1 || ready[0].ID != "c" {
		t.Fatalf("expected c to be the only ready task, got %v", ready)
	}
}

func TestReActLogIsAppendOnlyAndRecordsUnlockEvents(t *testing.T) {
	c := NewCoordinator(graphFixture(t))
	c.CompleteTask("a", querystate.ReActStep{Thought: "t1"})
	c.CompleteTask("b", querystate.ReActStep{Thought: "t2"})

	log := c.ReActLog()
	if len(log) != 2 {
		t.Fatalf("expected 2 recorded steps, got %d", len(log))
	}
	unlockEvents, ok := log[1].Metadata["unlock_events"].([]string)
	if !ok || len(unlockEvents) != 1 || unlockEvents[0] != "c" {
		t.Fatalf("expected second step's metadata to record unlocking c, got %v", log[1].Metadata)
	}
}

func TestIsCompleteReflectsAllTasksDone(t *testing.T) {
	c := NewCoordinator(graphFixture(t))
	if c.IsComplete() {
		t.Fatalf("did not expect the graph to be complete yet")
	}
	c.CompleteTask("a", querystate.ReActStep{})
	c.CompleteTask("b", querystate.ReActStep{})
	c.CompleteTask("c", querystate.ReActStep{})
	if !c.IsComplete() {
		t.Fatalf("expected the graph to be complete once all tasks finish")
	}
}
