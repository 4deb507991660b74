package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/autoresearch/orchestrator-core/llm"
	"github.com/autoresearch/orchestrator-core/querystate"
)

// proposalSchema is the fixed JSON schema the planner's prompt asks the
// model to answer in, mirrored from the pattern of embedding a
// literal JSON Schema document in the system prompt rather than relying
// on free-form parsing.
const proposalSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "id": {"type": "string"},
      "question": {"type": "string"},
      "objectives": {"type": "array", "items": {"type": "string"}},
      "exit_criteria": {"type": "array", "items": {"type": "string"}},
      "tool_affinity": {"type": "object", "additionalProperties": {"type": "number"}},
      "dependencies": {"type": "array", "items": {"type": "string"}}
    },
    "required": ["id", "question", "exit_criteria"],
    "additionalProperties": false
  }
}`

type proposedTask struct {
	ID           string             `json:"id"`
	Question     string             `json:"question"`
	Objectives   []string           `json:"objectives"`
	ExitCriteria []string           `json:"exit_criteria"`
	ToolAffinity map[string]float64 `json:"tool_affinity"`
	Dependencies []string           `json:"dependencies"`
}

// Propose asks llmClient to decompose query (given a retrieval bundle for
// grounding) into the task-graph schema above, then returns the raw
// proposal for BuildTaskGraph to validate and repair. Per §4.4, the
// prompt is fixed-schema; BuildTaskGraph — not this function — enforces
// the acyclic/affinity/exit_criteria invariants.
func Propose(ctx context.Context, llmClient llm.Adapter, query string, bundle []querystate.RetrievalDocument, model string) ([]RawTask, error) {
	prompt := buildPrompt(query, bundle)

	result, err := llmClient.Generate(ctx, prompt, llm.GenerateParams{
		Model:        model,
		Temperature:  0,
		SystemPrompt: "You are a research task planner. Respond with only a JSON array matching the given schema, no prose, no markdown fences.",
	})
	if err != nil {
		return nil, err
	}

	proposed, err := parseProposal(result.Text)
	if err != nil {
		return nil, err
	}

	tasks := make([]RawTask, len(proposed))
	for i, p := range proposed {
		tasks[i] = RawTask{
			ID:           p.ID,
			Question:     p.Question,
			Objectives:   p.Objectives,
			ExitCriteria: p.ExitCriteria,
			ToolAffinity: p.ToolAffinity,
			Dependencies: p.Dependencies,
		}
	}
	return tasks, nil
}

func buildPrompt(query string, bundle []querystate.RetrievalDocument) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nEvidence:\n")
	for _, doc := range bundle {
		fmt.Fprintf(&b, "- %s\n", doc.Snippet)
	}
	b.WriteString("\nSchema:\n")
	b.WriteString(proposalSchema)
	return b.String()
}

// parseProposal strips the markdown code fences models commonly wrap
// JSON in before decoding — a defensive text-extraction fallback for
// providers that ignore "no markdown" instructions.
func parseProposal(raw string) ([]proposedTask, error) {
	content := strings.TrimSpace(raw)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var tasks []proposedTask
	if err := json.Unmarshal([]byte(content), &tasks); err != nil {
		return nil, fmt.Errorf("planner: failed to parse task proposal as JSON: %w", err)
	}
	return tasks, nil
}
