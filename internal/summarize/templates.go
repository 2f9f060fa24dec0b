package summarize

import (
	"fmt"
	"strings"
)

// Per-class framing for the summarization prompt. The body layout is
// shared; the lead paragraph steers what the model looks for.
var classFraming = map[BatchClass]string{
	ClassFix: "The agent was fixing a problem. Extract what was broken, the root cause if found, " +
		"and anything a future session must know to avoid reintroducing it.",
	ClassFeature: "The agent was building new functionality. Extract design decisions, trade-offs, " +
		"and conventions established while building it.",
	ClassRefactor: "The agent was restructuring existing code. Extract what moved where, invariants " +
		"preserved, and any behavior deliberately changed.",
	ClassExplore: "The agent was investigating the codebase. Extract discoveries about how the system " +
		"works, especially anything surprising or undocumented.",
}

const responseFormat = `Respond with a JSON object:
{
  "observations": [
    {"observation": "...", "memory_type": "gotcha|bug_fix|decision|discovery|trade_off", "context": "...", "importance": 1-5}
  ],
  "session_summary": "one sentence"
}
Return an empty observations array if nothing is worth remembering.`

// BuildPrompt renders the summarization prompt for a request, truncating
// each section to its budget.
func BuildPrompt(req Request, class BatchClass, budget Budget) string {
	var b strings.Builder

	b.WriteString(classFraming[class])
	b.WriteString("\n\n")

	if req.UserPrompt != "" {
		fmt.Fprintf(&b, "## User Prompt\n%s\n\n", TruncateToTokens(req.UserPrompt, budget.UserPrompt))
	}

	fmt.Fprintf(&b, "## Session Activity (%.0f minutes)\n", req.DurationMinutes)
	writeList(&b, "Files created", req.FilesCreated)
	writeList(&b, "Files modified", req.FilesModified)
	writeList(&b, "Files read", req.FilesRead)
	writeList(&b, "Commands run", req.CommandsRun)
	if len(req.ActivityLines) > 0 {
		activity := strings.Join(req.ActivityLines, "\n")
		fmt.Fprintf(&b, "\n### Tool activity\n%s\n", TruncateToTokens(activity, budget.Activities))
	}
	b.WriteString("\n")

	if req.PriorContext != "" && budget.PriorContext > 0 {
		fmt.Fprintf(&b, "## Prior Context\n%s\n\n", TruncateToTokens(req.PriorContext, budget.PriorContext))
	}

	b.WriteString(responseFormat)
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}
