package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// HandoffPrompt handles the session-handoff MCP prompt.
// It instructs the AI to bank durable findings before the session ends
// so the next session (on any machine) starts with them.
type HandoffPrompt struct{}

// NewHandoffPrompt creates a HandoffPrompt.
func NewHandoffPrompt() *HandoffPrompt {
	return &HandoffPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *HandoffPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("session-handoff",
		mcp.WithPromptDescription(
			"Wrap up the current session: store what was learned, note what is "+
				"unfinished, and close the session so the next one picks up cleanly.",
		),
	)
}

// Handle processes the session-handoff prompt request.
func (p *HandoffPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Session Handoff",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"We're wrapping up. Before ending the session:\n\n" +
						"1. Go back over what we did and pick out the durable findings: " +
						"gotchas hit, decisions made with their rationale, anything the next " +
						"session would otherwise rediscover the hard way\n" +
						"2. Store each one with `mem_remember`, choosing the right type " +
						"(gotcha, decision, or trade_off) and concise, searchable wording\n" +
						"3. If work is unfinished, store one observation describing exactly " +
						"where things stand and what comes next\n" +
						"4. Call `mem_session_end` to close out the session\n" +
						"5. Show me what you stored",
				),
			},
		},
	}, nil
}
