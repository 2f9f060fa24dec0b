// Package prompts implements MCP prompt handlers for the memory engine.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPrompt handles the memory-review MCP prompt.
// It guides the AI through auditing stored observations and resolving
// the ones that no longer hold.
type ReviewPrompt struct{}

// NewReviewPrompt creates a ReviewPrompt.
func NewReviewPrompt() *ReviewPrompt {
	return &ReviewPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("memory-review",
		mcp.WithPromptDescription(
			"Review stored memories for this project and clean up the stale ones. "+
				"Walks through recent observations, checks them against the current "+
				"codebase, and resolves anything that no longer applies.",
		),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("Narrow the review to one topic or area (optional)"),
		),
	)
}

// Handle processes the memory-review prompt request.
func (p *ReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	scope := "everything stored for this project"
	if args := req.Params.Arguments; args != nil {
		if topic, ok := args["topic"]; ok && topic != "" {
			scope = fmt.Sprintf("memories about %q", topic)
		}
	}

	text := fmt.Sprintf(
		"Let's audit my stored memories. Scope: %s.\n\n"+
			"1. Use `mem_search` to pull up the relevant observations (search for the "+
			"scope above; run a few queries if one does not cover it)\n"+
			"2. For each gotcha or decision that references specific code, check whether "+
			"the code still looks the way the memory claims\n"+
			"3. For anything outdated, superseded, or fixed, call `mem_resolve` with the "+
			"right action (resolved for fixed problems, superseded when a newer decision "+
			"replaced it)\n"+
			"4. Give me a short report: what you kept, what you resolved, and why",
		scope,
	)

	return &mcp.GetPromptResult{
		Description: "Memory Review",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}, nil
}
