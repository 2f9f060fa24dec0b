// Package memtools provides the MCP tool handlers for the memory engine.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Hook write-path tools (mem_record, mem_prompt_*, mem_session_*) are
// fire-and-forget: failures are logged and acknowledged, never surfaced,
// so a broken store can never stall the calling agent.
package memtools

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ActivityFunc is invoked by write-path tools on every call so the
// power scheduler sees the device as active.
type ActivityFunc func()

func (f ActivityFunc) touch() {
	if f != nil {
		f()
	}
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringList extracts a string-array argument from a tool request.
func stringList(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
