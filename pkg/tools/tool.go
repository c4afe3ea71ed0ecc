// Package tools provides read-only guild inspection tools and their registry.
package tools

import "context"

// Tool name constants.
const (
	ToolSearchRoles    = "search_roles"
	ToolSearchChannels = "search_channels"
	ToolSearchMembers  = "search_members"
	ToolMemberCount    = "member_count"
	ToolChannelInfo    = "channel_info"
)

// contextKey is a private type for context values set by tool callers.
type contextKey string

// RequestIDContextKey carries the originating request id into tool execution.
const RequestIDContextKey contextKey = "request_id"

// Property describes a single input parameter in a tool's JSON schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// InputSchema is the JSON schema for a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the model-facing description of a tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Tool is a capability the generation loop can invoke. Implementations must
// be safe for concurrent use and must not mutate guild state.
type Tool interface {
	// Name returns the tool identifier used in model tool calls.
	Name() string
	// Definition returns the tool's definition in Claude API format.
	Definition() ToolDefinition
	// Exec runs the tool. Results are maps serialized into the tool result;
	// a map with success=false marks the result as an error for the model.
	Exec(ctx context.Context, args map[string]any) (any, error)
	// PromptDocumentation returns markdown documentation for LLM prompts.
	PromptDocumentation() string
}
