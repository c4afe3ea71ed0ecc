package tools

import (
	"context"
	"fmt"
	"time"

	"guildbot/pkg/platform"
	"guildbot/pkg/utils"
)

// SearchMembersTool finds guild members by username or nickname prefix.
type SearchMembersTool struct {
	client  *platform.Client
	guildID string
}

// NewSearchMembersTool creates a new search members tool instance.
func NewSearchMembersTool(client *platform.Client, guildID string) *SearchMembersTool {
	return &SearchMembersTool{client: client, guildID: guildID}
}

// Definition returns the tool's definition in Claude API format.
func (s *SearchMembersTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSearchMembers,
		Description: "Search guild members by username or nickname prefix",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "Username or nickname prefix to search for",
				},
				"limit": {
					Type:        "number",
					Description: "Maximum number of members to return (default 25, max 100)",
				},
			},
			Required: []string{"query"},
		},
	}
}

// Name returns the tool identifier.
func (s *SearchMembersTool) Name() string {
	return ToolSearchMembers
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (s *SearchMembersTool) PromptDocumentation() string {
	return `- **search_members** - Search guild members by username or nickname prefix
  - Parameters: query (required prefix), limit (optional, default 25)
  - Returns matching members with id, username, nick, joined_at, and role ids
  - Use to resolve a person mentioned in the request to their user id`
}

// Exec executes the member search.
func (s *SearchMembersTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	query, err := utils.GetMapField[string](args, "query")
	if err != nil {
		return nil, fmt.Errorf("query parameter is required")
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	limit := int(utils.GetMapFieldOr(args, "limit", float64(25)))
	if limit <= 0 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}

	members, err := s.client.SearchGuildMembers(ctx, s.guildID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("member search failed: %w", err)
	}

	matches := make([]map[string]any, 0, len(members))
	for i := range members {
		matches = append(matches, memberResult(&members[i]))
	}

	return map[string]any{
		"success": true,
		"count":   len(matches),
		"members": matches,
	}, nil
}

// memberResult shapes one member for a tool result payload.
func memberResult(m *platform.Member) map[string]any {
	result := map[string]any{
		"nick":  m.Nick,
		"roles": m.Roles,
	}
	if m.User != nil {
		result["id"] = m.User.ID
		result["username"] = m.User.Username
	}
	if !m.JoinedAt.IsZero() {
		result["joined_at"] = m.JoinedAt.Format(time.RFC3339)
	}
	return result
}
