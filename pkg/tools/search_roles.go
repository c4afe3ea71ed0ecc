package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"guildbot/pkg/platform"
	"guildbot/pkg/utils"
)

// SearchRolesTool finds guild roles by name substring.
type SearchRolesTool struct {
	client  *platform.Client
	guildID string
}

// NewSearchRolesTool creates a new search roles tool instance.
func NewSearchRolesTool(client *platform.Client, guildID string) *SearchRolesTool {
	return &SearchRolesTool{client: client, guildID: guildID}
}

// Definition returns the tool's definition in Claude API format.
func (s *SearchRolesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSearchRoles,
		Description: "Search guild roles by name and inspect their properties",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "Case-insensitive substring to match against role names; omit to list all roles",
				},
				"limit": {
					Type:        "number",
					Description: "Maximum number of roles to return (default 20)",
				},
			},
		},
	}
}

// Name returns the tool identifier.
func (s *SearchRolesTool) Name() string {
	return ToolSearchRoles
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (s *SearchRolesTool) PromptDocumentation() string {
	return `- **search_roles** - Search guild roles by name
  - Parameters: query (optional substring), limit (optional, default 20)
  - Returns matching roles with id, name, color, position, and mentionable flag
  - Use to resolve a role name mentioned in the request to its id`
}

// Exec executes the role search.
func (s *SearchRolesTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	query := strings.ToLower(utils.GetMapFieldOr(args, "query", ""))
	limit := int(utils.GetMapFieldOr(args, "limit", float64(20)))
	if limit <= 0 {
		limit = 20
	}

	roles, err := s.client.GetGuildRoles(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("role search failed: %w", err)
	}

	// Highest roles first, matching how the guild displays them.
	sort.Slice(roles, func(i, j int) bool { return roles[i].Position > roles[j].Position })

	matches := make([]map[string]any, 0, limit)
	for i := range roles {
		if query != "" && !strings.Contains(strings.ToLower(roles[i].Name), query) {
			continue
		}
		matches = append(matches, map[string]any{
			"id":          roles[i].ID,
			"name":        roles[i].Name,
			"color":       fmt.Sprintf("#%06x", roles[i].Color),
			"position":    roles[i].Position,
			"mentionable": roles[i].Mentionable,
		})
		if len(matches) >= limit {
			break
		}
	}

	return map[string]any{
		"success": true,
		"count":   len(matches),
		"roles":   matches,
	}, nil
}
