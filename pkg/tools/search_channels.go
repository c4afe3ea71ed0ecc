package tools

import (
	"context"
	"fmt"
	"strings"

	"guildbot/pkg/platform"
	"guildbot/pkg/utils"
)

// SearchChannelsTool finds guild channels and categories by name substring.
type SearchChannelsTool struct {
	client  *platform.Client
	guildID string
}

// NewSearchChannelsTool creates a new search channels tool instance.
func NewSearchChannelsTool(client *platform.Client, guildID string) *SearchChannelsTool {
	return &SearchChannelsTool{client: client, guildID: guildID}
}

// Definition returns the tool's definition in Claude API format.
func (s *SearchChannelsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSearchChannels,
		Description: "Search guild channels and categories by name",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "Case-insensitive substring to match against channel names; omit to list all channels",
				},
				"type": {
					Type:        "string",
					Description: "Restrict results to one channel kind",
					Enum:        []string{"text", "voice", "category", "news", "any"},
				},
				"limit": {
					Type:        "number",
					Description: "Maximum number of channels to return (default 20)",
				},
			},
		},
	}
}

// Name returns the tool identifier.
func (s *SearchChannelsTool) Name() string {
	return ToolSearchChannels
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (s *SearchChannelsTool) PromptDocumentation() string {
	return `- **search_channels** - Search guild channels and categories by name
  - Parameters: query (optional substring), type (optional: text, voice, category, news), limit (optional, default 20)
  - Returns matching channels with id, name, type, topic, parent_id, and position
  - Use to resolve a channel name mentioned in the request to its id`
}

// Exec executes the channel search.
func (s *SearchChannelsTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	query := strings.ToLower(utils.GetMapFieldOr(args, "query", ""))
	kind := utils.GetMapFieldOr(args, "type", "any")
	limit := int(utils.GetMapFieldOr(args, "limit", float64(20)))
	if limit <= 0 {
		limit = 20
	}

	wantType, err := channelTypeFromName(kind)
	if err != nil {
		return nil, err
	}

	channels, err := s.client.GetGuildChannels(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("channel search failed: %w", err)
	}

	matches := make([]map[string]any, 0, limit)
	for i := range channels {
		if query != "" && !strings.Contains(strings.ToLower(channels[i].Name), query) {
			continue
		}
		if wantType >= 0 && channels[i].Type != wantType {
			continue
		}
		matches = append(matches, channelResult(&channels[i]))
		if len(matches) >= limit {
			break
		}
	}

	return map[string]any{
		"success":  true,
		"count":    len(matches),
		"channels": matches,
	}, nil
}

// channelTypeFromName maps the schema enum onto wire channel types.
// Returns -1 for "any".
func channelTypeFromName(name string) (platform.ChannelType, error) {
	switch name {
	case "", "any":
		return -1, nil
	case "text":
		return platform.ChannelTypeText, nil
	case "voice":
		return platform.ChannelTypeVoice, nil
	case "category":
		return platform.ChannelTypeCategory, nil
	case "news":
		return platform.ChannelTypeNews, nil
	default:
		return -1, fmt.Errorf("type must be text, voice, category, news, or any")
	}
}

// channelTypeName is the inverse mapping for result payloads.
func channelTypeName(t platform.ChannelType) string {
	switch t {
	case platform.ChannelTypeText:
		return "text"
	case platform.ChannelTypeDM:
		return "dm"
	case platform.ChannelTypeVoice:
		return "voice"
	case platform.ChannelTypeCategory:
		return "category"
	case platform.ChannelTypeNews:
		return "news"
	case platform.ChannelTypeThread:
		return "thread"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// channelResult shapes one channel for a tool result payload.
func channelResult(c *platform.Channel) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"name":      c.Name,
		"type":      channelTypeName(c.Type),
		"topic":     c.Topic,
		"parent_id": c.ParentID,
		"position":  c.Position,
	}
}
