package tools

import (
	"context"
	"fmt"
	"strings"

	"guildbot/pkg/platform"
	"guildbot/pkg/utils"
)

// ChannelInfoTool inspects a single channel by id or exact name.
type ChannelInfoTool struct {
	client  *platform.Client
	guildID string
}

// NewChannelInfoTool creates a new channel info tool instance.
func NewChannelInfoTool(client *platform.Client, guildID string) *ChannelInfoTool {
	return &ChannelInfoTool{client: client, guildID: guildID}
}

// Definition returns the tool's definition in Claude API format.
func (c *ChannelInfoTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolChannelInfo,
		Description: "Inspect a single channel by id or exact name",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"channel_id": {
					Type:        "string",
					Description: "Channel id to inspect; takes precedence over name",
				},
				"name": {
					Type:        "string",
					Description: "Exact channel name to inspect (case-insensitive)",
				},
			},
		},
	}
}

// Name returns the tool identifier.
func (c *ChannelInfoTool) Name() string {
	return ToolChannelInfo
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (c *ChannelInfoTool) PromptDocumentation() string {
	return `- **channel_info** - Inspect a single channel
  - Parameters: channel_id or name (one required)
  - Returns the channel's id, name, type, topic, parent category, and position
  - Use when you already know which channel the request refers to`
}

// Exec executes the channel lookup.
func (c *ChannelInfoTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	channelID := utils.GetMapFieldOr(args, "channel_id", "")
	name := utils.GetMapFieldOr(args, "name", "")

	if channelID == "" && name == "" {
		return nil, fmt.Errorf("either channel_id or name is required")
	}

	var channel *platform.Channel
	var siblings []platform.Channel

	if channelID != "" {
		got, err := c.client.GetChannel(ctx, channelID)
		if err != nil {
			return nil, fmt.Errorf("channel lookup failed: %w", err)
		}
		channel = got
	} else {
		channels, err := c.client.GetGuildChannels(ctx, c.guildID)
		if err != nil {
			return nil, fmt.Errorf("channel lookup failed: %w", err)
		}
		siblings = channels
		for i := range channels {
			if strings.EqualFold(channels[i].Name, name) {
				channel = &channels[i]
				break
			}
		}
		if channel == nil {
			return map[string]any{
				"success": false,
				"error":   fmt.Sprintf("no channel named %q", name),
			}, nil
		}
	}

	result := channelResult(channel)
	if parent := c.parentName(ctx, channel, siblings); parent != "" {
		result["parent_name"] = parent
	}

	return map[string]any{
		"success": true,
		"channel": result,
	}, nil
}

// parentName resolves the parent category's name, reusing the guild channel
// list when one was already fetched.
func (c *ChannelInfoTool) parentName(ctx context.Context, channel *platform.Channel, siblings []platform.Channel) string {
	if channel.ParentID == "" {
		return ""
	}
	for i := range siblings {
		if siblings[i].ID == channel.ParentID {
			return siblings[i].Name
		}
	}
	parent, err := c.client.GetChannel(ctx, channel.ParentID)
	if err != nil {
		return ""
	}
	return parent.Name
}
