package tools

import (
	"context"
	"fmt"
	"time"

	"guildbot/pkg/platform"
	"guildbot/pkg/utils"
)

// memberCountMaxPages bounds the pagination walk when counting by join date.
// 100 pages of 1000 covers guilds well past this bot's scale.
const memberCountMaxPages = 100

// MemberCountTool counts guild members, optionally filtered by join date.
type MemberCountTool struct {
	client  *platform.Client
	guildID string
}

// NewMemberCountTool creates a new member count tool instance.
func NewMemberCountTool(client *platform.Client, guildID string) *MemberCountTool {
	return &MemberCountTool{client: client, guildID: guildID}
}

// Definition returns the tool's definition in Claude API format.
func (m *MemberCountTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolMemberCount,
		Description: "Count guild members, optionally filtered by join date",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"joined_after": {
					Type:        "string",
					Description: "Only count members who joined on or after this date (RFC 3339 or YYYY-MM-DD)",
				},
				"joined_before": {
					Type:        "string",
					Description: "Only count members who joined on or before this date (RFC 3339 or YYYY-MM-DD)",
				},
			},
		},
	}
}

// Name returns the tool identifier.
func (m *MemberCountTool) Name() string {
	return ToolMemberCount
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (m *MemberCountTool) PromptDocumentation() string {
	return `- **member_count** - Count guild members
  - Parameters: joined_after (optional date), joined_before (optional date)
  - Without dates returns the guild's approximate total; with dates walks the member list and counts exactly
  - Use for questions like "how many people joined this month"`
}

// Exec executes the member count.
func (m *MemberCountTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	afterRaw := utils.GetMapFieldOr(args, "joined_after", "")
	beforeRaw := utils.GetMapFieldOr(args, "joined_before", "")

	// No date bounds: the guild metadata carries an approximate total,
	// which is much cheaper than walking the member list.
	if afterRaw == "" && beforeRaw == "" {
		guild, err := m.client.GetGuild(ctx, m.guildID)
		if err != nil {
			return nil, fmt.Errorf("member count failed: %w", err)
		}
		return map[string]any{
			"success":     true,
			"count":       guild.MemberCount,
			"approximate": true,
		}, nil
	}

	after, err := parseDateBound(afterRaw)
	if err != nil {
		return nil, fmt.Errorf("joined_after: %w", err)
	}
	before, err := parseDateBound(beforeRaw)
	if err != nil {
		return nil, fmt.Errorf("joined_before: %w", err)
	}

	count := 0
	cursor := ""
	for page := 0; page < memberCountMaxPages; page++ {
		members, err := m.client.ListGuildMembers(ctx, m.guildID, cursor, 1000)
		if err != nil {
			return nil, fmt.Errorf("member count failed: %w", err)
		}
		if len(members) == 0 {
			break
		}
		for i := range members {
			if joinedWithin(members[i].JoinedAt, after, before) {
				count++
			}
		}
		last := members[len(members)-1]
		if last.User == nil {
			break
		}
		cursor = last.User.ID
		if len(members) < 1000 {
			break
		}
	}

	result := map[string]any{
		"success":     true,
		"count":       count,
		"approximate": false,
	}
	if afterRaw != "" {
		result["joined_after"] = afterRaw
	}
	if beforeRaw != "" {
		result["joined_before"] = beforeRaw
	}
	return result, nil
}

// parseDateBound accepts RFC 3339 timestamps or bare dates. Empty input
// returns the zero time, meaning unbounded.
func parseDateBound(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected RFC 3339 or YYYY-MM-DD", raw)
}

// joinedWithin reports whether joined falls inside the [after, before] bounds.
// Zero bounds are open.
func joinedWithin(joined, after, before time.Time) bool {
	if joined.IsZero() {
		return false
	}
	if !after.IsZero() && joined.Before(after) {
		return false
	}
	if !before.IsZero() && joined.After(before) {
		return false
	}
	return true
}
