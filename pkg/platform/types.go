// Package platform provides the chat-platform client: a REST API wrapper and a
// websocket gateway session with typed event dispatch.
package platform

import (
	"encoding/json"
	"time"
)

// ChannelType enumerates the channel kinds the bot cares about.
type ChannelType int

// Channel type constants (wire values).
const (
	ChannelTypeText     ChannelType = 0
	ChannelTypeDM       ChannelType = 1
	ChannelTypeVoice    ChannelType = 2
	ChannelTypeCategory ChannelType = 4
	ChannelTypeNews     ChannelType = 5
	ChannelTypeThread   ChannelType = 11
)

// User is a platform account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// Mention renders the user as an in-message mention.
func (u *User) Mention() string {
	return "<@" + u.ID + ">"
}

// Role is a guild role.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Position    int    `json:"position"`
	Mentionable bool   `json:"mentionable"`
}

// Channel is a guild channel, category, or thread.
type Channel struct {
	ID       string      `json:"id"`
	GuildID  string      `json:"guild_id,omitempty"`
	Name     string      `json:"name"`
	Topic    string      `json:"topic,omitempty"`
	ParentID string      `json:"parent_id,omitempty"` // category for channels, channel for threads
	Type     ChannelType `json:"type"`
	Position int         `json:"position,omitempty"`
}

// IsThread reports whether the channel is a thread.
func (c *Channel) IsThread() bool {
	return c.Type == ChannelTypeThread
}

// Member is a user's guild membership.
type Member struct {
	User     *User     `json:"user"`
	Nick     string    `json:"nick,omitempty"`
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joined_at"`
}

// HasRole reports whether the member holds the given role id.
func (m *Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Guild is the top-level community container.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerID     string `json:"owner_id"`
	MemberCount int    `json:"approximate_member_count,omitempty"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int    `json:"size"`
}

// Message is a chat message.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	GuildID     string       `json:"guild_id,omitempty"`
	Content     string       `json:"content"`
	Author      *User        `json:"author"`
	Member      *Member      `json:"member,omitempty"`
	Mentions    []*User      `json:"mentions,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Components  []ActionRow  `json:"components,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// MentionsUser reports whether the message mentions the given user id.
func (m *Message) MentionsUser(userID string) bool {
	for _, u := range m.Mentions {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// InteractionType enumerates interaction kinds (wire values).
type InteractionType int

const (
	// InteractionTypeComponent is a button or select interaction.
	InteractionTypeComponent InteractionType = 3
)

// InteractionData carries the component payload of an interaction.
type InteractionData struct {
	CustomID      string `json:"custom_id"`
	ComponentType int    `json:"component_type"`
}

// Interaction is a component interaction (button press).
type Interaction struct {
	ID        string           `json:"id"`
	Token     string           `json:"token"`
	Type      InteractionType  `json:"type"`
	GuildID   string           `json:"guild_id,omitempty"`
	ChannelID string           `json:"channel_id,omitempty"`
	Member    *Member          `json:"member,omitempty"`
	User      *User            `json:"user,omitempty"`
	Message   *Message         `json:"message,omitempty"`
	Data      *InteractionData `json:"data,omitempty"`
}

// AuthorID returns the id of the interacting user regardless of guild/DM origin.
func (i *Interaction) AuthorID() string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// Gateway event payloads. Each wraps the REST type it announces.

// MessageCreate is emitted for every new message the bot can see.
type MessageCreate struct {
	*Message
}

// InteractionCreate is emitted when a user interacts with a component.
type InteractionCreate struct {
	*Interaction
}

// GuildMemberAdd is emitted when a user joins the guild.
type GuildMemberAdd struct {
	*Member
	GuildID string `json:"guild_id"`
}

// event is a raw gateway frame.
type event struct {
	Op int             `json:"op"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opHello          = 10
	opHeartbeatAck   = 11
	opReconnect      = 7
	opInvalidSession = 9
)

// Gateway intents requested at identify.
const (
	intentGuilds         = 1 << 0
	intentGuildMembers   = 1 << 1
	intentGuildMessages  = 1 << 9
	intentMessageContent = 1 << 15
)
