package testkit

import (
	"fmt"
	"sync/atomic"
	"time"

	"guildbot/pkg/platform"
)

var eventSeq atomic.Int64

// MessageBuilder assembles synthetic gateway messages for handler tests.
type MessageBuilder struct {
	msg platform.Message
}

// NewGuildMessage starts a message in the given guild channel with a unique
// id and a current timestamp.
func NewGuildMessage(guildID, channelID string) *MessageBuilder {
	return &MessageBuilder{msg: platform.Message{
		ID:        fmt.Sprintf("msg-%d", eventSeq.Add(1)),
		GuildID:   guildID,
		ChannelID: channelID,
		Timestamp: time.Now().UTC(),
	}}
}

// WithID overrides the generated message id.
func (b *MessageBuilder) WithID(id string) *MessageBuilder {
	b.msg.ID = id
	return b
}

// From sets the author to a human user.
func (b *MessageBuilder) From(userID, username string) *MessageBuilder {
	b.msg.Author = &platform.User{ID: userID, Username: username}
	return b
}

// FromBot sets the author to a bot account.
func (b *MessageBuilder) FromBot(userID, username string) *MessageBuilder {
	b.msg.Author = &platform.User{ID: userID, Username: username, Bot: true}
	return b
}

// At overrides the message timestamp.
func (b *MessageBuilder) At(t time.Time) *MessageBuilder {
	b.msg.Timestamp = t
	return b
}

// WithContent sets the message body.
func (b *MessageBuilder) WithContent(content string) *MessageBuilder {
	b.msg.Content = content
	return b
}

// Mentioning appends a user mention.
func (b *MessageBuilder) Mentioning(userID string) *MessageBuilder {
	b.msg.Mentions = append(b.msg.Mentions, &platform.User{ID: userID})
	return b
}

// WithRoles attaches guild membership carrying the given role ids.
func (b *MessageBuilder) WithRoles(roleIDs ...string) *MessageBuilder {
	b.msg.Member = &platform.Member{Roles: roleIDs}
	return b
}

// Build returns the assembled message. Membership, when present, is linked
// to the author.
func (b *MessageBuilder) Build() *platform.Message {
	msg := b.msg
	if msg.Member != nil && msg.Member.User == nil {
		msg.Member.User = msg.Author
	}
	return &msg
}

// ButtonPress builds a component interaction for a button on the given
// message, pressed by the given user.
func ButtonPress(customID string, message *platform.Message, userID string) *platform.Interaction {
	return &platform.Interaction{
		ID:        fmt.Sprintf("int-%d", eventSeq.Add(1)),
		Token:     "interaction-token",
		Type:      platform.InteractionTypeComponent,
		ChannelID: message.ChannelID,
		Message:   message,
		User:      &platform.User{ID: userID},
		Data:      &platform.InteractionData{CustomID: customID, ComponentType: 2},
	}
}
