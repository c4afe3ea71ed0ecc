package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildbot/pkg/llm"
	"guildbot/pkg/platform"
)

func llmRequest(prompt string) llm.CompletionRequest {
	return llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage(prompt)})
}

func TestMockGuildServerServesFixture(t *testing.T) {
	srv := MockGuildServer(DefaultGuildFixture())
	defer srv.Close()

	client := platform.NewClient(srv.URL, "test-token")
	ctx := context.Background()

	me, err := client.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bot-1", me.ID)
	assert.True(t, me.Bot)

	roles, err := client.GetGuildRoles(ctx, "guild-1")
	require.NoError(t, err)
	assert.Len(t, roles, 3)

	members, err := client.SearchGuildMembers(ctx, "guild-1", "al", 10)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].User.Username)

	channel, err := client.GetChannel(ctx, "chan-general")
	require.NoError(t, err)
	assert.Equal(t, "cat-1", channel.ParentID)
}

func TestScriptedLLMRepliesInOrderThenFails(t *testing.T) {
	client := NewScriptedLLM(TextResponse("first"), TextResponse("second"))
	ctx := context.Background()

	resp, err := client.Complete(ctx, llmRequest("a"))
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	resp, err = client.Complete(ctx, llmRequest("b"))
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)

	_, err = client.Complete(ctx, llmRequest("c"))
	require.Error(t, err)

	// All three requests are recorded, including the exhausted one.
	assert.Len(t, client.Requests(), 3)
}

func TestEventBusRemoverStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	var seen []string
	remove := bus.AddHandler(func(_ *platform.Session, mc *platform.MessageCreate) {
		seen = append(seen, mc.Content)
	})
	assert.Equal(t, 1, bus.HandlerCount())

	bus.EmitMessage(NewGuildMessage("g", "c").WithContent("hello").Build())
	require.Equal(t, []string{"hello"}, seen)

	remove()
	remove() // idempotent
	assert.Equal(t, 0, bus.HandlerCount())

	bus.EmitMessage(NewGuildMessage("g", "c").WithContent("ignored").Build())
	assert.Equal(t, []string{"hello"}, seen)
}

func TestPlatformRecorderAssignsSequentialIDs(t *testing.T) {
	rec := NewPlatformRecorder()
	ctx := context.Background()

	first, err := rec.SendMessage(ctx, "chan-1", &platform.MessageSend{Content: "one"})
	require.NoError(t, err)
	second, err := rec.SendMessage(ctx, "chan-2", &platform.MessageSend{Content: "two"})
	require.NoError(t, err)

	assert.Equal(t, "sent-1", first.ID)
	assert.Equal(t, "sent-2", second.ID)
	assert.Len(t, rec.SentTo("chan-1"), 1)
	assert.Len(t, rec.SentTo("chan-2"), 1)
}
