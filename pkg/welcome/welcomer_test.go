package welcome

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildbot/pkg/config"
	"guildbot/pkg/platform"
	"guildbot/pkg/testkit"
	"guildbot/pkg/utils"
)

func testConfig() config.WelcomeConfig {
	return config.WelcomeConfig{
		Enabled:          true,
		Channel:          "chan-welcome",
		ShowcaseChannels: []string{"chan-showcase"},
		EvergreenChannel: "chan-rules",
		EvergreenMessage: "📌 Be kind. Ship things.",
	}
}

func join(userID, username string) *platform.GuildMemberAdd {
	return &platform.GuildMemberAdd{
		Member:  &platform.Member{User: &platform.User{ID: userID, Username: username}},
		GuildID: "guild-1",
	}
}

func TestGreetRotatesTemplates(t *testing.T) {
	rec := testkit.NewPlatformRecorder()
	w := New(rec, testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Greet(ctx, join("user-1", "newbie")))
	}

	sent := rec.SentTo("chan-welcome")
	require.Len(t, sent, 5)

	seen := map[string]bool{}
	for _, m := range sent[:4] {
		assert.Contains(t, m.Content, "<@user-1>")
		seen[m.Content] = true
	}
	assert.Len(t, seen, 4, "four distinct templates before the rotation wraps")
	assert.Equal(t, sent[0].Content, sent[4].Content)
}

func TestGreetSkipsBotsAndMissingConfig(t *testing.T) {
	rec := testkit.NewPlatformRecorder()
	w := New(rec, testConfig())
	ctx := context.Background()

	bot := join("bot-2", "other-bot")
	bot.User.Bot = true
	require.NoError(t, w.Greet(ctx, bot))

	unconfigured := New(rec, config.WelcomeConfig{})
	require.NoError(t, unconfigured.Greet(ctx, join("user-1", "alice")))

	assert.Empty(t, rec.Sent())
}

func TestAutoThreadOpensThreadOnShowcasePosts(t *testing.T) {
	rec := testkit.NewPlatformRecorder()
	w := New(rec, testConfig())
	ctx := context.Background()

	msg := testkit.NewGuildMessage("guild-1", "chan-showcase").
		From("user-1", "alice").
		WithContent("My weekend project: a tiny raytracer\nSource below.").
		Build()
	require.NoError(t, w.AutoThread(ctx, msg))

	threads := rec.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "chan-showcase", threads[0].ChannelID)
	assert.Equal(t, msg.ID, threads[0].MessageID)
	assert.Equal(t, "My weekend project: a tiny raytracer", threads[0].Name)
}

func TestAutoThreadIgnoresOtherChannelsAndBots(t *testing.T) {
	rec := testkit.NewPlatformRecorder()
	w := New(rec, testConfig())
	ctx := context.Background()

	elsewhere := testkit.NewGuildMessage("guild-1", "chan-general").
		From("user-1", "alice").WithContent("hello").Build()
	require.NoError(t, w.AutoThread(ctx, elsewhere))

	bot := testkit.NewGuildMessage("guild-1", "chan-showcase").
		FromBot("bot-1", "guildbot").WithContent("automated post").Build()
	require.NoError(t, w.AutoThread(ctx, bot))

	assert.Empty(t, rec.Threads())
}

func TestAutoThreadNameFallsBackToAuthor(t *testing.T) {
	rec := testkit.NewPlatformRecorder()
	w := New(rec, testConfig())

	msg := testkit.NewGuildMessage("guild-1", "chan-showcase").
		From("user-2", "bob").
		WithContent("").
		Build()
	require.NoError(t, w.AutoThread(context.Background(), msg))

	threads := rec.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "Discussion: bob's post", threads[0].Name)
}

func TestAutoThreadTruncatesLongTitles(t *testing.T) {
	rec := testkit.NewPlatformRecorder()
	w := New(rec, testConfig())

	msg := testkit.NewGuildMessage("guild-1", "chan-showcase").
		From("user-1", "alice").
		WithContent(strings.Repeat("a", 200)).
		Build()
	require.NoError(t, w.AutoThread(context.Background(), msg))

	threads := rec.Threads()
	require.Len(t, threads, 1)
	assert.True(t, strings.HasSuffix(threads[0].Name, utils.TruncationSuffix))
	assert.Len(t, threads[0].Name, 80+len(utils.TruncationSuffix))
}

func TestRepostEvergreenKeepsOnlyLatest(t *testing.T) {
	rec := testkit.NewPlatformRecorder()
	w := New(rec, testConfig())
	ctx := context.Background()

	require.NoError(t, w.RepostEvergreen(ctx))
	require.NoError(t, w.RepostEvergreen(ctx))

	sent := rec.SentTo("chan-rules")
	require.Len(t, sent, 2)
	assert.Equal(t, "📌 Be kind. Ship things.", sent[0].Content)

	deletes := rec.Deletes()
	require.Len(t, deletes, 1)
	assert.Equal(t, testkit.Deletion{ChannelID: "chan-rules", MessageID: sent[0].ID}, deletes[0])
}

func TestRepostEvergreenSurvivesDeleteFailure(t *testing.T) {
	rec := testkit.NewPlatformRecorder()
	w := New(rec, testConfig())
	ctx := context.Background()

	require.NoError(t, w.RepostEvergreen(ctx))
	rec.DeleteErr = errors.New("message already gone")
	require.NoError(t, w.RepostEvergreen(ctx))

	assert.Len(t, rec.SentTo("chan-rules"), 2)
}

func TestRepostEvergreenUnconfigured(t *testing.T) {
	rec := testkit.NewPlatformRecorder()
	w := New(rec, config.WelcomeConfig{})

	require.NoError(t, w.RepostEvergreen(context.Background()))
	assert.Empty(t, rec.Sent())
	assert.Empty(t, rec.Deletes())
}
