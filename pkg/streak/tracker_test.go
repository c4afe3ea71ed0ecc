package streak

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata" // Hermetic zone lookups regardless of host tz database

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildbot/pkg/persistence"
	"guildbot/pkg/platform"
	"guildbot/pkg/testkit"
)

const commitsChannel = "chan-commits"

func setupTracker(t *testing.T) (*Tracker, *testkit.PlatformRecorder) {
	t.Helper()

	require.NoError(t, persistence.Reset())
	require.NoError(t, persistence.Initialize(filepath.Join(t.TempDir(), "streaks.db")))
	t.Cleanup(func() {
		if err := persistence.Reset(); err != nil {
			t.Errorf("Failed to reset database singleton: %v", err)
		}
	})

	rec := testkit.NewPlatformRecorder()
	return NewTracker(rec, persistence.Profiles(), persistence.Streaks(), commitsChannel), rec
}

func linkProfile(t *testing.T, userID, handle, tz string) {
	t.Helper()
	err := persistence.Profiles().Upsert(context.Background(), &persistence.Profile{
		UserID:       userID,
		GithubHandle: handle,
		Timezone:     tz,
	})
	require.NoError(t, err)
}

// seedDays records one commit day per offset, counted backwards from anchor.
func seedDays(t *testing.T, userID string, anchor time.Time, offsets ...int) {
	t.Helper()
	for _, off := range offsets {
		day := anchor.AddDate(0, 0, -off).Format("2006-01-02")
		_, err := persistence.Streaks().RecordDay(context.Background(), userID, day)
		require.NoError(t, err)
	}
}

func commitMsg(userID, username string, ts time.Time) *platform.Message {
	return testkit.NewGuildMessage("guild-1", commitsChannel).
		From(userID, username).
		WithContent("pushed a fix").
		At(ts).
		Build()
}

func TestTrackIgnoresUnlinkedAuthors(t *testing.T) {
	tr, rec := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, commitMsg("user-1", "alice", time.Now().UTC())))

	days, err := persistence.Streaks().DaysFor(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, days)
	assert.Empty(t, rec.Reactions())
}

func TestTrackIgnoresBotsAndOtherChannels(t *testing.T) {
	tr, _ := setupTracker(t)
	ctx := context.Background()
	linkProfile(t, "user-1", "alice-gh", "")

	bot := testkit.NewGuildMessage("guild-1", commitsChannel).
		FromBot("bot-9", "ci").WithContent("build passed").Build()
	require.NoError(t, tr.Track(ctx, bot))

	elsewhere := testkit.NewGuildMessage("guild-1", "chan-general").
		From("user-1", "alice").WithContent("pushed a fix").Build()
	require.NoError(t, tr.Track(ctx, elsewhere))

	days, err := persistence.Streaks().DaysFor(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestTrackRecordsOneRowPerCalendarDay(t *testing.T) {
	tr, rec := setupTracker(t)
	ctx := context.Background()
	linkProfile(t, "user-1", "alice-gh", "")

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	require.NoError(t, tr.Track(ctx, commitMsg("user-1", "alice", now)))
	require.NoError(t, tr.Track(ctx, commitMsg("user-1", "alice", now.Add(2*time.Hour))))

	days, err := persistence.Streaks().DaysFor(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2026-08-25", days[0].Day)
	assert.Equal(t, 2, days[0].MessageCount)
	assert.Empty(t, rec.Reactions(), "a one-day streak is no milestone")
}

func TestTrackBucketsDaysInProfileTimezone(t *testing.T) {
	tr, _ := setupTracker(t)
	ctx := context.Background()
	linkProfile(t, "user-1", "alice-gh", "Asia/Tokyo")

	// 20:00 UTC is already the next morning in Tokyo.
	ts := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)
	require.NoError(t, tr.Track(ctx, commitMsg("user-1", "alice", ts)))

	days, err := persistence.Streaks().DaysFor(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2026-03-05", days[0].Day)
}

func TestTrackCelebratesMilestones(t *testing.T) {
	tr, rec := setupTracker(t)
	ctx := context.Background()
	linkProfile(t, "user-1", "alice-gh", "")

	msgTime := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	seedDays(t, "user-1", msgTime, 1, 2, 3, 4, 5, 6)

	msg := commitMsg("user-1", "alice", msgTime)
	require.NoError(t, tr.Track(ctx, msg))

	reactions := rec.Reactions()
	require.Len(t, reactions, 1)
	assert.Equal(t, testkit.Reaction{ChannelID: commitsChannel, MessageID: msg.ID, Emoji: "🔥"}, reactions[0])

	// Later messages the same day are not a first record and stay quiet.
	require.NoError(t, tr.Track(ctx, commitMsg("user-1", "alice", msgTime.Add(time.Hour))))
	assert.Len(t, rec.Reactions(), 1)
}

func TestTrackSwallowsReactionFailures(t *testing.T) {
	tr, rec := setupTracker(t)
	rec.ReactionErr = errors.New("rate limited")
	ctx := context.Background()
	linkProfile(t, "user-1", "alice-gh", "")

	msgTime := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	seedDays(t, "user-1", msgTime, 1, 2, 3, 4, 5, 6)

	require.NoError(t, tr.Track(ctx, commitMsg("user-1", "alice", msgTime)))
}

func TestTrackOffMilestoneStaysQuiet(t *testing.T) {
	tr, rec := setupTracker(t)
	ctx := context.Background()
	linkProfile(t, "user-1", "alice-gh", "")

	msgTime := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	seedDays(t, "user-1", msgTime, 1, 2)

	require.NoError(t, tr.Track(ctx, commitMsg("user-1", "alice", msgTime)))
	assert.Empty(t, rec.Reactions())
}

func TestReportComputesCurrentAndBest(t *testing.T) {
	tr, _ := setupTracker(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	// A current run of 3 and an older best run of 7, with gaps between.
	seedDays(t, "user-1", now, 0, 1, 2, 5, 6, 10, 11, 12, 13, 14, 15, 16)

	report, err := tr.Report(ctx, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Current)
	assert.Equal(t, 7, report.Best)
	assert.Equal(t, 12, report.TotalDays)
	assert.Equal(t, "2026-08-25", report.LastDay)
}

func TestReportGraceDay(t *testing.T) {
	tr, _ := setupTracker(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	seedDays(t, "user-1", now, 1, 2, 3, 4)
	report, err := tr.Report(ctx, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Current, "a streak survives until a full day is missed")

	seedDays(t, "user-2", now, 2, 3, 4)
	report, err = tr.Report(ctx, "user-2", now)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Current)
	assert.Equal(t, 3, report.Best)
}

func TestReportEmptyHistory(t *testing.T) {
	tr, _ := setupTracker(t)

	report, err := tr.Report(context.Background(), "ghost", time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, report.Current)
	assert.Zero(t, report.Best)
	assert.Zero(t, report.TotalDays)
	assert.Empty(t, report.LastDay)
}
