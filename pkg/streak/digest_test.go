package streak

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostDigestRanksCurrentStreaks(t *testing.T) {
	tr, rec := setupTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedDays(t, "user-bob", now, 0, 1, 2)
	seedDays(t, "user-alice", now, 0, 1, 2, 3, 4)
	seedDays(t, "user-carol", now, 10, 11)
	seedDays(t, "user-dave", now, 0)

	require.NoError(t, tr.PostDigest(ctx, "chan-digest"))

	sent := rec.SentTo("chan-digest")
	require.Len(t, sent, 1)
	content := sent[0].Content

	assert.Contains(t, content, "🔥 **Commit streaks**")
	assert.NotContains(t, content, "user-carol", "stale streaks stay off the board")

	alice := strings.Index(content, "<@user-alice> — 5 days (best 5)")
	bob := strings.Index(content, "<@user-bob> — 3 days (best 3)")
	dave := strings.Index(content, "<@user-dave> — 1 day (best 1)")
	require.GreaterOrEqual(t, alice, 0, "content:\n%s", content)
	require.GreaterOrEqual(t, bob, 0, "content:\n%s", content)
	require.GreaterOrEqual(t, dave, 0, "content:\n%s", content)
	assert.Less(t, alice, bob)
	assert.Less(t, bob, dave)
}

func TestPostDigestSkipsWhenQuiet(t *testing.T) {
	tr, rec := setupTracker(t)

	require.NoError(t, tr.PostDigest(context.Background(), "chan-digest"))
	assert.Empty(t, rec.Sent())
}

func TestPostDigestCapsTheBoard(t *testing.T) {
	tr, rec := setupTracker(t)
	now := time.Now().UTC()

	// user-00 has a 1-day streak, user-11 a 12-day streak.
	for i := 0; i < 12; i++ {
		offsets := make([]int, i+1)
		for off := 0; off <= i; off++ {
			offsets[off] = off
		}
		seedDays(t, fmt.Sprintf("user-%02d", i), now, offsets...)
	}

	require.NoError(t, tr.PostDigest(context.Background(), "chan-digest"))

	sent := rec.SentTo("chan-digest")
	require.Len(t, sent, 1)
	lines := strings.Split(strings.TrimSpace(sent[0].Content), "\n")
	assert.Len(t, lines, 11, "header plus ten entries")
	assert.NotContains(t, sent[0].Content, "user-00")
	assert.NotContains(t, sent[0].Content, "user-01")
	assert.Contains(t, lines[1], "<@user-11> — 12 days")
}
