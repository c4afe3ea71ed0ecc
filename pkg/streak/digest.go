package streak

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"guildbot/pkg/platform"
)

// digestSize caps the leaderboard length.
const digestSize = 10

// PostDigest posts the streak leaderboard to the given channel. Users with
// no current streak are left off; an empty board posts nothing.
func (t *Tracker) PostDigest(ctx context.Context, channelID string) error {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -30).Format("2006-01-02")

	users, err := t.streaks.ActiveUsers(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to load active users: %w", err)
	}

	type entry struct {
		userID string
		report Report
	}
	var entries []entry
	for _, userID := range users {
		report, err := t.Report(ctx, userID, now)
		if err != nil {
			t.logger.Warn("Failed to compute streak for %s: %v", userID, err)
			continue
		}
		if report.Current == 0 {
			continue
		}
		entries = append(entries, entry{userID: userID, report: report})
	}
	if len(entries) == 0 {
		t.logger.Info("🔥 No current streaks, skipping digest")
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].report.Current != entries[j].report.Current {
			return entries[i].report.Current > entries[j].report.Current
		}
		if entries[i].report.Best != entries[j].report.Best {
			return entries[i].report.Best > entries[j].report.Best
		}
		return entries[i].userID < entries[j].userID
	})
	if len(entries) > digestSize {
		entries = entries[:digestSize]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔥 **Commit streaks** — %s\n", now.Format("Jan 2, 2006"))
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. <@%s> — %d %s (best %d)\n",
			i+1, e.userID, e.report.Current, dayWord(e.report.Current), e.report.Best)
	}

	if _, err := t.client.SendMessage(ctx, channelID, &platform.MessageSend{Content: b.String()}); err != nil {
		return fmt.Errorf("failed to post streak digest: %w", err)
	}
	t.logger.Info("🔥 Posted streak digest with %d entries", len(entries))
	return nil
}

func dayWord(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}
