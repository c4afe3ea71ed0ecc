// Package streak records daily commit evidence from the commits channel
// and computes per-user streak reports and the leaderboard digest.
package streak

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guildbot/pkg/logx"
	"guildbot/pkg/persistence"
	"guildbot/pkg/platform"
)

// historyDays bounds how far back streak computation looks.
const historyDays = 365

// milestones are streak lengths that earn a celebratory reaction.
//
//nolint:gochecknoglobals // Static lookup table
var milestones = map[int]bool{7: true, 30: true, 100: true}

// Platform is the subset of the chat API the tracker posts through.
type Platform interface {
	SendMessage(ctx context.Context, channelID string, send *platform.MessageSend) (*platform.Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// Report is a user's computed streak summary. Current is the consecutive
// run ending today or yesterday; a streak only breaks once a full day is
// missed.
type Report struct {
	LastDay   string
	Current   int
	Best      int
	TotalDays int
}

// Tracker turns commits-channel messages into recorded commit days.
type Tracker struct {
	client    Platform
	profiles  *persistence.ProfileStore
	streaks   *persistence.StreakStore
	logger    *logx.Logger
	channelID string
}

// NewTracker creates a tracker watching the given commits channel.
func NewTracker(client Platform, profiles *persistence.ProfileStore, streaks *persistence.StreakStore, commitsChannel string) *Tracker {
	return &Tracker{
		client:    client,
		profiles:  profiles,
		streaks:   streaks,
		logger:    logx.NewLogger("streak"),
		channelID: commitsChannel,
	}
}

// HandleMessage is the gateway adapter. Recording hits the database and
// possibly the HTTP API, so it runs off the gateway read loop.
func (t *Tracker) HandleMessage(s *platform.Session, mc *platform.MessageCreate) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := t.Track(ctx, mc.Message); err != nil {
			t.logger.Warn("Failed to track commit message %s: %v", mc.ID, err)
		}
	}()
}

// Track records one message as commit evidence. Only messages in the
// commits channel from profile-linked humans count; everything else is
// silently ignored. Days are bucketed in the author's profile timezone.
func (t *Tracker) Track(ctx context.Context, msg *platform.Message) error {
	if msg == nil || msg.ChannelID != t.channelID {
		return nil
	}
	if msg.Author == nil || msg.Author.Bot {
		return nil
	}

	profile, err := t.profiles.Get(ctx, msg.Author.ID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	local := ts.In(profileLocation(profile))

	first, err := t.streaks.RecordDay(ctx, msg.Author.ID, local.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to record commit day: %w", err)
	}
	if !first {
		return nil
	}

	report, err := t.Report(ctx, msg.Author.ID, local)
	if err != nil {
		return fmt.Errorf("failed to compute streak: %w", err)
	}
	if milestones[report.Current] {
		t.logger.Info("🔥 %s hit a %d-day streak", msg.Author.Username, report.Current)
		// Cosmetic only, so a failed reaction never fails the record.
		if err := t.client.AddReaction(ctx, msg.ChannelID, msg.ID, "🔥"); err != nil {
			t.logger.Debug("Failed to add milestone reaction: %v", err)
		}
	}
	return nil
}

// Report computes a user's streaks as of the given time.
func (t *Tracker) Report(ctx context.Context, userID string, now time.Time) (Report, error) {
	days, err := t.streaks.DaysFor(ctx, userID, historyDays)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load commit days: %w", err)
	}

	current, best, total := computeStreaks(days, now)
	report := Report{Current: current, Best: best, TotalDays: total}
	if len(days) > 0 {
		report.LastDay = days[0].Day
	}
	return report, nil
}

// computeStreaks walks commit days (most recent first) and returns the
// current run, the best run, and the total day count.
func computeStreaks(days []persistence.CommitDay, now time.Time) (current, best, total int) {
	var parsed []time.Time
	for _, d := range days {
		if t, err := time.Parse("2006-01-02", d.Day); err == nil {
			parsed = append(parsed, t)
		}
	}
	total = len(parsed)
	if total == 0 {
		return 0, 0, 0
	}

	run := 1
	firstRun := -1
	for i := 1; i <= len(parsed); i++ {
		if i < len(parsed) && parsed[i-1].AddDate(0, 0, -1).Equal(parsed[i]) {
			run++
			continue
		}
		if firstRun < 0 {
			firstRun = run
		}
		if run > best {
			best = run
		}
		run = 1
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	head := parsed[0]
	if head.Equal(today) || head.Equal(today.AddDate(0, 0, -1)) {
		current = firstRun
	}
	return current, best, total
}

func profileLocation(profile *persistence.Profile) *time.Location {
	if profile.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
