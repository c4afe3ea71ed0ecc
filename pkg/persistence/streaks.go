package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// CommitDay is one user-day of commit activity in the commits channel.
type CommitDay struct {
	UserID       string `json:"user_id"`
	Day          string `json:"day"` // YYYY-MM-DD in the user's timezone
	MessageCount int    `json:"message_count"`
}

// StreakStore tracks per-user commit days for streak computation.
type StreakStore struct {
	db *sql.DB
}

// Streaks returns a StreakStore bound to the global database.
func Streaks() *StreakStore {
	return &StreakStore{db: GetDB()}
}

// NewStreakStore creates a StreakStore over an explicit database handle.
func NewStreakStore(db *sql.DB) *StreakStore {
	return &StreakStore{db: db}
}

// RecordDay marks a commit message on the given day. It returns true when
// this is the first message of that user-day, which is the signal streak
// milestones key off. Repeat messages only bump the counter.
func (s *StreakStore) RecordDay(ctx context.Context, userID, day string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO commit_days (user_id, day) VALUES (?, ?)`, userID, day)
	if err != nil {
		return false, fmt.Errorf("failed to record commit day %s/%s: %w", userID, day, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result for %s/%s: %w", userID, day, err)
	}
	if inserted > 0 {
		return true, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE commit_days SET message_count = message_count + 1 WHERE user_id = ? AND day = ?`, userID, day)
	if err != nil {
		return false, fmt.Errorf("failed to bump commit day %s/%s: %w", userID, day, err)
	}
	return false, nil
}

// DaysFor returns a user's commit days, most recent first, up to limit.
func (s *StreakStore) DaysFor(ctx context.Context, userID string, limit int) ([]CommitDay, error) {
	query := `SELECT user_id, day, message_count FROM commit_days WHERE user_id = ? ORDER BY day DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commit days for %s: %w", userID, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var days []CommitDay
	for rows.Next() {
		var d CommitDay
		if err := rows.Scan(&d.UserID, &d.Day, &d.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan commit day: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return days, nil
}

// ActiveUsers returns the IDs of users with at least one commit day on or
// after the given day (YYYY-MM-DD), ordered by user ID for stable digests.
func (s *StreakStore) ActiveUsers(ctx context.Context, sinceDay string) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM commit_days WHERE day >= ? ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query, sinceDay)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users since %s: %w", sinceDay, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}
