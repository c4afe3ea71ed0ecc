package persistence

import (
	"context"
	"testing"
)

func TestStreakStore(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordDayFirstMessage", func(t *testing.T) {
		setupTestDB(t)
		store := Streaks()

		firstOfDay, err := store.RecordDay(ctx, "user-1", "2025-06-01")
		if err != nil {
			t.Fatalf("Failed to record day: %v", err)
		}
		if !firstOfDay {
			t.Error("Expected first message of the day to report true")
		}

		firstOfDay, err = store.RecordDay(ctx, "user-1", "2025-06-01")
		if err != nil {
			t.Fatalf("Failed to record repeat message: %v", err)
		}
		if firstOfDay {
			t.Error("Expected repeat message of the day to report false")
		}

		days, err := store.DaysFor(ctx, "user-1", 10)
		if err != nil {
			t.Fatalf("Failed to list days: %v", err)
		}
		if len(days) != 1 {
			t.Fatalf("Expected 1 day, got %d", len(days))
		}
		if days[0].MessageCount != 2 {
			t.Errorf("Expected message count 2, got %d", days[0].MessageCount)
		}
	})

	t.Run("DaysForOrderingAndLimit", func(t *testing.T) {
		setupTestDB(t)
		store := Streaks()

		for _, day := range []string{"2025-06-01", "2025-06-03", "2025-06-02"} {
			if _, err := store.RecordDay(ctx, "user-1", day); err != nil {
				t.Fatalf("Failed to record day %s: %v", day, err)
			}
		}

		days, err := store.DaysFor(ctx, "user-1", 2)
		if err != nil {
			t.Fatalf("Failed to list days: %v", err)
		}
		if len(days) != 2 {
			t.Fatalf("Expected 2 days, got %d", len(days))
		}
		if days[0].Day != "2025-06-03" || days[1].Day != "2025-06-02" {
			t.Errorf("Expected days in descending order, got %s then %s", days[0].Day, days[1].Day)
		}
	})

	t.Run("DaysAreScopedPerUser", func(t *testing.T) {
		setupTestDB(t)
		store := Streaks()

		if _, err := store.RecordDay(ctx, "user-1", "2025-06-01"); err != nil {
			t.Fatalf("Failed to record day: %v", err)
		}
		if _, err := store.RecordDay(ctx, "user-2", "2025-06-01"); err != nil {
			t.Fatalf("Failed to record day: %v", err)
		}

		days, err := store.DaysFor(ctx, "user-2", 10)
		if err != nil {
			t.Fatalf("Failed to list days: %v", err)
		}
		if len(days) != 1 || days[0].UserID != "user-2" {
			t.Errorf("Expected only user-2's day, got %+v", days)
		}
	})

	t.Run("ActiveUsers", func(t *testing.T) {
		setupTestDB(t)
		store := Streaks()

		if _, err := store.RecordDay(ctx, "user-b", "2025-06-10"); err != nil {
			t.Fatalf("Failed to record day: %v", err)
		}
		if _, err := store.RecordDay(ctx, "user-a", "2025-06-12"); err != nil {
			t.Fatalf("Failed to record day: %v", err)
		}
		if _, err := store.RecordDay(ctx, "user-c", "2025-05-01"); err != nil {
			t.Fatalf("Failed to record day: %v", err)
		}

		users, err := store.ActiveUsers(ctx, "2025-06-01")
		if err != nil {
			t.Fatalf("Failed to list active users: %v", err)
		}
		if len(users) != 2 {
			t.Fatalf("Expected 2 active users, got %d: %v", len(users), users)
		}
		if users[0] != "user-a" || users[1] != "user-b" {
			t.Errorf("Expected stable user ordering, got %v", users)
		}
	})
}
