package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptedForms(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"bare daily", "daily", "daily 00:00"},
		{"bare weekly", "weekly", "weekly Monday 00:00"},
		{"clock only", "09:30", "daily 09:30"},
		{"daily with clock", "daily:18:05", "daily 18:05"},
		{"weekly day only", "weekly:friday", "weekly Friday 00:00"},
		{"weekly abbreviated day", "weekly:Mon:08:15", "weekly Monday 08:15"},
		{"case insensitive", "WEEKLY:SATURDAY:23:59", "weekly Saturday 23:59"},
		{"surrounding whitespace", "  daily:07:00  ", "daily 07:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
		})
	}
}

func TestParseRejectsMalformedExpressions(t *testing.T) {
	exprs := []string{
		"",
		"hourly",
		"12",
		"09-30",
		"25:00",
		"12:60",
		"daily:9",
		"daily:09:00:00",
		"weekly:funday",
		"weekly:mon:25:00",
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			assert.Error(t, err, "expression %q should not parse", expr)
		})
	}
}

func TestNextAfterDaily(t *testing.T) {
	s, err := Parse("daily:09:00")
	require.NoError(t, err)

	before := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), s.NextAfter(before))

	after := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), s.NextAfter(after))

	// The slot itself is not strictly after, so an exact hit rolls over.
	exact := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), s.NextAfter(exact))
}

func TestNextAfterWeekly(t *testing.T) {
	s, err := Parse("weekly:monday:09:00")
	require.NoError(t, err)

	// 2026-03-04 is a Wednesday; the next Monday slot is March 9.
	wed := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	got := s.NextAfter(wed)
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.Monday, got.Weekday())

	monEarly := time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), s.NextAfter(monEarly))

	monLate := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC), s.NextAfter(monLate))
}

func TestNextAfterIsAlwaysStrictlyAhead(t *testing.T) {
	s, err := Parse("weekly:sun")
	require.NoError(t, err)

	tm := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		next := s.NextAfter(tm)
		assert.True(t, next.After(tm), "iteration %d: %s not after %s", i, next, tm)
		assert.LessOrEqual(t, next.Sub(tm), 8*24*time.Hour)
		assert.Equal(t, time.Sunday, next.Weekday())
		tm = next
	}
}
