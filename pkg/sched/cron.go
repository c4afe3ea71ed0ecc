package sched

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed recurrence: an optional weekday plus a wall-clock
// time. A nil weekday means every day.
type Schedule struct {
	weekday *time.Weekday
	hour    int
	minute  int
}

// Parse reads a schedule expression. Accepted forms:
//
//	daily                 midnight every day
//	weekly                Monday at midnight
//	HH:MM                 every day at HH:MM
//	daily:HH:MM           every day at HH:MM
//	weekly:Day            that weekday at midnight
//	weekly:Day:HH:MM      that weekday at HH:MM
//
// Day names are case-insensitive and may be abbreviated to three letters.
func Parse(expr string) (Schedule, error) {
	raw := strings.TrimSpace(expr)
	low := strings.ToLower(raw)

	switch {
	case low == "":
		return Schedule{}, fmt.Errorf("empty schedule expression")

	case low == "daily":
		return Schedule{}, nil

	case low == "weekly":
		monday := time.Monday
		return Schedule{weekday: &monday}, nil

	case strings.HasPrefix(low, "daily:"):
		hour, minute, err := parseClock(low[len("daily:"):])
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid schedule '%s': %w", raw, err)
		}
		return Schedule{hour: hour, minute: minute}, nil

	case strings.HasPrefix(low, "weekly:"):
		rest := low[len("weekly:"):]
		dayPart := rest
		clockPart := ""
		if i := strings.Index(rest, ":"); i >= 0 {
			dayPart, clockPart = rest[:i], rest[i+1:]
		}
		weekday, err := parseWeekday(dayPart)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid schedule '%s': %w", raw, err)
		}
		s := Schedule{weekday: &weekday}
		if clockPart != "" {
			s.hour, s.minute, err = parseClock(clockPart)
			if err != nil {
				return Schedule{}, fmt.Errorf("invalid schedule '%s': %w", raw, err)
			}
		}
		return s, nil

	default:
		hour, minute, err := parseClock(low)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid schedule '%s': %w", raw, err)
		}
		return Schedule{hour: hour, minute: minute}, nil
	}
}

// NextAfter returns the first scheduled time strictly after t, in t's
// location. Day stepping goes through time.Date so DST transitions
// normalize instead of drifting.
func (s Schedule) NextAfter(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, s.minute, 0, 0, t.Location())
	if s.weekday == nil {
		if !next.After(t) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
	for !next.After(t) || next.Weekday() != *s.weekday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s Schedule) String() string {
	if s.weekday != nil {
		return fmt.Sprintf("weekly %s %02d:%02d", *s.weekday, s.hour, s.minute)
	}
	return fmt.Sprintf("daily %02d:%02d", s.hour, s.minute)
}

// parseClock reads "HH:MM" (24-hour).
func parseClock(clock string) (int, int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got '%s'", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour '%s'", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute '%s'", parts[1])
	}
	return hour, minute, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(name string) (time.Weekday, error) {
	name = strings.TrimSpace(name)
	if day, ok := weekdayNames[name]; ok {
		return day, nil
	}
	if len(name) >= 3 {
		for full, day := range weekdayNames {
			if strings.HasPrefix(full, name) {
				return day, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday '%s'", name)
}
