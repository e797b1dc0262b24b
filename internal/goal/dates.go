package goal

import (
	"fmt"
	"sort"
	"time"
)

// DayLayout is the ISO calendar-day format used for completion sets.
const DayLayout = "2006-01-02"

// Day formats t as a calendar day in t's own location.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay parses a calendar day in UTC.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// addDays shifts a calendar day string by n days.
func addDays(day time.Time, n int) string {
	return day.AddDate(0, 0, n).Format(DayLayout)
}

// dayRange reports whether day lies within [createdAt's day, today's day].
func dayInRange(day string, createdAt, today time.Time) error {
	d, err := ParseDay(day)
	if err != nil {
		return err
	}
	first, _ := ParseDay(Day(createdAt))
	last, _ := ParseDay(Day(today))
	if d.Before(first) || d.After(last) {
		return fmt.Errorf("%w: %s", ErrDateOutOfRange, day)
	}
	return nil
}

// toggleDay returns a sorted copy of days with day added or removed.
func toggleDay(days []string, day string) []string {
	out := make([]string, 0, len(days)+1)
	found := false
	for _, d := range days {
		if d == day {
			found = true
			continue
		}
		out = append(out, d)
	}
	if !found {
		out = append(out, day)
	}
	return normalizeDays(out)
}

// normalizeDays sorts and de-duplicates a set of calendar days.
func normalizeDays(days []string) []string {
	if len(days) == 0 {
		return []string{}
	}
	out := append([]string(nil), days...)
	sort.Strings(out)
	w := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[w-1] {
			out[w] = out[i]
			w++
		}
	}
	return out[:w]
}

func containsDay(days []string, day string) bool {
	i := sort.SearchStrings(days, day)
	return i < len(days) && days[i] == day
}

// CurrentStreak is 0 when today is not in days, otherwise the length of the
// run of consecutive days ending today.
func CurrentStreak(days []string, today time.Time) int {
	set := normalizeDays(days)
	t, err := ParseDay(Day(today))
	if err != nil || !containsDay(set, Day(t)) {
		return 0
	}
	streak := 1
	for containsDay(set, addDays(t, -streak)) {
		streak++
	}
	return streak
}

// LongestStreak is the longest run of consecutive days in the set.
func LongestStreak(days []string) int {
	set := normalizeDays(days)
	if len(set) == 0 {
		return 0
	}
	longest, run := 1, 1
	prev, err := ParseDay(set[0])
	if err != nil {
		return 0
	}
	for _, s := range set[1:] {
		cur, err := ParseDay(s)
		if err != nil {
			continue
		}
		if cur.Sub(prev) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = cur
	}
	return longest
}
