package notify

import (
	"time"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

// dueSoonWindow makes a project due within it eligible daily.
const dueSoonWindow = 7 * 24 * time.Hour

// ShouldNotify applies the per-category cadence to d, the whole days since
// the goal was last notified. At most one nudge a day, at least one a week.
func ShouldNotify(c goal.Category, d int, dueSoon bool) bool {
	if d < 1 {
		return false
	}
	if d >= 7 {
		return true
	}
	switch c {
	case goal.CategoryHabit:
		return true
	case goal.CategoryProject:
		if dueSoon {
			return true
		}
		return d >= 3
	case goal.CategorySave, goal.CategoryLearn:
		return d >= 2
	}
	return d >= 3
}

// DaysBetween counts calendar days from one YYYY-MM-DD day to another.
func DaysBetween(from, to string) (int, error) {
	a, err := goal.ParseDay(from)
	if err != nil {
		return 0, err
	}
	b, err := goal.ParseDay(to)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}

// weekdayIndex maps a weekday to the Monday-first index of NotificationDays.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// InWindow reports whether local falls on an enabled day and inside the
// user's hour window. Both window hours are inclusive.
func InWindow(p *store.Preferences, local time.Time) bool {
	if !p.NotificationDays[weekdayIndex(local.Weekday())] {
		return false
	}
	h := local.Hour()
	return h >= p.WindowStart && h <= p.WindowEnd
}

// dueSoon reports whether g is a project due within a week.
func dueSoon(g *goal.Goal, now time.Time) bool {
	p, ok := g.Details.(*goal.ProjectDetails)
	return ok && p.DueWithin(now, dueSoonWindow)
}
